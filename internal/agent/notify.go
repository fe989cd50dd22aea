package agent

import (
	"context"

	"github.com/upcast-io/upcast/internal/feed"
)

// Notifier observes the check lifecycle. Calls are made inline in feed
// order, panics are swallowed, and return values do not exist: an
// observer can never redirect the pipeline. Implementations should
// return quickly.
type Notifier interface {
	// FeedAvailable fires after a feed parses, before any decision is
	// made about it.
	FeedAvailable(f *feed.Feed)
	// NoUpdate fires when a check concludes the current version stands.
	NoUpdate(currentVersion string)
	// UpdateOffered fires when a newer release is about to be offered.
	UpdateOffered(f *feed.Feed)
	// ArtifactDownloaded fires when the payload is on disk, before the
	// trust gate has inspected it.
	ArtifactDownloaded(f *feed.Feed, path string)
	// UpdateReady fires when a downloaded artifact has cleared the
	// trust gate and may be handed to the application.
	UpdateReady(f *feed.Feed, path string)
	// UpdateRejected fires when the trust gate refused the artifact.
	UpdateRejected(f *feed.Feed, err error)
	// CheckFailed fires when fetch, parse or decide failed.
	CheckFailed(err error)
}

// NopNotifier ignores every event.
type NopNotifier struct{}

func (NopNotifier) FeedAvailable(*feed.Feed)              {}
func (NopNotifier) NoUpdate(string)                       {}
func (NopNotifier) UpdateOffered(*feed.Feed)              {}
func (NopNotifier) ArtifactDownloaded(*feed.Feed, string) {}
func (NopNotifier) UpdateReady(*feed.Feed, string)        {}
func (NopNotifier) UpdateRejected(*feed.Feed, error)      {}
func (NopNotifier) CheckFailed(error)                     {}

// Response is the user's answer to an update offer.
type Response int

const (
	// Accept proceeds to download and trust gating.
	Accept Response = iota
	// Decline ends the check without touching the release.
	Decline
	// Skip declines and suppresses future offers for this version.
	Skip
)

// Confirmer asks the user whether to take an offered update. The trust
// gate runs only after an Accept.
type Confirmer interface {
	Confirm(ctx context.Context, f *feed.Feed) (Response, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, f *feed.Feed) (Response, error)

func (fn ConfirmerFunc) Confirm(ctx context.Context, f *feed.Feed) (Response, error) {
	return fn(ctx, f)
}

// Continuer is an optional Confirmer upgrade. A confirmer that
// implements it is asked once more after the download, before the trust
// gate runs; answering false discards the artifact unverified.
// Confirmers without it proceed straight to verification.
type Continuer interface {
	Continue(ctx context.Context, f *feed.Feed, artifactPath string) (bool, error)
}

// AcceptAll accepts every offer. Used in watch mode and tests.
var AcceptAll = ConfirmerFunc(func(context.Context, *feed.Feed) (Response, error) {
	return Accept, nil
})
