// Package agent orchestrates a complete update check: fetch the feed,
// parse it, decide whether to offer, download, gate on trust and hand
// the verified artifact to the application.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"
	"golang.org/x/sync/singleflight"

	"github.com/upcast-io/upcast/internal/archive"
	"github.com/upcast-io/upcast/internal/feed"
	"github.com/upcast-io/upcast/internal/fetch"
	"github.com/upcast-io/upcast/internal/identity"
	"github.com/upcast-io/upcast/internal/state"
	"github.com/upcast-io/upcast/internal/telemetry"
	"github.com/upcast-io/upcast/internal/trust"
)

// Config assembles an Agent. Identity is required, everything else has
// a working default.
type Config struct {
	Identity  *identity.Identity
	Fetcher   fetch.Fetcher     // nil means HTTP with default timeout
	Store     *state.Store      // nil disables persistent bookkeeping
	Archive   *archive.Manager  // nil disables artifact archiving
	Recorder  telemetry.Recorder
	Notifier  Notifier
	Confirmer Confirmer // nil accepts every offer
	Logger    logr.Logger
	// DownloadDir overrides the system temp dir for download sessions.
	DownloadDir string
}

// Agent runs update checks for one application identity.
type Agent struct {
	identity    *identity.Identity
	fetcher     fetch.Fetcher
	store       *state.Store
	archive     *archive.Manager
	recorder    telemetry.Recorder
	notifier    Notifier
	confirmer   Confirmer
	log         logr.Logger
	downloadDir string

	group singleflight.Group

	mu      sync.Mutex
	machine *fsm.FSM
}

// CheckOptions steers a single check.
type CheckOptions struct {
	// Force marks a user-initiated check: the offer floor includes the
	// current version, the skip record is ignored and the user always
	// hears the outcome.
	Force bool
	// FeedURL overrides the identity's feed for this check only.
	FeedURL string
	// ShowDiagnostics surfaces no-update and failure outcomes even on
	// a routine check.
	ShowDiagnostics bool
}

// CheckResult is what a finished check produced.
type CheckResult struct {
	Outcome feed.Outcome `json:"outcome"`
	Feed    *feed.Feed   `json:"feed,omitempty"`
	// ArtifactPath is set once a download has cleared the trust gate.
	ArtifactPath string `json:"artifact_path,omitempty"`
	// Verdict is set when the trust gate ran.
	Verdict trust.Verdict `json:"verdict,omitempty"`
}

// New validates the config and builds an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Identity == nil {
		return nil, errors.New("agent: identity is required")
	}

	log := cfg.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	a := &Agent{
		identity:    cfg.Identity,
		fetcher:     cfg.Fetcher,
		store:       cfg.Store,
		archive:     cfg.Archive,
		recorder:    cfg.Recorder,
		notifier:    cfg.Notifier,
		confirmer:   cfg.Confirmer,
		log:         log,
		downloadDir: cfg.DownloadDir,
	}
	if a.fetcher == nil {
		a.fetcher = fetch.NewHTTPFetcher()
	}
	if a.recorder == nil {
		a.recorder = telemetry.Nop{}
	}
	if a.notifier == nil {
		a.notifier = NopNotifier{}
	}
	if a.confirmer == nil {
		a.confirmer = AcceptAll
	}
	a.machine = newMachine(log)

	return a, nil
}

// State returns the current lifecycle state.
func (a *Agent) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Current()
}

// Identity returns the identity this agent checks for.
func (a *Agent) Identity() *identity.Identity {
	return a.identity
}

// Check runs one complete update check. Concurrent calls coalesce onto
// the in-flight check and share its result.
func (a *Agent) Check(ctx context.Context, opts CheckOptions) (*CheckResult, error) {
	v, err, _ := a.group.Do("check", func() (any, error) {
		return a.runCheck(ctx, opts)
	})
	res, _ := v.(*CheckResult)
	return res, err
}

// CheckInBackground starts a routine check without blocking the caller.
// Failures are logged, never raised.
func (a *Agent) CheckInBackground(ctx context.Context) {
	go func() {
		if _, err := a.Check(ctx, CheckOptions{}); err != nil {
			a.log.Error(err, "background check failed")
		}
	}()
}

// ForceCheckInBackground starts a user-initiated check without blocking
// the caller. feedURL may override the identity's feed for this check.
func (a *Agent) ForceCheckInBackground(ctx context.Context, feedURL string) {
	go func() {
		opts := CheckOptions{Force: true, FeedURL: feedURL, ShowDiagnostics: true}
		if _, err := a.Check(ctx, opts); err != nil {
			a.log.Error(err, "forced check failed")
		}
	}()
}

// Run checks on the identity's interval until ctx ends. Values arriving
// on triggers start an immediate forced check; a nil channel disables
// external triggering.
func (a *Agent) Run(ctx context.Context, triggers <-chan string) error {
	interval := a.identity.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.log.Info("watching for updates", "app", a.identity.Name, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Check(ctx, CheckOptions{}); err != nil {
				a.log.Error(err, "scheduled check failed")
			}
		case reason, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			a.log.Info("check triggered", "reason", reason)
			if _, err := a.Check(ctx, CheckOptions{Force: true, ShowDiagnostics: true}); err != nil {
				a.log.Error(err, "triggered check failed")
			}
		}
	}
}

func (a *Agent) runCheck(ctx context.Context, opts CheckOptions) (*CheckResult, error) {
	a.recorder.CheckStarted(opts.Force)

	defer func() {
		if cur := a.State(); cur != StateIdle {
			a.log.Info("check ended off idle, resetting", "state", cur)
			a.mu.Lock()
			a.machine.SetState(StateIdle)
			a.mu.Unlock()
		}
	}()

	if err := a.fire(ctx, eventStartCheck); err != nil {
		return nil, err
	}

	feedURL := opts.FeedURL
	if feedURL == "" {
		feedURL = a.identity.FeedURL
	}

	f, decision, err := a.fetchAndDecide(ctx, feedURL, opts.Force)
	if err != nil {
		// The single failure boundary for fetch, parse and decide: the
		// check ends quietly unless the user explicitly asked.
		kind := failureKind(err)
		a.recorder.CheckFailed(kind)
		a.log.Error(err, "update check failed", "stage", kind, "url", feedURL)
		if opts.Force || opts.ShowDiagnostics {
			a.notify(func(n Notifier) { n.CheckFailed(err) })
		}
		a.fire(ctx, eventFail)
		a.recordOutcome("failed", "")
		return nil, err
	}

	offered := ""
	if decision.Feed != nil {
		offered = decision.Feed.Version
	}

	// The skip record only dampens routine checks.
	if !opts.Force && decision.Outcome == feed.UpdateAvailable {
		if skipped := a.skippedVersion(); skipped != "" && skipped == offered {
			a.log.Info("release previously skipped", "version", offered)
			decision = feed.Decision{Outcome: feed.NoUpdate}
			offered = ""
		}
	}

	if decision.Outcome == feed.NoUpdate {
		a.fire(ctx, eventReportNoUpdate)
		a.recorder.CheckFinished(string(feed.NoUpdate))
		a.recordOutcome(string(feed.NoUpdate), "")
		if opts.Force || opts.ShowDiagnostics {
			a.notify(func(n Notifier) { n.NoUpdate(a.identity.Version) })
		}
		a.log.Info("no update", "current", a.identity.Version)
		a.fire(ctx, eventFinish)
		return &CheckResult{Outcome: feed.NoUpdate, Feed: f}, nil
	}

	a.fire(ctx, eventOfferUpdate)
	a.recorder.CheckFinished(string(decision.Outcome))
	a.recordOutcome(string(decision.Outcome), offered)
	a.log.Info("update available", "current", a.identity.Version, "offered", offered)
	a.notify(func(n Notifier) { n.UpdateOffered(decision.Feed) })

	resp, err := a.confirmer.Confirm(ctx, decision.Feed)
	if err != nil {
		a.fire(ctx, eventFinish)
		return nil, fmt.Errorf("confirm: %w", err)
	}
	switch resp {
	case Decline:
		a.log.Info("update declined", "version", offered)
		a.fire(ctx, eventFinish)
		return &CheckResult{Outcome: decision.Outcome, Feed: decision.Feed}, nil
	case Skip:
		a.log.Info("release skipped", "version", offered)
		if a.store != nil {
			if err := a.store.SkipVersion(offered); err != nil {
				a.log.Error(err, "failed to record skipped version")
			}
		}
		a.fire(ctx, eventFinish)
		return &CheckResult{Outcome: decision.Outcome, Feed: decision.Feed}, nil
	}

	a.fire(ctx, eventAccept)

	session, err := a.newSession(decision.Feed.ArtifactURL)
	if err != nil {
		a.downloadFailed(ctx, err)
		return nil, err
	}

	start := time.Now()
	if err := a.fetcher.FetchBinary(ctx, decision.Feed.ArtifactURL, session.Path); err != nil {
		session.Discard()
		a.downloadFailed(ctx, err)
		return nil, err
	}
	session.MarkComplete()
	if fi, serr := os.Stat(session.Path); serr == nil {
		a.recorder.DownloadFinished(fi.Size(), time.Since(start).Seconds())
	}

	a.notify(func(n Notifier) { n.ArtifactDownloaded(decision.Feed, session.Path) })

	// Second confirmation point: an artifact the user cancels here is
	// never verified.
	if c, ok := a.confirmer.(Continuer); ok {
		cont, cerr := c.Continue(ctx, decision.Feed, session.Path)
		if cerr != nil {
			session.Discard()
			a.fire(ctx, eventDiscard)
			return nil, fmt.Errorf("confirm staging: %w", cerr)
		}
		if !cont {
			a.log.Info("staging cancelled, artifact discarded", "version", offered)
			session.Discard()
			a.fire(ctx, eventDiscard)
			return &CheckResult{Outcome: decision.Outcome, Feed: decision.Feed}, nil
		}
	}

	a.fire(ctx, eventDownloadDone)

	// Trust gate. Runs only here, after the user said yes and the
	// payload is fully on disk.
	verdict, err := trust.Verify(decision.Feed.Signature, session.Path, a.identity.PublicKeyPath)
	a.recorder.TrustVerdict(string(verdict))
	if err != nil {
		// The gate has already deleted the artifact.
		a.fire(ctx, eventTrustFail)
		a.log.Error(err, "artifact rejected", "version", offered)
		a.notify(func(n Notifier) { n.UpdateRejected(decision.Feed, err) })
		a.recordOutcome("rejected", offered)
		a.fire(ctx, eventFinish)
		return &CheckResult{Outcome: decision.Outcome, Feed: decision.Feed, Verdict: verdict}, err
	}

	if verdict == trust.NoSignaturePresent {
		a.log.Info("WARNING: feed carries no signature, artifact was not verified",
			"version", offered, "artifact", session.Path)
	}

	a.fire(ctx, eventTrustPass)
	if a.archive != nil {
		if _, err := a.archive.Add(session.Path, offered, decision.Feed.ArtifactURL, string(verdict)); err != nil {
			a.log.Error(err, "failed to archive artifact")
		}
	}
	a.log.Info("update ready", "version", offered, "artifact", session.Path, "verdict", verdict)
	a.notify(func(n Notifier) { n.UpdateReady(decision.Feed, session.Path) })
	a.recordOutcome("ready", offered)
	a.fire(ctx, eventFinish)

	return &CheckResult{
		Outcome:      decision.Outcome,
		Feed:         decision.Feed,
		ArtifactPath: session.Path,
		Verdict:      verdict,
	}, nil
}

// fetchAndDecide covers the stretch of the check that shares the
// failure boundary: transport, both parse passes and the decision.
func (a *Agent) fetchAndDecide(ctx context.Context, feedURL string, force bool) (*feed.Feed, feed.Decision, error) {
	raw, err := a.fetcher.FetchText(ctx, feedURL)
	if err != nil {
		return nil, feed.Decision{}, err
	}

	f, err := feed.Parse(raw)
	if err != nil {
		return nil, feed.Decision{}, err
	}
	if err := a.fire(ctx, eventFeedFetched); err != nil {
		return nil, feed.Decision{}, err
	}

	// Observers hear about the feed before any decision is made about it.
	a.notify(func(n Notifier) { n.FeedAvailable(f) })

	if err := a.fire(ctx, eventDecide); err != nil {
		return f, feed.Decision{}, err
	}

	decision, err := feed.Decide(f, a.identity.Version, force)
	if err != nil {
		// Unparsable versions never become offers. Decide already fell
		// back to no-update, keep that and log what happened.
		a.log.Error(err, "version did not parse, treating as no update", "feedVersion", f.Version)
	}
	return f, decision, nil
}

func (a *Agent) downloadFailed(ctx context.Context, err error) {
	a.recorder.CheckFailed("download")
	a.log.Error(err, "artifact download failed")
	a.notify(func(n Notifier) { n.CheckFailed(err) })
	a.fire(ctx, eventFail)
	a.recordOutcome("failed", "")
}

func (a *Agent) newSession(artifactURL string) (*fetch.Session, error) {
	if a.downloadDir != "" {
		return fetch.NewSessionIn(a.downloadDir, artifactURL)
	}
	return fetch.NewSession(artifactURL)
}

// fire advances the lifecycle machine. Transition refusals indicate a
// bug in the drive logic, they are logged and propagated.
func (a *Agent) fire(ctx context.Context, event string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.machine.Event(ctx, event); err != nil {
		err = fmt.Errorf("check state %s rejects %s: %w", a.machine.Current(), event, err)
		a.log.Error(err, "lifecycle transition refused")
		return err
	}
	return nil
}

// notify delivers one event to the notifier. A panicking observer must
// not take the check down with it.
func (a *Agent) notify(fn func(Notifier)) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Info("notifier panicked", "panic", r)
		}
	}()
	fn(a.notifier)
}

func (a *Agent) recordOutcome(outcome, offered string) {
	if a.store == nil {
		return
	}
	if err := a.store.RecordCheck(outcome, offered); err != nil {
		a.log.Error(err, "failed to record check outcome")
	}
}

func (a *Agent) skippedVersion() string {
	if a.store == nil {
		return ""
	}
	st, err := a.store.Load()
	if err != nil {
		a.log.Error(err, "state file unreadable, ignoring skip record")
	}
	return st.SkippedVersion
}

func failureKind(err error) string {
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		return "fetch"
	}
	var pe *feed.ParseError
	if errors.As(err, &pe) {
		return "parse"
	}
	return "internal"
}
