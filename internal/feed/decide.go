package feed

import (
	"fmt"

	"github.com/upcast-io/upcast/internal/semver"
)

// Outcome classifies the result of an update-eligibility decision.
type Outcome string

const (
	// NoUpdate means the feed offers nothing the host should install.
	NoUpdate Outcome = "no-update"
	// UpdateAvailable means a strictly newer release is on offer.
	UpdateAvailable Outcome = "update-available"
	// Forced means a user-initiated check re-offered an equal or newer release.
	Forced Outcome = "forced"
)

// Decision pairs an Outcome with the feed that produced it. Feed is
// nil when Outcome is NoUpdate.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Feed    *Feed   `json:"feed,omitempty"`
}

// ShouldUpdate reports whether the feed's release should be offered.
//
// Normal mode offers only releases strictly newer than currentVersion
// under semantic ordering. Forced mode re-offers equal versions so a
// user-initiated check always has something to show, but never offers
// a downgrade. Deterministic for the same three inputs, no side
// effects.
//
// A feed version that cannot be parsed is never treated as newer: the
// result is false plus the wrapped *semver.ParseError for the caller
// to log.
func ShouldUpdate(f *Feed, currentVersion string, force bool) (bool, error) {
	current, err := semver.Parse(currentVersion)
	if err != nil {
		return false, fmt.Errorf("current version: %w", err)
	}

	offered, err := semver.Parse(f.Version)
	if err != nil {
		return false, fmt.Errorf("feed version: %w", err)
	}

	if force {
		return !offered.IsLessThan(current), nil
	}
	return offered.IsGreaterThan(current), nil
}

// Decide wraps ShouldUpdate into the outcome union the agent consumes.
func Decide(f *Feed, currentVersion string, force bool) (Decision, error) {
	ok, err := ShouldUpdate(f, currentVersion, force)
	if err != nil || !ok {
		return Decision{Outcome: NoUpdate}, err
	}
	if force {
		return Decision{Outcome: Forced, Feed: f}, nil
	}
	return Decision{Outcome: UpdateAvailable, Feed: f}, nil
}
