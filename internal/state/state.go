// Package state persists the agent's durable bookkeeping between runs:
// which version the user skipped, when the last check ran and how it
// ended. Stored separately from the identity file to avoid write races.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the on-disk record. A zero State is a valid starting point.
type State struct {
	// SkippedVersion is a version the user declined; offers for it are
	// suppressed on normal checks. Forced checks ignore it.
	SkippedVersion string `json:"skipped_version,omitempty"`
	// LastCheck is when the most recent check finished.
	LastCheck time.Time `json:"last_check,omitzero"`
	// LastOutcome is the result of the most recent check.
	LastOutcome string `json:"last_outcome,omitempty"`
	// LastOffered is the version most recently offered to the user.
	LastOffered string `json:"last_offered,omitempty"`
}

// Store reads and writes the state file for one application.
type Store struct {
	path string
}

// NewStore places the state file under $XDG_STATE_HOME/upcast or
// ~/.local/state/upcast, keyed by application name.
func NewStore(appName string) (*Store, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return &Store{path: filepath.Join(stateHome, "upcast", appName+".json")}, nil
}

// NewStoreAt uses an explicit file path. Used in tests.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file yields a fresh zero state.
// A corrupt file also yields a fresh state, plus the parse error so the
// caller can warn; losing bookkeeping must never block an update check.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return &State{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return &State{}, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the state file, creating parent directories as needed.
func (s *Store) Save(st *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// SkipVersion records a version the user declined.
func (s *Store) SkipVersion(version string) error {
	st, _ := s.Load()
	st.SkippedVersion = version
	return s.Save(st)
}

// ClearSkippedVersion removes any skip record.
func (s *Store) ClearSkippedVersion() error {
	st, _ := s.Load()
	if st.SkippedVersion == "" {
		return nil
	}
	st.SkippedVersion = ""
	return s.Save(st)
}

// RecordCheck notes the outcome of a finished check.
func (s *Store) RecordCheck(outcome, offeredVersion string) error {
	st, _ := s.Load()
	st.LastCheck = time.Now().UTC()
	st.LastOutcome = outcome
	st.LastOffered = offeredVersion
	return s.Save(st)
}
