package agent

import "time"

// Status is the live view served on the diagnostics endpoint and by
// the status command.
type Status struct {
	App            string    `json:"app"`
	Version        string    `json:"version"`
	FeedURL        string    `json:"feed_url"`
	State          string    `json:"state"`
	LastCheck      time.Time `json:"last_check,omitzero"`
	LastOutcome    string    `json:"last_outcome,omitempty"`
	LastOffered    string    `json:"last_offered,omitempty"`
	SkippedVersion string    `json:"skipped_version,omitempty"`
}

// Status reports the agent's identity, lifecycle state and the last
// recorded outcome.
func (a *Agent) Status() Status {
	s := Status{
		App:     a.identity.Name,
		Version: a.identity.Version,
		FeedURL: a.identity.FeedURL,
		State:   a.State(),
	}
	if a.store != nil {
		st, err := a.store.Load()
		if err != nil {
			a.log.Error(err, "state file unreadable")
		}
		s.LastCheck = st.LastCheck
		s.LastOutcome = st.LastOutcome
		s.LastOffered = st.LastOffered
		s.SkippedVersion = st.SkippedVersion
	}
	return s
}
