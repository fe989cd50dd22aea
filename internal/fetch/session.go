package fetch

import (
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
)

// Session owns one artifact download: its collision-free destination
// path and completion state. A session is exclusive to a single check
// cycle and never reused.
type Session struct {
	ArtifactURL string
	Path        string
	complete    bool
}

// NewSession derives the local destination for an artifact download in
// the system temp directory.
func NewSession(artifactURL string) (*Session, error) {
	return NewSessionIn(os.TempDir(), artifactURL)
}

// NewSessionIn derives the destination under dir. The file name is a
// fresh token prefixed to the remote file name, so concurrent checks or
// app instances downloading the same remote name never collide.
func NewSessionIn(dir, artifactURL string) (*Session, error) {
	u, err := url.Parse(artifactURL)
	if err != nil {
		return nil, &FetchError{URL: artifactURL, Err: err}
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "artifact"
	}

	token := uuid.NewString()
	return &Session{
		ArtifactURL: artifactURL,
		Path:        filepath.Join(dir, token+"-"+name),
	}, nil
}

// MarkComplete records that the download finished whole.
func (s *Session) MarkComplete() {
	s.complete = true
}

// Complete reports whether the download finished whole.
func (s *Session) Complete() bool {
	return s.complete
}

// Discard removes the downloaded file if present. Safe to call whether
// or not the download ever started.
func (s *Session) Discard() error {
	err := os.Remove(s.Path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
