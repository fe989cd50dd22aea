// Package feed models the remote release descriptor and decides
// whether the release it describes should be offered as an update.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Feed is one parsed release descriptor. It lives for a single check
// cycle; nothing in it persists across checks.
type Feed struct {
	// Version is the semantic version of the offered release.
	Version string `json:"version"`
	// ArtifactURL locates the downloadable artifact.
	ArtifactURL string `json:"artifactUrl"`
	// Signature is an optional base64 signature over the artifact.
	// Absence is legal but insecure and must be surfaced by callers.
	Signature string `json:"signature,omitempty"`
	// Extensions preserves every field of the raw payload, including
	// ones the typed schema does not model.
	Extensions *Extensions `json:"-"`
}

// HasSignature reports whether the feed declares an artifact signature.
func (f *Feed) HasSignature() bool {
	return f.Signature != ""
}

// ParseError reports a feed payload that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed feed: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a raw feed payload into a Feed.
//
// Decoding is two independent passes over the same bytes: the first
// fills the typed fields, the second rebuilds the complete extension
// mapping. A field the typed schema rejects (say, a numeric version)
// therefore still survives in Extensions; only a syntactically invalid
// payload fails, with a *ParseError.
func Parse(raw []byte) (*Feed, error) {
	var f Feed
	if err := json.Unmarshal(raw, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, &ParseError{Err: err}
		}
		// Type mismatches leave the remaining typed fields intact.
	}

	ext, err := parseExtensions(raw)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	f.Extensions = ext

	return &f, nil
}
