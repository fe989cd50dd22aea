// Package fetch retrieves feed documents and release artifacts.
package fetch

import (
	"context"
	"fmt"
)

// Fetcher retrieves remote content for the agent. Any conforming
// implementation is substitutable, including test doubles returning
// canned payloads.
type Fetcher interface {
	// FetchText retrieves the content at url, typically a feed document.
	FetchText(ctx context.Context, url string) ([]byte, error)
	// FetchBinary streams the content at url into the file at dst.
	// A partial file is never left behind on failure.
	FetchBinary(ctx context.Context, url, dst string) error
}

// FetchError is the single failure type fetchers surface; transport
// errors never escape raw.
type FetchError struct {
	URL string
	// StatusCode is set when an HTTP response was received.
	StatusCode int
	// Incomplete marks a download that ended short of the declared
	// length. The partial file has already been removed.
	Incomplete bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Incomplete:
		return fmt.Sprintf("incomplete download of %s: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
