package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultTimeout bounds a single fetch when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 2 * time.Minute

// HTTPFetcher retrieves content over HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with a bounded default timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

// NewHTTPFetcherWithClient creates an HTTPFetcher around a custom
// client (for testing).
func NewHTTPFetcherWithClient(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

// FetchText retrieves the content at url into memory.
func (f *HTTPFetcher) FetchText(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return data, nil
}

// FetchBinary streams the content at url into dst. On any failure the
// partially written file is removed before returning.
func (f *HTTPFetcher) FetchBinary(ctx context.Context, url, dst string) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		err := copyErr
		if err == nil {
			err = closeErr
		}
		return &FetchError{URL: url, Incomplete: true, Err: err}
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		_ = os.Remove(dst)
		return &FetchError{
			URL:        url,
			Incomplete: true,
			Err:        fmt.Errorf("got %d of %d bytes", written, resp.ContentLength),
		}
	}

	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
		}
	}

	return resp, nil
}

// SHA256File computes the hex-encoded SHA-256 digest of a file.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
