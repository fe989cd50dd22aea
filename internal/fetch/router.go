package fetch

import (
	"context"
	"strings"
)

// Router dispatches each URL to the fetcher for its scheme. A feed
// served from object storage can still point its artifacts at a plain
// HTTPS mirror, so the choice is made per URL, not per agent.
type Router struct {
	web Fetcher
	s3  Fetcher
}

// NewRouter creates a Router sending s3:// URLs to s3Fetcher and
// everything else to webFetcher.
func NewRouter(webFetcher, s3Fetcher Fetcher) *Router {
	return &Router{web: webFetcher, s3: s3Fetcher}
}

func (r *Router) pick(url string) Fetcher {
	if strings.HasPrefix(url, "s3://") {
		return r.s3
	}
	return r.web
}

// FetchText retrieves the content at url into memory.
func (r *Router) FetchText(ctx context.Context, url string) ([]byte, error) {
	return r.pick(url).FetchText(ctx, url)
}

// FetchBinary streams the content at url into dst.
func (r *Router) FetchBinary(ctx context.Context, url, dst string) error {
	return r.pick(url).FetchBinary(ctx, url, dst)
}
