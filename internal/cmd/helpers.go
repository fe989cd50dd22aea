package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/archive"
	"github.com/upcast-io/upcast/internal/fetch"
	"github.com/upcast-io/upcast/internal/identity"
	"github.com/upcast-io/upcast/internal/state"
	"github.com/upcast-io/upcast/internal/telemetry"
)

// loadIdentity finds and loads the identity file, honoring --identity.
func loadIdentity() (*identity.Identity, error) {
	path, err := identity.Find(identityPath)
	if err != nil {
		return nil, err
	}
	return identity.Load(path)
}

// buildAgent wires an agent for the given identity with persistent
// bookkeeping and the artifact archive attached.
func buildAgent(id *identity.Identity, cfg agent.Config) (*agent.Agent, error) {
	cfg.Identity = id
	cfg.Logger = rootLog

	if cfg.Fetcher == nil && strings.HasPrefix(id.FeedURL, "s3://") {
		s3f, err := s3FetcherFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Fetcher = fetch.NewRouter(fetch.NewHTTPFetcher(), s3f)
	}
	if cfg.Store == nil {
		store, err := state.NewStore(id.Name)
		if err != nil {
			return nil, err
		}
		cfg.Store = store
	}
	if cfg.Archive == nil {
		mgr, err := archive.NewManager(id.Name, upcastVersion)
		if err != nil {
			return nil, err
		}
		cfg.Archive = mgr
	}
	if cfg.Recorder == nil {
		cfg.Recorder = telemetry.Nop{}
	}

	return agent.New(cfg)
}

// s3FetcherFromEnv builds an S3 fetcher from the standard AWS
// environment, AWS_ENDPOINT_URL overrides the endpoint for
// S3-compatible stores.
func s3FetcherFromEnv() (*fetch.S3Fetcher, error) {
	opts := &fetch.S3Options{
		Endpoint:        "s3.amazonaws.com",
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		UseSSL:          true,
	}
	switch ep := os.Getenv("AWS_ENDPOINT_URL"); {
	case strings.HasPrefix(ep, "https://"):
		opts.Endpoint = strings.TrimPrefix(ep, "https://")
	case strings.HasPrefix(ep, "http://"):
		opts.Endpoint = strings.TrimPrefix(ep, "http://")
		opts.UseSSL = false
	case ep != "":
		opts.Endpoint = ep
	}
	return fetch.NewS3Fetcher(opts)
}

// formatSize formats a byte size as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
