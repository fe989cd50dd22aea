// Package identity handles loading the application identity the agent
// updates on behalf of: who it is, where its feed lives, which key it
// trusts.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultCheckInterval is used when the identity file sets none.
const DefaultCheckInterval = 6 * time.Hour

// Identity describes the running application for the whole process
// lifetime. It is read once and never mutated.
type Identity struct {
	// Name identifies the application in logs, state files and metrics.
	Name string `yaml:"name" toml:"name" json:"name"`
	// Version is the current semantic version of the running application.
	Version string `yaml:"version" toml:"version" json:"version"`
	// FeedURL is the release feed to poll.
	FeedURL string `yaml:"feed_url" toml:"feed_url" json:"feed_url"`
	// PublicKeyPath points at the locally bundled public key used to
	// verify artifacts. Never fetched remotely.
	PublicKeyPath string `yaml:"public_key,omitempty" toml:"public_key,omitempty" json:"public_key,omitempty"`
	// CheckInterval is the watch-mode poll interval, e.g. "6h".
	CheckInterval string `yaml:"check_interval,omitempty" toml:"check_interval,omitempty" json:"check_interval,omitempty"`
}

// Interval returns the parsed check interval, or the default when the
// field is unset. Validate has already rejected unparsable values.
func (id *Identity) Interval() time.Duration {
	if id.CheckInterval == "" {
		return DefaultCheckInterval
	}
	d, err := time.ParseDuration(id.CheckInterval)
	if err != nil || d <= 0 {
		return DefaultCheckInterval
	}
	return d
}

// Find searches for an identity file in the standard locations.
// Returns the path to the first file found, or an error if none exists.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified identity file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check UPCAST_IDENTITY environment variable
	if envPath := os.Getenv("UPCAST_IDENTITY"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	// Build search paths in order of precedence
	var searchPaths []string

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	searchPaths = append(searchPaths, filepath.Join(xdgConfig, "upcast"))

	// Current directory last
	searchPaths = append(searchPaths, ".")

	fileNames := []string{
		"identity",
		"identity.yaml",
		"identity.yml",
		"identity.toml",
		"identity.json",
		"upcast.yaml",
		"upcast.toml",
		"upcast.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("no identity file found in standard locations")
}

// DefaultPath returns where `upcast init` writes a fresh identity file.
func DefaultPath() string {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig != "" {
		return filepath.Join(xdgConfig, "upcast", "identity.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "identity.yaml"
	}
	return filepath.Join(home, ".config", "upcast", "identity.yaml")
}

// Load reads and parses an identity file from the given path.
func Load(path string) (*Identity, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	id, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(id); err != nil {
		return nil, err
	}

	return id, nil
}
