package identity

import (
	"os"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		expected Format
	}{
		{"yaml extension", "identity.yaml", "", FormatYAML},
		{"yml extension", "identity.yml", "", FormatYAML},
		{"toml extension", "identity.toml", "", FormatTOML},
		{"json extension", "identity.json", "", FormatJSON},
		{"json content", "identity", `{"name": "demo"}`, FormatJSON},
		{"yaml content", "identity", `name: demo`, FormatYAML},
		{"toml content", "identity", `name = "demo"`, FormatTOML},
		{"empty content", "identity", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectFormat(tt.path, []byte(tt.content))
			if got != tt.expected {
				t.Errorf("detectFormat() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	os.Setenv("EMPTY_VAR", "")
	defer os.Unsetenv("TEST_VAR")
	defer os.Unsetenv("EMPTY_VAR")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "${TEST_VAR}", "test_value"},
		{"var with default", "${MISSING_VAR:-default_value}", "default_value"},
		{"existing var ignores default", "${TEST_VAR:-default_value}", "test_value"},
		{"empty var uses default", "${EMPTY_VAR:-default_value}", "default_value"},
		{"no var", "plain text", "plain text"},
		{"mixed content", "prefix ${TEST_VAR} suffix", "prefix test_value suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(expandEnvVars([]byte(tt.input)))
			if got != tt.expected {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	content := []byte(`
name: demo-app
version: 1.2.3
feed_url: https://updates.example.com/feed.json
public_key: /etc/upcast/demo.pub
check_interval: 6h
`)

	id, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if id.Name != "demo-app" {
		t.Errorf("Name = %s, want demo-app", id.Name)
	}

	if id.Version != "1.2.3" {
		t.Errorf("Version = %s, want 1.2.3", id.Version)
	}

	if id.FeedURL != "https://updates.example.com/feed.json" {
		t.Errorf("FeedURL = %s, want https://updates.example.com/feed.json", id.FeedURL)
	}

	if id.PublicKeyPath != "/etc/upcast/demo.pub" {
		t.Errorf("PublicKeyPath = %s, want /etc/upcast/demo.pub", id.PublicKeyPath)
	}

	if id.CheckInterval != "6h" {
		t.Errorf("CheckInterval = %s, want 6h", id.CheckInterval)
	}
}

func TestParseTOML(t *testing.T) {
	content := []byte(`
name = "demo-app"
version = "1.2.3"
feed_url = "https://updates.example.com/feed.json"
check_interval = "30m"
`)

	id, err := parse(content, FormatTOML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if id.Name != "demo-app" {
		t.Errorf("Name = %s, want demo-app", id.Name)
	}

	if id.CheckInterval != "30m" {
		t.Errorf("CheckInterval = %s, want 30m", id.CheckInterval)
	}
}

func TestParseJSON(t *testing.T) {
	content := []byte(`{
  "name": "demo-app",
  "version": "1.2.3",
  "feed_url": "https://updates.example.com/feed.json"
}`)

	id, err := parse(content, FormatJSON)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if id.Name != "demo-app" {
		t.Errorf("Name = %s, want demo-app", id.Name)
	}

	if id.PublicKeyPath != "" {
		t.Errorf("PublicKeyPath = %s, want empty", id.PublicKeyPath)
	}
}

func TestParseEnvVarExpansion(t *testing.T) {
	os.Setenv("UPCAST_FEED", "https://staging.example.com/feed.json")
	defer os.Unsetenv("UPCAST_FEED")

	content := []byte(`
name: demo-app
version: 1.2.3
feed_url: ${UPCAST_FEED}
`)

	id, err := parse(content, FormatYAML)
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}

	if id.FeedURL != "https://staging.example.com/feed.json" {
		t.Errorf("FeedURL = %s, want https://staging.example.com/feed.json", id.FeedURL)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := parse([]byte(`name: [unclosed`), FormatYAML); err == nil {
		t.Error("parse() should fail on malformed YAML")
	}

	if _, err := parse([]byte(`{"name": `), FormatJSON); err == nil {
		t.Error("parse() should fail on malformed JSON")
	}
}
