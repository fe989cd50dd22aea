package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the identity file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} syntax
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// detectFormat determines the file format from extension or content.
func detectFormat(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// No recognized extension, sniff the content
	return sniffFormat(content)
}

// sniffFormat attempts to detect format from content.
func sniffFormat(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return FormatUnknown
	}

	// JSON identity documents are objects, never arrays
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}

	// A leading [ is a TOML table header
	if strings.HasPrefix(trimmed, "[") {
		return FormatTOML
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// TOML uses = for assignment, YAML uses :
		if strings.Contains(line, "=") && !strings.Contains(line, ":") {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}

	return FormatUnknown
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		varName := string(groups[1])
		defaultVal := string(groups[2])

		// Shell :- semantics, the default applies when unset or empty.
		if val, ok := os.LookupEnv(varName); ok && val != "" {
			return []byte(val)
		}
		return []byte(defaultVal)
	})
}

// parse unmarshals identity content in the given format.
func parse(content []byte, format Format) (*Identity, error) {
	expanded := expandEnvVars(content)

	var id Identity
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(expanded, &id); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &id); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(expanded, &id); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return &id, nil
}
