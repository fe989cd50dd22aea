// Package archive keeps verified downloaded artifacts on disk so a
// release can be inspected or re-applied without fetching it again.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/upcast-io/upcast/internal/fetch"
)

// Entry represents a single archived artifact.
type Entry struct {
	ID           string    `json:"id"`
	Version      string    `json:"version"`
	ArchivedAt   time.Time `json:"archived_at"`
	SourceURL    string    `json:"source_url"`
	SHA256       string    `json:"sha256"`
	ArtifactFile string    `json:"artifact_file"`
	Verdict      string    `json:"verdict"`
	AgentVersion string    `json:"agent_version"`
}

// Info provides summary information about an entry for listing.
type Info struct {
	ID         string    `json:"id"`
	Version    string    `json:"version"`
	ArchivedAt time.Time `json:"archived_at"`
	Verdict    string    `json:"verdict"`
	Size       int64     `json:"size"`
}

// Manager handles archive operations for one application.
type Manager struct {
	archiveDir   string
	agentVersion string
}

// NewManager creates an archive manager rooted in the XDG cache dir.
func NewManager(appName, agentVersion string) (*Manager, error) {
	archiveDir, err := getArchiveDir(appName)
	if err != nil {
		return nil, err
	}
	return &Manager{
		archiveDir:   archiveDir,
		agentVersion: agentVersion,
	}, nil
}

// NewManagerWithDir creates an archive manager with a custom directory (for testing).
func NewManagerWithDir(archiveDir, agentVersion string) *Manager {
	return &Manager{
		archiveDir:   archiveDir,
		agentVersion: agentVersion,
	}
}

// getArchiveDir returns the default archive directory path.
func getArchiveDir(appName string) (string, error) {
	// Use XDG_CACHE_HOME or default to ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "upcast", "artifacts", appName), nil
}

// Add copies a downloaded artifact into the archive and records its
// metadata. The original file is left in place.
func (m *Manager) Add(artifactPath, version, sourceURL, verdict string) (*Entry, error) {
	if err := os.MkdirAll(m.archiveDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	sum, err := fetch.SHA256File(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash artifact: %w", err)
	}

	now := time.Now()
	id := fmt.Sprintf("%s-%s", now.Format("2006-01-02-150405"), version)
	artifactFile := fmt.Sprintf("%s-%s", id, filepath.Base(artifactPath))

	if err := copyFile(artifactPath, filepath.Join(m.archiveDir, artifactFile)); err != nil {
		return nil, fmt.Errorf("failed to copy artifact: %w", err)
	}

	entry := &Entry{
		ID:           id,
		Version:      version,
		ArchivedAt:   now,
		SourceURL:    sourceURL,
		SHA256:       sum,
		ArtifactFile: artifactFile,
		Verdict:      verdict,
		AgentVersion: m.agentVersion,
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal archive entry: %w", err)
	}

	path := filepath.Join(m.archiveDir, id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write archive entry: %w", err)
	}

	return entry, nil
}

// List returns all entries sorted by archive time (newest first).
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}

		entry, err := m.loadEntry(filepath.Join(m.archiveDir, e.Name()))
		if err != nil {
			continue
		}

		var size int64
		if fi, err := os.Stat(filepath.Join(m.archiveDir, entry.ArtifactFile)); err == nil {
			size = fi.Size()
		}

		infos = append(infos, Info{
			ID:         entry.ID,
			Version:    entry.Version,
			ArchivedAt: entry.ArchivedAt,
			Verdict:    entry.Verdict,
			Size:       size,
		})
	}

	// Sort by archive time, newest first
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ArchivedAt.After(infos[j].ArchivedAt)
	})

	return infos, nil
}

// Get retrieves an entry by ID. Use "latest" for the most recent entry.
func (m *Manager) Get(id string) (*Entry, error) {
	if id == "latest" {
		infos, err := m.List()
		if err != nil {
			return nil, err
		}
		if len(infos) == 0 {
			return nil, fmt.Errorf("no archived artifacts found")
		}
		id = infos[0].ID
	}

	return m.loadEntry(filepath.Join(m.archiveDir, id+".json"))
}

// ArtifactPath returns the on-disk location of an entry's artifact.
func (m *Manager) ArtifactPath(entry *Entry) string {
	return filepath.Join(m.archiveDir, entry.ArtifactFile)
}

// Delete removes an entry and its artifact by ID.
func (m *Manager) Delete(id string) error {
	path := filepath.Join(m.archiveDir, id+".json")

	entry, err := m.loadEntry(path)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(m.archiveDir, entry.ArtifactFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete archive entry: %w", err)
	}

	return nil
}

// loadEntry reads and parses an entry file.
func (m *Manager) loadEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive entry not found: %s", filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read archive entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse archive entry: %w", err)
	}

	return &entry, nil
}

// Dir returns the archive directory path.
func (m *Manager) Dir() string {
	return m.archiveDir
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
