package archive

import (
	"fmt"
)

// DefaultKeepCount is the default number of archived artifacts to retain.
const DefaultKeepCount = 5

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []Info `json:"deleted"`
	Kept    int    `json:"kept"`
}

// Prune removes old entries, keeping only the most recent N.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	infos, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}

	// Entries are already sorted newest first
	if len(infos) <= keep {
		result.Kept = len(infos)
		return result, nil
	}

	toDelete := infos[keep:]
	result.Kept = keep

	for _, info := range toDelete {
		if err := m.Delete(info.ID); err != nil {
			return nil, fmt.Errorf("failed to delete entry %s: %w", info.ID, err)
		}
		result.Deleted = append(result.Deleted, info)
	}

	return result, nil
}
