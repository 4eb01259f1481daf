package components

import (
	"github.com/alexisbeaulieu97/batchrun/internal/model"
)

// StageEntry represents a single stage for rendering.
type StageEntry struct {
	Name     string
	Progress model.StageProgress
}

// StageList renders pipeline stages in execution order.
type StageList struct {
	entries []StageEntry
}

// NewStageList constructs a stage list component.
func NewStageList(order []string, stages map[string]model.StageProgress) StageList {
	entries := make([]StageEntry, 0, len(order))
	for _, name := range order {
		entries = append(entries, StageEntry{Name: name, Progress: stages[name]})
	}
	return StageList{entries: entries}
}

// Entries returns the ordered stage entries.
func (s StageList) Entries() []StageEntry {
	clone := make([]StageEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}
