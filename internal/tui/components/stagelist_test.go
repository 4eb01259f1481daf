package components

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
)

func TestNewStageList(t *testing.T) {
	t.Parallel()

	t.Run("creates empty list", func(t *testing.T) {
		t.Parallel()
		sl := NewStageList(nil, map[string]model.StageProgress{})
		require.Empty(t, sl.Entries())
	})

	t.Run("respects provided order", func(t *testing.T) {
		t.Parallel()
		order := []string{"align", "split", "merge"}
		stages := map[string]model.StageProgress{
			"split": {StageName: "split", Status: model.StatusSuccess},
			"align": {StageName: "align", Status: model.StatusRunning},
		}

		entries := NewStageList(order, stages).Entries()
		require.Len(t, entries, 3)
		require.Equal(t, "align", entries[0].Name)
		require.Equal(t, model.StatusRunning, entries[0].Progress.Status)
		require.Equal(t, "split", entries[1].Name)
		require.Equal(t, "merge", entries[2].Name)
		require.Empty(t, entries[2].Progress.Status)
	})

	t.Run("entries are a copy", func(t *testing.T) {
		t.Parallel()
		sl := NewStageList([]string{"a"}, map[string]model.StageProgress{"a": {Status: model.StatusPending}})
		entries := sl.Entries()
		entries[0].Name = "changed"
		require.Equal(t, "a", sl.Entries()[0].Name)
	})
}
