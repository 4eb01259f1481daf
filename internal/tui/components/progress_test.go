package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressRatio(t *testing.T) {
	t.Parallel()

	require.Zero(t, NewProgress(0).Ratio(3))
	require.InDelta(t, 0.5, NewProgress(4).Ratio(2), 1e-9)
	require.InDelta(t, 1.0, NewProgress(4).Ratio(9), 1e-9)
}

func TestProgressView(t *testing.T) {
	t.Parallel()

	t.Run("renders label and bar", func(t *testing.T) {
		t.Parallel()
		view := NewProgress(10).View(5, "")
		require.Contains(t, view, "5/10")
		require.Greater(t, len(strings.TrimSpace(view)), len("5/10"))
	})

	t.Run("shows actual count beyond total", func(t *testing.T) {
		t.Parallel()
		require.Contains(t, NewProgress(2).View(3, ""), "3/2")
	})

	t.Run("appends running stage", func(t *testing.T) {
		t.Parallel()
		require.Contains(t, NewProgress(3).View(1, "align"), "align")
	})

	t.Run("width fallback", func(t *testing.T) {
		t.Parallel()
		p := NewProgressWidth(3, 0)
		require.Equal(t, defaultBarWidth, p.bar.Width)
	})
}
