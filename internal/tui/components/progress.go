package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const defaultBarWidth = 30

// Progress renders how many pipeline stages have finished.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress component for total stages.
func NewProgress(total int) Progress {
	return NewProgressWidth(total, defaultBarWidth)
}

// NewProgressWidth sizes the bar to width cells; non-positive widths fall back to the default.
func NewProgressWidth(total, width int) Progress {
	if width <= 0 {
		width = defaultBarWidth
	}
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = width
	return Progress{bar: bar, total: total}
}

// Ratio is the completed fraction, capped at one.
func (p Progress) Ratio(completed int) float64 {
	if p.total <= 0 {
		return 0
	}
	return math.Min(1.0, float64(completed)/float64(p.total))
}

// View renders the bar for completed stages. A running stage adds a marker to the label.
func (p Progress) View(completed int, running string) string {
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	view := lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(p.Ratio(completed)))
	if running != "" {
		view = lipgloss.JoinHorizontal(lipgloss.Left, view, "  ", running)
	}
	return view
}
