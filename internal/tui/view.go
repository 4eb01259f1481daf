package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/batchrun/internal/model"
	"github.com/alexisbeaulieu97/batchrun/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	title := titleStyle.Render(fmt.Sprintf("batchrun • %s", m.title))
	if m.status != "" {
		title = lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", stateStyle.Render(m.state.String()))
	}
	sections = append(sections, title)

	running := ""
	if m.running != "" {
		running = runningStyle.Render("▶ " + m.running)
	}
	progress := components.NewProgressWidth(m.total, m.width/3).View(m.completed, running)
	sections = append(sections, sectionStyle.Render("Progress"), progress)

	entries := components.NewStageList(m.order, m.stages).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Stages"))
		sections = append(sections, renderStageEntries(entries))
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Failed:    m.failed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Status:    m.status,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}
	if m.err != nil {
		sections = append(sections, failureStyle.Render(m.err.Error()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderStageEntries(entries []components.StageEntry) string {
	var lines []string
	for _, entry := range entries {
		p := entry.Progress
		line := fmt.Sprintf(" %s %s", StatusIcon(p.Status), entry.Name)
		if strings.TrimSpace(p.Message) != "" {
			line = fmt.Sprintf("%s: %s", line, p.Message)
		}
		if p.Status == model.StatusFailed && p.ExitValue != 0 {
			line = fmt.Sprintf("%s [exit %d]", line, p.ExitValue)
		}
		if p.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, p.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// StatusIcon returns the glyph representing a stage status.
func StatusIcon(status string) string {
	switch status {
	case model.StatusSuccess:
		return successStyle.Render("✓")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	case model.StatusSkipped:
		return skippedStyle.Render("⊘")
	default:
		return pendingStyle.Render("…")
	}
}
