package view

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/reims-io/docflow/internal/document"
)

// FormatBytes formats a byte size into a human-readable string.
func FormatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

// FormatTime formats an upload timestamp for the documents table.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

var (
	styleQueued     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleProcessing = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleProcessed  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styleFailed     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// RenderState colors a processing state for display.
func RenderState(s document.State) string {
	switch s {
	case document.StateProcessing:
		return styleProcessing.Render(string(s))
	case document.StateProcessed:
		return styleProcessed.Render(string(s))
	case document.StateFailed:
		return styleFailed.Render(string(s))
	}

	return styleQueued.Render(string(s))
}
