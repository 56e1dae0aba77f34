// Package watch implements `texgate watch`, a live terminal view of a running
// gateway built from GET /events and GET /health.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusTimeout lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	teal := lipgloss.Color("#2AA198")

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00D75F")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD75F")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
		StatusTimeout: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00D75F")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// statusStyle picks the colour for a compile status.
func (t Theme) statusStyle(status string) lipgloss.Style {
	switch status {
	case statusSucceeded:
		return t.StatusOK
	case statusCompiling:
		return t.StatusRunning
	case statusTimedOut:
		return t.StatusTimeout
	case statusFailed, statusError:
		return t.StatusFailed
	default:
		return t.Dim
	}
}
