package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/texgate/internal/events"
)

const shownEvents = 8

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= shownEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var style lipgloss.Style
	switch e.Type {
	case events.TypeCompileSucceeded:
		style = theme.statusStyle(statusSucceeded)
	case events.TypeCompileFailed:
		style = theme.statusStyle(statusFailed)
	case events.TypeCompileTimedOut:
		style = theme.statusStyle(statusTimedOut)
	case events.TypeCompileError:
		style = theme.statusStyle(statusError)
	case events.TypeCompileStarted:
		style = theme.statusStyle(statusCompiling)
	default:
		style = theme.Highlight
	}

	return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-18s", e.Type)), describeEvent(e))
}

// describeEvent summarises the payload in one line.
func describeEvent(e events.Event) string {
	if e.Type == events.TypeWorkspaceSwept {
		var d events.SweepData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("removed %d stale workspace(s)", d.Deleted)
		}
	}

	var d events.CompileData
	if err := json.Unmarshal(e.Data, &d); err != nil || d.RequestID == "" {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{"[" + shortID(d.RequestID, 14) + "]"}
	switch e.Type {
	case events.TypeCompileStarted:
		parts = append(parts, formatBytes(d.SourceBytes)+" source")
		if d.TimeoutSec > 0 {
			parts = append(parts, fmt.Sprintf("timeout %.0fs", d.TimeoutSec))
		}
	case events.TypeCompileSucceeded:
		parts = append(parts, formatBytes(d.ArtifactBytes), fmt.Sprintf("%d pass(es)", d.Passes))
	default:
		if d.Reason != "" {
			parts = append(parts, d.Reason)
		}
		if d.ExitCode != nil {
			parts = append(parts, fmt.Sprintf("exit %d", *d.ExitCode))
		}
	}
	if d.DurationMS > 0 {
		parts = append(parts, fmt.Sprintf("%dms", d.DurationMS))
	}
	return strings.Join(parts, " ")
}
