package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks gateway health from /health polling.
type HealthState struct {
	Service          string
	Status           string
	UptimeSeconds    int64
	ActiveWorkspaces int
	EngineVersion    string
	EngineAvailable  bool
	Connected        bool
	LastCheck        time.Time
}

func renderHeader(health HealthState, stats Stats, ticker Ticker, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("HEALTHY")
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
	case !health.EngineAvailable:
		statusText = theme.StatusTimeout.Render("NO ENGINE")
	case health.Status != "healthy" && health.Status != "":
		statusText = theme.StatusFailed.Render(strings.ToUpper(health.Status))
	}

	lastEventStr := "never"
	if !activity.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	name := health.Service
	if name == "" {
		name = "texgate"
	}
	titleText := fmt.Sprintf(" %s WATCH %s", strings.ToUpper(name), theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	engine := health.EngineVersion
	if engine == "" {
		engine = "unknown"
	}
	statsLine := fmt.Sprintf(" %s  up %s  workspaces: %d  engine: %s",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.ActiveWorkspaces,
		engine,
	)

	countsLine := fmt.Sprintf(" %s %d  %s %d  %s %d  %s %d  swept %d",
		theme.StatusOK.Render("ok"), stats.Succeeded,
		theme.StatusFailed.Render("failed"), stats.Failed,
		theme.StatusTimeout.Render("timeout"), stats.TimedOut,
		theme.StatusFailed.Render("error"), stats.Errored,
		stats.Swept,
	)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, activity.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, countsLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
