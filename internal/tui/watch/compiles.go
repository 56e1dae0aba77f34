package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/texgate/internal/events"
)

const (
	statusCompiling = "compiling"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusTimedOut  = "timed_out"
	statusError     = "error"

	maxRecent = 20
)

// CompileState tracks one request seen on the event stream.
type CompileState struct {
	RequestID     string
	Principal     string
	SourceBytes   int
	Status        string
	Reason        string
	Passes        int
	ArtifactBytes int
	Started       time.Time
	Duration      time.Duration
}

// Stats counts terminal outcomes since the watcher started.
type Stats struct {
	Succeeded int
	Failed    int
	TimedOut  int
	Errored   int
	Swept     int
}

// compileTracker folds compile.* events into in-flight and recent requests.
type compileTracker struct {
	active map[string]*CompileState
	recent []*CompileState // newest first
	stats  Stats
}

func newCompileTracker() *compileTracker {
	return &compileTracker{active: make(map[string]*CompileState)}
}

func (t *compileTracker) apply(e events.Event) {
	if e.Type == events.TypeWorkspaceSwept {
		var d events.SweepData
		if json.Unmarshal(e.Data, &d) == nil {
			t.stats.Swept += d.Deleted
		}
		return
	}

	var d events.CompileData
	if err := json.Unmarshal(e.Data, &d); err != nil || d.RequestID == "" {
		return
	}

	if e.Type == events.TypeCompileStarted {
		t.active[d.RequestID] = &CompileState{
			RequestID:   d.RequestID,
			Principal:   d.Principal,
			SourceBytes: d.SourceBytes,
			Status:      statusCompiling,
			Started:     e.At,
		}
		return
	}

	var status string
	switch e.Type {
	case events.TypeCompileSucceeded:
		status = statusSucceeded
		t.stats.Succeeded++
	case events.TypeCompileFailed:
		status = statusFailed
		t.stats.Failed++
	case events.TypeCompileTimedOut:
		status = statusTimedOut
		t.stats.TimedOut++
	case events.TypeCompileError:
		status = statusError
		t.stats.Errored++
	default:
		return
	}

	c, ok := t.active[d.RequestID]
	if !ok {
		// Started before we connected.
		c = &CompileState{RequestID: d.RequestID, Principal: d.Principal, SourceBytes: d.SourceBytes}
	}
	delete(t.active, d.RequestID)

	c.Status = status
	c.Reason = d.Reason
	c.Passes = d.Passes
	c.ArtifactBytes = d.ArtifactBytes
	c.Duration = time.Duration(d.DurationMS) * time.Millisecond

	t.recent = append([]*CompileState{c}, t.recent...)
	if len(t.recent) > maxRecent {
		t.recent = t.recent[:maxRecent]
	}
}

// activeSorted returns in-flight compiles, oldest first.
func (t *compileTracker) activeSorted() []*CompileState {
	out := make([]*CompileState, 0, len(t.active))
	for _, c := range t.active {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func newCompileTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Request", Width: 14},
			{Title: "Caller", Width: 12},
			{Title: "Source", Width: 8},
			{Title: "Passes", Width: 6},
			{Title: "Result", Width: 18},
			{Title: "Time", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// rows lists in-flight compiles first, then recent results.
func (t *compileTracker) rows(now time.Time) []table.Row {
	var rows []table.Row
	for _, c := range t.activeSorted() {
		rows = append(rows, compileRow(c, now.Sub(c.Started)))
	}
	for _, c := range t.recent {
		rows = append(rows, compileRow(c, c.Duration))
	}
	return rows
}

func compileRow(c *CompileState, d time.Duration) table.Row {
	result := c.Status
	switch {
	case c.Status == statusSucceeded:
		result = formatBytes(c.ArtifactBytes)
	case c.Reason != "":
		result = c.Reason
	}
	passes := "-"
	if c.Passes > 0 {
		passes = fmt.Sprintf("%d", c.Passes)
	}
	return table.Row{
		statusGlyph(c.Status),
		shortID(c.RequestID, 14),
		shortID(c.Principal, 12),
		formatBytes(c.SourceBytes),
		passes,
		result,
		formatElapsed(d),
	}
}

func statusGlyph(status string) string {
	switch status {
	case statusSucceeded:
		return "✓"
	case statusFailed:
		return "✗"
	case statusTimedOut:
		return "⏱"
	case statusError:
		return "!"
	default:
		return "…"
	}
}

func shortID(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
