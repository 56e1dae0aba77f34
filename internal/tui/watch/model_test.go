package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/texgate/internal/auth"
	"github.com/mattjoyce/texgate/internal/events"
)

func compileEvent(t *testing.T, id int64, typ string, at time.Time, d events.CompileData) events.Event {
	t.Helper()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.Event{ID: id, Type: typ, At: at, Data: raw}
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive",
		"",
		"id: 7",
		"event: compile.started",
		`data: {"request_id":"r1","source_bytes":42}`,
		"",
		"id: 8",
		"event: compile.succeeded",
		`data: {"request_id":"r1","passes":2}`,
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	if err := readSSE(strings.NewReader(stream), ch); err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != 7 || got[0].Type != events.TypeCompileStarted {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].ID != 8 || got[1].Type != events.TypeCompileSucceeded {
		t.Fatalf("second event = %+v", got[1])
	}
	var d events.CompileData
	if err := json.Unmarshal(got[0].Data, &d); err != nil || d.SourceBytes != 42 {
		t.Fatalf("data = %s (%v)", got[0].Data, err)
	}
}

func TestCompileTrackerLifecycle(t *testing.T) {
	tr := newCompileTracker()
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tr.apply(compileEvent(t, 1, events.TypeCompileStarted, t0, events.CompileData{RequestID: "a", SourceBytes: 10}))
	tr.apply(compileEvent(t, 2, events.TypeCompileStarted, t0.Add(time.Second), events.CompileData{RequestID: "b"}))
	if len(tr.active) != 2 {
		t.Fatalf("active = %d, want 2", len(tr.active))
	}

	tr.apply(compileEvent(t, 3, events.TypeCompileSucceeded, t0.Add(2*time.Second), events.CompileData{RequestID: "a", Passes: 2, ArtifactBytes: 2048, DurationMS: 1500}))
	tr.apply(compileEvent(t, 4, events.TypeCompileTimedOut, t0.Add(3*time.Second), events.CompileData{RequestID: "c", Reason: "timeout"}))

	if len(tr.active) != 1 {
		t.Fatalf("active = %d, want 1", len(tr.active))
	}
	if tr.stats.Succeeded != 1 || tr.stats.TimedOut != 1 {
		t.Fatalf("stats = %+v", tr.stats)
	}
	if len(tr.recent) != 2 || tr.recent[0].RequestID != "c" || tr.recent[1].RequestID != "a" {
		t.Fatalf("recent order wrong: %+v", tr.recent)
	}
	if tr.recent[1].Duration != 1500*time.Millisecond || tr.recent[1].SourceBytes != 10 {
		t.Fatalf("finished state = %+v", tr.recent[1])
	}

	rows := tr.rows(t0.Add(4 * time.Second))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0][1] != "b" || rows[0][0] != statusGlyph(statusCompiling) {
		t.Fatalf("first row should be in-flight b, got %v", rows[0])
	}
	if rows[2][5] != "2.0K" {
		t.Fatalf("success result = %q, want artifact size", rows[2][5])
	}
}

func TestCompileTrackerIgnoresUnknown(t *testing.T) {
	tr := newCompileTracker()
	tr.apply(events.Event{ID: 1, Type: events.TypeCompileStarted, Data: json.RawMessage(`not json`)})
	tr.apply(events.Event{ID: 2, Type: "other", Data: json.RawMessage(`{"request_id":"x"}`)})
	tr.apply(events.Event{ID: 3, Type: events.TypeWorkspaceSwept, Data: json.RawMessage(`{"deleted":3}`)})

	if len(tr.active) != 0 || len(tr.recent) != 0 {
		t.Fatalf("unexpected state: active=%d recent=%d", len(tr.active), len(tr.recent))
	}
	if tr.stats.Swept != 3 {
		t.Fatalf("swept = %d, want 3", tr.stats.Swept)
	}
}

func TestRecentIsBounded(t *testing.T) {
	tr := newCompileTracker()
	for i := range maxRecent + 5 {
		tr.apply(compileEvent(t, int64(i+1), events.TypeCompileFailed, time.Now(),
			events.CompileData{RequestID: string(rune('a' + i))}))
	}
	if len(tr.recent) != maxRecent {
		t.Fatalf("recent = %d, want %d", len(tr.recent), maxRecent)
	}
	if tr.stats.Failed != maxRecent+5 {
		t.Fatalf("failed = %d", tr.stats.Failed)
	}
}

func TestModelUpdate(t *testing.T) {
	m := New("http://127.0.0.1:0", "key")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	var model tea.Model = *m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model, _ = model.Update(eventMsg(compileEvent(t, 5, events.TypeCompileStarted, fixed, events.CompileData{RequestID: "req-1", SourceBytes: 100})))
	model, _ = model.Update(eventMsg(compileEvent(t, 3, events.TypeCompileStarted, fixed, events.CompileData{RequestID: "req-0"})))

	var h healthMsg
	h.Status = "healthy"
	h.Service = "texgate"
	h.Engine.Available = true
	h.Engine.Version = "pdfTeX 3.14"
	model, _ = model.Update(h)

	got := model.(Model)
	if got.lastEventID != 5 {
		t.Fatalf("lastEventID = %d, want 5", got.lastEventID)
	}
	if len(got.eventLog) != 2 || got.eventLog[0].ID != 3 {
		t.Fatalf("event log should be newest first: %+v", got.eventLog)
	}
	if !got.health.Connected || got.health.EngineVersion != "pdfTeX 3.14" {
		t.Fatalf("health = %+v", got.health)
	}

	view := got.View()
	for _, want := range []string{"TEXGATE WATCH", "in flight", "EVENT STREAM", "pdfTeX 3.14"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}

	model, _ = model.Update(sseDisconnectedMsg{})
	got = model.(Model)
	if got.health.Connected || got.lastError == "" {
		t.Fatalf("disconnect not reflected: connected=%v err=%q", got.health.Connected, got.lastError)
	}
	if got.lastEventID != 5 {
		t.Fatalf("lastEventID lost on disconnect: %d", got.lastEventID)
	}
}

func TestViewBeforeResize(t *testing.T) {
	m := New("http://example.test", "")
	if got := m.View(); !strings.Contains(got, "Connecting to http://example.test") {
		t.Fatalf("view = %q", got)
	}
}

func TestFetchHealthSendsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Header.Get(auth.HeaderName) != "secret" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"texgate","active_workspaces":2,"engine":{"available":true,"version":"v1"}}`))
	}))
	t.Cleanup(srv.Close)

	msg := fetchHealth(srv.URL, "secret")
	h, ok := msg.(healthMsg)
	if !ok {
		t.Fatalf("got %T (%v), want healthMsg", msg, msg)
	}
	if h.ActiveWorkspaces != 2 || h.Engine.Version != "v1" {
		t.Fatalf("health = %+v", h)
	}

	if _, ok := fetchHealth(srv.URL, "wrong").(errMsg); !ok {
		t.Fatal("expected errMsg for rejected key")
	}
}

func TestSubscribeResumesFromLastID(t *testing.T) {
	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("id: 10\nevent: compile.started\ndata: {\"request_id\":\"z\"}\n\n"))
	}))
	t.Cleanup(srv.Close)

	ch := make(chan events.Event, 1)
	msg := subscribeToEvents(srv.URL, "k", 9, ch)()
	if d, ok := msg.(sseDisconnectedMsg); !ok || d.err != nil {
		t.Fatalf("got %#v, want clean disconnect", msg)
	}
	if got := <-seen; got != "9" {
		t.Fatalf("Last-Event-ID = %q, want 9", got)
	}
	if e := <-ch; e.ID != 10 {
		t.Fatalf("event id = %d, want 10", e.ID)
	}
}
