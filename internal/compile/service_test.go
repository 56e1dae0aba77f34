package compile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/texgate/internal/config"
	"github.com/mattjoyce/texgate/internal/engine"
	"github.com/mattjoyce/texgate/internal/engine/enginetest"
	gwerr "github.com/mattjoyce/texgate/internal/errors"
	"github.com/mattjoyce/texgate/internal/events"
	"github.com/mattjoyce/texgate/internal/journal"
	"github.com/mattjoyce/texgate/internal/log"
	"github.com/mattjoyce/texgate/internal/workspace"
)

const helloSource = `\documentclass{article}\begin{document}hello\end{document}`

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type recordingJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (r *recordingJournal) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingJournal) all() []journal.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]journal.Entry(nil), r.entries...)
}

type harness struct {
	svc     *Service
	hub     *events.Hub
	journal *recordingJournal
	baseDir string
}

func newHarness(t *testing.T, script string, mutate ...func(*config.EngineConfig)) *harness {
	t.Helper()
	cfg := enginetest.Config(enginetest.Write(t, script))
	for _, m := range mutate {
		m(&cfg)
	}
	baseDir := filepath.Join(t.TempDir(), "workspaces")
	mgr, err := workspace.NewFSManager(baseDir)
	require.NoError(t, err)

	h := &harness{hub: events.NewHub(64), journal: &recordingJournal{}, baseDir: baseDir}
	h.svc = NewService(engine.New(cfg), mgr, cfg, WithEvents(h.hub), WithJournal(h.journal))
	return h
}

func (h *harness) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.baseDir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "workspaces left on disk")
	assert.Equal(t, 0, h.svc.ActiveWorkspaces())
}

func (h *harness) eventTypes() []string {
	var types []string
	for _, ev := range h.hub.SnapshotSince(0) {
		types = append(types, ev.Type)
	}
	return types
}

func TestCompileSuccess(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	res, err := h.svc.Compile(context.Background(), Request{ID: "req-1", Source: helloSource, Principal: "p"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(res.Artifact), enginetest.PDFMagic))
	assert.Equal(t, "document.pdf", res.Name)
	assert.Equal(t, 2, res.Passes)
	h.assertNoWorkspaces(t)

	assert.Equal(t, []string{events.TypeCompileStarted, events.TypeCompileSucceeded}, h.eventTypes())

	entries := h.journal.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].RequestID)
	assert.Equal(t, journal.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, len(res.Artifact), entries[0].ArtifactBytes)
	assert.Equal(t, len(helloSource), entries[0].SourceBytes)
}

func TestCompileBrokenSource(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	_, err := h.svc.Compile(context.Background(), Request{ID: "req-2", Source: `\broken{`})
	require.Error(t, err)
	e, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindCompiler, e.Kind)
	assert.Equal(t, gwerr.ReasonNonzeroExit, e.Reason)
	require.NotNil(t, e.Diagnostics)
	require.NotNil(t, e.Diagnostics.ExitCode)
	assert.Equal(t, 1, *e.Diagnostics.ExitCode)
	assert.NotEmpty(t, e.Diagnostics.StderrTail)
	assert.Contains(t, e.Diagnostics.LogTail, "Emergency stop")
	h.assertNoWorkspaces(t)

	snap := h.hub.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, events.TypeCompileFailed, snap[1].Type)
	var data events.CompileData
	require.NoError(t, json.Unmarshal(snap[1].Data, &data))
	assert.Equal(t, "nonzero_exit", data.Reason)

	entries := h.journal.all()
	require.Len(t, entries, 1)
	assert.Equal(t, journal.OutcomeCompilerError, entries[0].Outcome)
}

func TestCompileMissingArtifact(t *testing.T) {
	h := newHarness(t, enginetest.NoArtifact)

	_, err := h.svc.Compile(context.Background(), Request{ID: "req-3", Source: helloSource})
	e, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.KindCompiler, e.Kind)
	assert.Equal(t, gwerr.ReasonMissingArtifact, e.Reason)
	assert.Contains(t, e.Diagnostics.StdoutTail, "No pages of output")
	h.assertNoWorkspaces(t)
}

func TestCompileSecondPassFailureStillSucceeds(t *testing.T) {
	h := newHarness(t, enginetest.SecondPassFails)

	res, err := h.svc.Compile(context.Background(), Request{ID: "req-4", Source: helloSource})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-pass1", string(res.Artifact))
	h.assertNoWorkspaces(t)
}

func TestCompileTimeout(t *testing.T) {
	h := newHarness(t, enginetest.Hang, func(c *config.EngineConfig) {
		c.Env = map[string]string{"PIDFILE": filepath.Join(t.TempDir(), "pid")}
	})

	_, err := h.svc.Compile(context.Background(), Request{ID: "req-5", Source: helloSource, Timeout: 300 * time.Millisecond})
	e, ok := gwerr.As(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, gwerr.KindTimeout, e.Kind)
	require.NotNil(t, e.Diagnostics)
	assert.Contains(t, e.Diagnostics.StdoutTail, "starting")
	h.assertNoWorkspaces(t)

	assert.Contains(t, h.eventTypes(), events.TypeCompileTimedOut)
	assert.Equal(t, journal.OutcomeTimeout, h.journal.all()[0].Outcome)
}

func TestCompileEmptySourceCreatesNoWorkspace(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	for _, src := range []string{"", "   \n\t"} {
		_, err := h.svc.Compile(context.Background(), Request{ID: "req-6", Source: src})
		e, ok := gwerr.As(err)
		require.True(t, ok)
		assert.Equal(t, gwerr.KindValidation, e.Kind)
		assert.Equal(t, gwerr.ReasonEmptyInput, e.Reason)
	}
	_, err := os.Stat(h.baseDir)
	assert.True(t, os.IsNotExist(err), "workspace base should never be created")
	assert.Empty(t, h.eventTypes())
	assert.Empty(t, h.journal.all())
}

func TestCompileMissingEngineIsInternal(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter, func(c *config.EngineConfig) {
		c.Binary = filepath.Join(t.TempDir(), "gone")
	})

	_, err := h.svc.Compile(context.Background(), Request{ID: "req-7", Source: helloSource})
	assert.True(t, gwerr.IsKind(err, gwerr.KindInternal))
	h.assertNoWorkspaces(t)
	assert.Equal(t, journal.OutcomeInternal, h.journal.all()[0].Outcome)
}

func TestResolveTimeout(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	tests := []struct {
		name      string
		requested time.Duration
		want      time.Duration
		wantErr   bool
	}{
		{name: "default", requested: 0, want: 5 * time.Second},
		{name: "within bounds", requested: 7 * time.Second, want: 7 * time.Second},
		{name: "clamped", requested: time.Hour, want: 10 * time.Second},
		{name: "negative", requested: -time.Second, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.svc.ResolveTimeout(tt.requested)
			if tt.wantErr {
				assert.True(t, gwerr.IsKind(err, gwerr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileConcurrentMixedOutcomesLeaveNoWorkspaces(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	sources := []string{helloSource, `\broken{`, "", helloSource, `\broken{`}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.svc.Compile(context.Background(), Request{
				ID:     "req-c" + string(rune('a'+i)),
				Source: sources[i%len(sources)],
			})
		}(i)
	}
	wg.Wait()
	h.assertNoWorkspaces(t)
	assert.Len(t, h.journal.all(), 16)
}

func TestSelfTest(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	res, err := h.svc.SelfTest(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.RequestID, "selftest-"))
	assert.Equal(t, 2, res.Passes)
	assert.Greater(t, res.ArtifactBytes, 0)
	h.assertNoWorkspaces(t)
}

func TestCheckEngine(t *testing.T) {
	h := newHarness(t, enginetest.Typesetter)

	_, err := h.svc.EngineStatus()
	assert.NoError(t, err)

	version, err := h.svc.CheckEngine(context.Background())
	require.NoError(t, err)
	assert.Contains(t, version, "FakeTeX")

	cached, err := h.svc.EngineStatus()
	require.NoError(t, err)
	assert.Equal(t, version, cached)
}
