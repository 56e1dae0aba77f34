package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubRingBufferKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(TypeCompileStarted, CompileData{RequestID: string(rune('a' + i))})
	}

	snap := h.SnapshotSince(0)
	if len(snap) != 3 {
		t.Fatalf("len(snapshot) = %d, want 3", len(snap))
	}
	if snap[0].ID != 3 || snap[2].ID != 5 {
		t.Fatalf("snapshot ids = %d..%d, want 3..5", snap[0].ID, snap[2].ID)
	}

	since := h.SnapshotSince(4)
	if len(since) != 1 || since[0].ID != 5 {
		t.Fatalf("SnapshotSince(4) = %+v", since)
	}
}

func TestHubPublishPayload(t *testing.T) {
	h := NewHub(4)
	code := 1
	h.Publish(TypeCompileFailed, CompileData{RequestID: "r1", ExitCode: &code, Reason: "nonzero_exit"})
	h.Publish(TypeWorkspaceSwept, nil)

	snap := h.SnapshotSince(0)
	var got CompileData
	if err := json.Unmarshal(snap[0].Data, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.RequestID != "r1" || got.ExitCode == nil || *got.ExitCode != 1 {
		t.Fatalf("payload = %+v", got)
	}
	if string(snap[1].Data) != "{}" {
		t.Fatalf("nil payload = %s, want {}", snap[1].Data)
	}

	// Data must encode as an object, not base64.
	b, err := json.Marshal(snap[0])
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]any
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatal(err)
	}
	if _, ok := wire["data"].(map[string]any); !ok {
		t.Fatalf("data encoded as %T, want object", wire["data"])
	}
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", h.Subscribers())
	}

	h.Publish(TypeCompileSucceeded, CompileData{RequestID: "x"})
	select {
	case ev := <-ch:
		if ev.Type != TypeCompileSucceeded {
			t.Fatalf("type = %q", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	cancel()
	if h.Subscribers() != 0 {
		t.Fatalf("Subscribers() = %d, want 0", h.Subscribers())
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			h.Publish(TypeCompileStarted, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
