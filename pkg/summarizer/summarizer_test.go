package summarizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

func newTestBuses() (*bus.Bus[events.RawEvent], *bus.Bus[events.Narration]) {
	return bus.New[events.RawEvent](nil), bus.New[events.Narration](nil)
}

func recvNarration(t *testing.T, sub *bus.Subscription[events.Narration], timeout time.Duration) events.Narration {
	t.Helper()
	select {
	case n := <-sub.Recv():
		return n
	case <-time.After(timeout):
		t.Fatal("timed out waiting for narration")
		return events.Narration{}
	}
}

func expectNoNarration(t *testing.T, sub *bus.Subscription[events.Narration], within time.Duration) {
	t.Helper()
	select {
	case n := <-sub.Recv():
		t.Fatalf("unexpected narration delivered early: %+v", n)
	case <-time.After(within):
	}
}

// Scenario 1 (spec §8): a single tool_executed event narrates immediately
// once its window elapses, with no LLM involvement.
func TestToolNarrationScenario(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	raw.Emit(events.RawEvent{
		ID:        "e1",
		Kind:      events.KindToolExecuted,
		SessionID: "s1",
		ToolName:  "Read",
		ToolInput: map[string]interface{}{"file_path": "/repo/main.go"},
	})

	n := recvNarration(t, sub, Window+500*time.Millisecond)
	if n.Text != "Read main.go" {
		t.Errorf("expected %q, got %q", "Read main.go", n.Text)
	}
	if n.Method != events.MethodTemplate {
		t.Errorf("expected template method, got %v", n.Method)
	}
	if n.Priority != events.PriorityNormal {
		t.Errorf("expected normal priority, got %v", n.Priority)
	}
}

// Scenario 2 (spec §8): several tool_executed events arriving within one
// window are coalesced into a single batched narration.
func TestBatchingScenario(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < 3; i++ {
		raw.Emit(events.RawEvent{
			ID:        "e" + string(rune('1'+i)),
			Kind:      events.KindToolExecuted,
			SessionID: "s1",
			ToolName:  "Edit",
			ToolInput: map[string]interface{}{"file_path": "/repo/f.go"},
		})
	}

	n := recvNarration(t, sub, Window+500*time.Millisecond)
	if n.Text != "Edited 3 files." {
		t.Errorf("expected %q, got %q", "Edited 3 files.", n.Text)
	}
}

// A batch reaching MaxBatchSize flushes synchronously, without waiting out
// the window.
func TestBatchFlushesAtMaxSize(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < MaxBatchSize; i++ {
		raw.Emit(events.RawEvent{
			ID:        "e",
			Kind:      events.KindToolExecuted,
			SessionID: "s1",
			ToolName:  "Bash",
			ToolInput: map[string]interface{}{"command": "go test ./..."},
		})
	}

	// Should flush well before the window elapses.
	n := recvNarration(t, sub, 200*time.Millisecond)
	if n.Text != "ran 10 commands." && n.Text != "Ran 10 commands." {
		t.Errorf("unexpected batch text: %q", n.Text)
	}
}

// agent_blocked events bypass the batcher entirely and narrate at critical
// priority, flushing any pending tool batch first so narration order is
// preserved.
func TestAgentBlockedFlushesPendingBatchAndNarratesImmediately(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	raw.Emit(events.RawEvent{
		ID:        "e1",
		Kind:      events.KindToolExecuted,
		SessionID: "s1",
		ToolName:  "Read",
		ToolInput: map[string]interface{}{"file_path": "/repo/main.go"},
	})
	raw.Emit(events.RawEvent{
		ID:          "e2",
		Kind:        events.KindAgentBlocked,
		SessionID:   "s1",
		BlockReason: events.BlockPermissionPrompt,
		Message:     "delete the database?",
		Options:     []string{"yes", "no"},
	})

	first := recvNarration(t, sub, 200*time.Millisecond)
	if first.Text != "Read main.go" {
		t.Errorf("expected the pending batch to flush first, got %q", first.Text)
	}

	second := recvNarration(t, sub, 200*time.Millisecond)
	if second.Priority != events.PriorityCritical {
		t.Errorf("expected critical priority, got %v", second.Priority)
	}
	if !strings.Contains(second.Text, "delete the database?") {
		t.Errorf("expected block message in narration, got %q", second.Text)
	}
	if !strings.Contains(second.Text, "Option one: yes.") {
		t.Errorf("expected rendered options, got %q", second.Text)
	}
}

// agent_message routes through the LLM client when available, and emits
// MethodLLM.
func TestAgentMessageUsesLLMWhenAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"response":"Refactored the auth module."}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	raw, narr := newTestBuses()
	llm := NewLLMClient(srv.URL, "test-model", 2*time.Second)
	s := New(raw, narr, llm, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	// allow the initial availability probe to land before emitting.
	time.Sleep(50 * time.Millisecond)

	raw.Emit(events.RawEvent{
		ID:        "e1",
		Kind:      events.KindAgentMessage,
		SessionID: "s1",
		Text:      "I went ahead and refactored the whole auth module to use the new session store.",
	})

	n := recvNarration(t, sub, time.Second)
	if n.Method != events.MethodLLM {
		t.Errorf("expected llm method, got %v", n.Method)
	}
	if n.Text != "Refactored the auth module." {
		t.Errorf("unexpected narration text: %q", n.Text)
	}
}

// agent_message falls back to truncation when no LLM client is configured.
func TestAgentMessageFallsBackToTruncationWithoutLLM(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	short := "All done."
	raw.Emit(events.RawEvent{ID: "e1", Kind: events.KindAgentMessage, SessionID: "s1", Text: short})

	n := recvNarration(t, sub, 200*time.Millisecond)
	if n.Method != events.MethodTruncation {
		t.Errorf("expected truncation method, got %v", n.Method)
	}
	if n.Text != short {
		t.Errorf("text <= 150 chars must pass through verbatim, got %q", n.Text)
	}
}

func TestTruncate150Boundary(t *testing.T) {
	exact := strings.Repeat("a", 150)
	if got := truncate150(exact); got != exact {
		t.Errorf("150-char text must pass through unchanged, got len %d", len(got))
	}

	over := strings.Repeat("b", 151)
	got := truncate150(over)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
	if got != strings.Repeat("b", 140)+"…" {
		t.Errorf("expected 140-char prefix plus ellipsis, got %q", got)
	}
}

// session_start, session_end, and agent_stopped all flush any pending batch
// and narrate via templates at the documented priorities.
func TestSessionLifecycleTemplates(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	raw.Emit(events.RawEvent{ID: "e1", Kind: events.KindSessionStart, SessionID: "s1"})
	n := recvNarration(t, sub, 200*time.Millisecond)
	if n.Text != "New coding session started." || n.Priority != events.PriorityLow {
		t.Errorf("unexpected session_start narration: %+v", n)
	}

	raw.Emit(events.RawEvent{ID: "e2", Kind: events.KindAgentStopped, SessionID: "s1", StopReason: "max turns reached"})
	n = recvNarration(t, sub, 200*time.Millisecond)
	if n.Text != "Agent stopped: max turns reached" || n.Priority != events.PriorityNormal {
		t.Errorf("unexpected agent_stopped narration: %+v", n)
	}

	raw.Emit(events.RawEvent{ID: "e3", Kind: events.KindSessionEnd, SessionID: "s1"})
	n = recvNarration(t, sub, 200*time.Millisecond)
	if n.Text != "Session ended." || n.Priority != events.PriorityLow {
		t.Errorf("unexpected session_end narration: %+v", n)
	}
}

// Stop must flush a still-open batch rather than discard it.
func TestStopFlushesPendingBatch(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())

	raw.Emit(events.RawEvent{
		ID:        "e1",
		Kind:      events.KindToolExecuted,
		SessionID: "s1",
		ToolName:  "Grep",
		ToolInput: map[string]interface{}{"pattern": "TODO"},
	})

	s.Stop()

	select {
	case n := <-sub.Recv():
		if n.Text != "Searched code for TODO" {
			t.Errorf("unexpected flushed narration: %q", n.Text)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected pending batch to flush on shutdown")
	}
}

func TestUnknownKindIsIgnored(t *testing.T) {
	raw, narr := newTestBuses()
	s := New(raw, narr, nil, nil)
	sub := narr.Subscribe()
	defer narr.Unsubscribe(sub)

	s.Start(context.Background())
	defer s.Stop()

	raw.Emit(events.RawEvent{ID: "e1", Kind: events.Kind("unknown_thing"), SessionID: "s1"})
	expectNoNarration(t, sub, 150*time.Millisecond)
}
