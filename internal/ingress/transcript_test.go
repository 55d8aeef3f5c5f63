package ingress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("failed to open transcript file: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("failed to write transcript line: %v", err)
		}
	}
}

func TestTranscriptWatcherEmitsAssistantMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.ndjson")
	writeLines(t, path, `{"role":"assistant","text":"hello","session_id":"s1","timestamp":1000.0}`)

	raw := bus.New[events.RawEvent](nil)
	sub := raw.Subscribe()
	defer raw.Unsubscribe(sub)

	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.Watch(path)
	w.Start(context.Background())
	defer w.Stop()

	select {
	case e := <-sub.Recv():
		if e.Kind != events.KindAgentMessage || e.Text != "hello" || e.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.Source != events.SourceTranscript {
			t.Fatalf("expected SourceTranscript, got %v", e.Source)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected an agent_message RawEvent to be emitted")
	}
}

func TestTranscriptWatcherIgnoresNonAssistantRoles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.ndjson")
	writeLines(t, path,
		`{"role":"user","text":"hi","session_id":"s1","timestamp":1.0}`,
		`{"role":"system","text":"boot","session_id":"s1","timestamp":2.0}`,
	)

	raw := bus.New[events.RawEvent](nil)
	sub := raw.Subscribe()
	defer raw.Unsubscribe(sub)

	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.Watch(path)
	w.Start(context.Background())
	defer w.Stop()

	select {
	case e := <-sub.Recv():
		t.Fatalf("expected no event for non-assistant roles, got %+v", e)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTranscriptWatcherOnlyReparsesNewContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.ndjson")
	writeLines(t, path, `{"role":"assistant","text":"first","session_id":"s1","timestamp":1.0}`)

	raw := bus.New[events.RawEvent](nil)
	sub := raw.Subscribe()
	defer raw.Unsubscribe(sub)

	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.Watch(path)
	w.Start(context.Background())
	defer w.Stop()

	first := <-sub.Recv()
	if first.Text != "first" {
		t.Fatalf("expected first message, got %+v", first)
	}

	writeLines(t, path, `{"role":"assistant","text":"second","session_id":"s1","timestamp":2.0}`)

	select {
	case e := <-sub.Recv():
		if e.Text != "second" {
			t.Fatalf("expected second message, got %+v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected the newly appended message to be emitted")
	}

	select {
	case e := <-sub.Recv():
		t.Fatalf("expected no re-emission of already-consumed content, got %+v", e)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTranscriptWatcherSuppressesKeyAlreadyNotedByHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.ndjson")

	raw := bus.New[events.RawEvent](nil)
	sub := raw.Subscribe()
	defer raw.Unsubscribe(sub)

	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.NoteHookEvent("s1", 100.04)
	writeLines(t, path, `{"role":"assistant","text":"dup","session_id":"s1","timestamp":100.02}`)
	w.Watch(path)
	w.Start(context.Background())
	defer w.Stop()

	select {
	case e := <-sub.Recv():
		t.Fatalf("expected the transcript record to be suppressed as a duplicate, got %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTranscriptWatcherDoesNotSuppressDistinctBuckets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.ndjson")

	raw := bus.New[events.RawEvent](nil)
	sub := raw.Subscribe()
	defer raw.Unsubscribe(sub)

	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.NoteHookEvent("s1", 100.0)
	writeLines(t, path, `{"role":"assistant","text":"distinct","session_id":"s1","timestamp":101.0}`)
	w.Watch(path)
	w.Start(context.Background())
	defer w.Stop()

	select {
	case e := <-sub.Recv():
		if e.Text != "distinct" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected the transcript record in a distinct bucket to be emitted")
	}
}

func TestTranscriptWatcherSkipsMissingFile(t *testing.T) {
	raw := bus.New[events.RawEvent](nil)
	w := NewTranscriptWatcher(raw, 10*time.Millisecond, nil)
	w.Watch(filepath.Join(t.TempDir(), "does-not-exist.ndjson"))
	w.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	w.Stop()
}

func TestDedupKeyBucketsAtTenthOfASecond(t *testing.T) {
	a := dedupKey("s1", 100.04)
	b := dedupKey("s1", 100.09)
	c := dedupKey("s1", 100.10)

	if a != b {
		t.Fatalf("expected 100.04 and 100.09 to share a bucket: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("expected 100.04 and 100.10 to fall in distinct buckets")
	}
}
