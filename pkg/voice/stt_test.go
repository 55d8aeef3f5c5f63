package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSTTClientTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.WriteHeader(http.StatusOK)
		case "/v1/audio/transcriptions":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"text":"delete the file"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewSTTClient(srv.URL, "key", "whisper-1", 16000, 2*time.Second)
	c.Start(context.Background())
	defer c.Stop()
	time.Sleep(20 * time.Millisecond)

	text, ok := c.Transcribe(context.Background(), []int16{1, 2, 3, 4})
	if !ok || text != "delete the file" {
		t.Fatalf("expected successful transcription, got %q ok=%v", text, ok)
	}
}

func TestSTTClientUnavailableReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewSTTClient(srv.URL, "key", "whisper-1", 16000, 2*time.Second)
	c.Start(context.Background())
	defer c.Stop()
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Transcribe(context.Background(), []int16{1, 2})
	if ok {
		t.Fatal("expected transcription to fail when the backend is unavailable")
	}
}

func TestSTTClientEmptyTranscriptIsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.WriteHeader(http.StatusOK)
		default:
			w.Write([]byte(`{"text":"   "}`))
		}
	}))
	defer srv.Close()

	c := NewSTTClient(srv.URL, "key", "whisper-1", 16000, 2*time.Second)
	c.Start(context.Background())
	defer c.Stop()
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Transcribe(context.Background(), []int16{1, 2})
	if ok {
		t.Fatal("expected whitespace-only transcript to report false")
	}
}
