package speaker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorTTS is an alternate TTSProvider speaking Echo's synthesis contract
// over a persistent websocket connection instead of one-shot REST calls,
// adapted from the teacher's pkg/providers/tts/lokutor.go connection-
// management style (lazy-dial, reconnect-on-failure, mutex-guarded conn).
// Selected in place of TTSClient by configuration (spec §9 domain-stack
// enrichment).
type LokutorTTS struct {
	apiKey string
	host   string
	voice  string
	lang   string

	mu   sync.Mutex
	conn *websocket.Conn

	available atomic.Bool
}

// NewLokutorTTS constructs a LokutorTTS client. voice/lang are sent as-is on
// every synthesis request; an empty host defaults to the production API
// host.
func NewLokutorTTS(apiKey, host, voice, lang string) *LokutorTTS {
	if host == "" {
		host = "api.lokutor.com"
	}
	t := &LokutorTTS{apiKey: apiKey, host: host, voice: voice, lang: lang}
	t.available.Store(true)
	return t
}

// Start optimistically warms the connection; a failed dial here is not
// fatal, since Synthesize redials lazily on every call that finds no live
// connection.
func (t *LokutorTTS) Start(ctx context.Context) {
	if _, err := t.getConn(ctx); err != nil {
		t.available.Store(false)
	}
}

// Stop closes the underlying connection, if any.
func (t *LokutorTTS) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
	}
}

// Available reports the last-known reachability of the lokutor endpoint.
func (t *LokutorTTS) Available() bool {
	return t.available.Load()
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("lokutor tts: dial failed: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// Synthesize requests speech for text and returns the assembled PCM16
// samples, or nil on any failure (never raises, same contract as
// TTSClient.Synthesize).
func (t *LokutorTTS) Synthesize(ctx context.Context, text string) []int16 {
	conn, err := t.getConn(ctx)
	if err != nil {
		t.available.Store(false)
		return nil
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   t.voice,
		"lang":    t.lang,
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	t.mu.Lock()
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.invalidateLocked(conn)
		t.mu.Unlock()
		t.available.Store(false)
		return nil
	}
	t.mu.Unlock()

	var audio []byte
	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			t.invalidateLocked(conn)
			t.mu.Unlock()
			t.available.Store(false)
			return nil
		}

		switch messageType {
		case websocket.MessageBinary:
			audio = append(audio, payload...)
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				t.available.Store(true)
				return bytesToInt16LE(audio)
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				t.available.Store(false)
				return nil
			}
		}
	}
}

// invalidateLocked drops the cached connection if it is still the one the
// caller observed failing. Must be called with t.mu held.
func (t *LokutorTTS) invalidateLocked(conn *websocket.Conn) {
	if t.conn == conn {
		conn.Close(websocket.StatusAbnormalClosure, "synthesis failed")
		t.conn = nil
	}
}
