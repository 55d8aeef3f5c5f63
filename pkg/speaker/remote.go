package speaker

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// RemotePublisher optionally mirrors every synthesized PCM buffer to a
// remote listening room over a websocket connection, in the teacher's
// LokutorTTS connection-management style (pkg/providers/tts/lokutor.go):
// lazy-dial, reconnect-on-failure, a single mutex-guarded conn.
type RemotePublisher struct {
	url       string
	apiKey    string
	apiSecret string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemotePublisher builds a publisher for roomURL. An empty roomURL means
// publishing is always a no-op (no remote credentials configured).
func NewRemotePublisher(roomURL, apiKey, apiSecret string) *RemotePublisher {
	return &RemotePublisher{url: roomURL, apiKey: apiKey, apiSecret: apiSecret}
}

// Configured reports whether a room URL was provided.
func (r *RemotePublisher) Configured() bool {
	return r.url != ""
}

// Connected reports whether a websocket connection is currently held open.
func (r *RemotePublisher) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *RemotePublisher) getConn(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return r.conn, nil
	}
	if r.url == "" {
		return nil, fmt.Errorf("remote publisher: no room configured")
	}

	header := map[string][]string{
		"X-Api-Key":    {r.apiKey},
		"X-Api-Secret": {r.apiSecret},
	}
	conn, _, err := websocket.Dial(ctx, r.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("remote publisher: dial failed: %w", err)
	}
	r.conn = conn
	return conn, nil
}

// Publish sends pcm as a binary frame. Failures are swallowed after
// invalidating the cached connection: publish is best-effort and must never
// block narration (spec §4.4: "no remote credentials ⇒ publish skipped").
func (r *RemotePublisher) Publish(ctx context.Context, pcm []int16) {
	if !r.Configured() {
		return
	}

	conn, err := r.getConn(ctx)
	if err != nil {
		return
	}

	raw := int16ToBytesLE(pcm)
	if err := conn.Write(ctx, websocket.MessageBinary, raw); err != nil {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		conn.Close(websocket.StatusAbnormalClosure, "write failed")
	}
}

// Close releases the underlying connection, if any.
func (r *RemotePublisher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close(websocket.StatusNormalClosure, "")
		r.conn = nil
	}
}

func int16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
