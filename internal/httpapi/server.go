// Package httpapi implements Echo's HTTP/SSE front door (spec §6.6): a
// localhost-bound admin surface for feeding hook events in, resolving
// blocked agents manually, reporting composite health, and tailing each bus
// as a server-sent event stream. Built on gin instead of the teacher's bare
// net/http since this surface has multiple routes and JSON bodies rather
// than one outbound client call.
package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/echo-dev/echo/internal/ingress"
	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/alert"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
	"github.com/echo-dev/echo/pkg/speaker"
	"github.com/echo-dev/echo/pkg/voice"
)

// keepAliveInterval is the SSE keep-alive period (spec §6.6: "15-second
// keep-alive").
const keepAliveInterval = 15 * time.Second

// Server wires Echo's three buses and its orchestrators into a gin router.
type Server struct {
	rawBus       *bus.Bus[events.RawEvent]
	narrationBus *bus.Bus[events.Narration]
	responseBus  *bus.Bus[events.Response]

	hook    *ingress.HookIngress
	voice   *voice.Engine
	speaker *speaker.Engine
	alerts  *alert.Manager

	logger logging.Logger
}

// New constructs a Server. voiceEngine, speakerEngine and alertManager may
// be nil; /health and /respond degrade accordingly.
func New(
	rawBus *bus.Bus[events.RawEvent],
	narrationBus *bus.Bus[events.Narration],
	responseBus *bus.Bus[events.Response],
	hook *ingress.HookIngress,
	voiceEngine *voice.Engine,
	speakerEngine *speaker.Engine,
	alertManager *alert.Manager,
	logger logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Server{
		rawBus:       rawBus,
		narrationBus: narrationBus,
		responseBus:  responseBus,
		hook:         hook,
		voice:        voiceEngine,
		speaker:      speakerEngine,
		alerts:       alertManager,
		logger:       logger,
	}
}

// Router builds the gin engine with every route registered (spec §6.6).
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/event", s.handleEvent)
	r.POST("/respond", s.handleRespond)
	r.GET("/health", s.handleHealth)
	r.GET("/events", s.handleEventsStream)
	r.GET("/narrations", s.handleNarrationsStream)
	r.GET("/responses", s.handleResponsesStream)

	return r
}

// handleEvent accepts a raw hook payload and always responds 200, per spec
// §6.1/§7's "drop malformed, warn-log, never fail the caller" policy.
func (s *Server) handleEvent(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if s.hook != nil {
		s.hook.Accept(raw)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type respondRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// handleRespond resolves a blocked agent manually, bypassing voice capture
// entirely (spec §6.6, §4.5's HandleManualResponse entry point).
func (s *Server) handleRespond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":     "error",
			"text":       req.Text,
			"session_id": req.SessionID,
		})
		return
	}

	if s.voice == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":     "error",
			"text":       req.Text,
			"session_id": req.SessionID,
		})
		return
	}

	status := "ok"
	if !s.voice.HandleManualResponse(req.SessionID, req.Text) {
		status = "dispatch_failed"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"text":       req.Text,
		"session_id": req.SessionID,
	})
}

// handleHealth reports the composite health snapshot (spec §6.6).
func (s *Server) handleHealth(c *gin.Context) {
	h := gin.H{
		"subscribers":           s.rawBus.SubscriberCount(),
		"narration_subscribers": s.narrationBus.SubscriberCount(),
		"tts_state":             "disabled",
		"tts_available":         false,
		"audio_available":       false,
		"remote_connected":      false,
		"alert_active":          false,
		"stt_state":             "disabled",
		"stt_available":         false,
		"mic_available":         false,
		"dispatch_available":    false,
		"stt_listening":         0,
	}

	if s.speaker != nil {
		h["tts_state"] = string(s.speaker.Status())
		h["tts_available"] = s.speaker.TTSAvailable()
		h["audio_available"] = s.speaker.AudioAvailable()
		h["remote_connected"] = s.speaker.RemoteConnected()
	}
	if s.alerts != nil {
		h["alert_active"] = s.alerts.ActiveCount() > 0
	}
	if s.voice != nil {
		h["stt_state"] = string(s.voice.Status())
		h["stt_available"] = s.voice.STTAvailable()
		h["mic_available"] = s.voice.MicAvailable()
		h["dispatch_available"] = s.voice.DispatchAvailable()
		h["stt_listening"] = s.voice.ListeningCount()
	}

	c.JSON(http.StatusOK, h)
}

// handleEventsStream tails RawBus as server-sent events.
func (s *Server) handleEventsStream(c *gin.Context) {
	sub := s.rawBus.Subscribe()
	defer s.rawBus.Unsubscribe(sub)
	streamSSE(c, sub.Recv())
}

// handleNarrationsStream tails NarrationBus as server-sent events.
func (s *Server) handleNarrationsStream(c *gin.Context) {
	sub := s.narrationBus.Subscribe()
	defer s.narrationBus.Unsubscribe(sub)
	streamSSE(c, sub.Recv())
}

// handleResponsesStream tails ResponseBus as server-sent events.
func (s *Server) handleResponsesStream(c *gin.Context) {
	sub := s.responseBus.Subscribe()
	defer s.responseBus.Unsubscribe(sub)
	streamSSE(c, sub.Recv())
}

// streamSSE drains ch onto the response as "message" events, sending an
// empty "keepalive" event every 15 seconds (on a fixed ticker, whether or
// not messages were sent in between), until the client disconnects or ch
// is closed.
func streamSSE[T any](c *gin.Context, ch <-chan T) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case item, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", item)
			return true
		case <-ticker.C:
			c.SSEvent("keepalive", "")
			return true
		case <-clientGone:
			return false
		}
	})
}
