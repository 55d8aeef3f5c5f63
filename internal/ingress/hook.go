// Package ingress normalizes Echo's two producers — agent hook payloads and
// tailed transcript files — into RawEvents on RawBus.
package ingress

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/echo-dev/echo/internal/logging"
	"github.com/echo-dev/echo/pkg/bus"
	"github.com/echo-dev/echo/pkg/events"
)

// hookPayload is the wire shape the HookIngress accepts (spec §6.1).
type hookPayload struct {
	HookEventName string                 `json:"hook_event_name"`
	SessionID     string                 `json:"session_id"`
	ToolName      string                 `json:"tool_name"`
	ToolInput     map[string]interface{} `json:"tool_input"`
	ToolResponse  map[string]interface{} `json:"tool_response"`
	Type          string                 `json:"type"`
	Message       string                 `json:"message"`
	Options       []string               `json:"options"`
	StopReason    string                 `json:"stop_reason"`
}

var hookEventKinds = map[string]events.Kind{
	"PostToolUse":  events.KindToolExecuted,
	"Notification": events.KindAgentBlocked,
	"Stop":         events.KindAgentStopped,
	"SessionStart": events.KindSessionStart,
	"SessionEnd":   events.KindSessionEnd,
}

var notificationBlockReasons = map[string]events.BlockReason{
	"permission_prompt": events.BlockPermissionPrompt,
	"idle_prompt":       events.BlockIdlePrompt,
	"question":          events.BlockQuestion,
}

// HookIngress normalizes raw hook JSON into RawEvents and emits them on
// RawBus.
type HookIngress struct {
	rawBus *bus.Bus[events.RawEvent]
	logger logging.Logger
}

// NewHookIngress constructs a HookIngress over rawBus.
func NewHookIngress(rawBus *bus.Bus[events.RawEvent], logger logging.Logger) *HookIngress {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &HookIngress{rawBus: rawBus, logger: logger}
}

// Accept parses raw hook JSON, normalizes it, and emits a RawEvent. Malformed
// payloads and unknown hook_event_name values are dropped with a warn log
// (spec §6.1, §7); Accept itself never returns an error to its HTTP caller —
// the response is always 200, matching the "drop, warn-log, respond 200 to
// avoid retries" policy.
func (h *HookIngress) Accept(raw []byte) {
	var payload hookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("ingress: malformed hook payload", "error", err)
		return
	}

	kind, ok := hookEventKinds[payload.HookEventName]
	if !ok {
		h.logger.Warn("ingress: unknown hook event name", "hook_event_name", payload.HookEventName)
		return
	}

	e := events.RawEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		SessionID: payload.SessionID,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Source:    events.SourceHook,
	}

	switch kind {
	case events.KindToolExecuted:
		e.ToolName = payload.ToolName
		e.ToolInput = payload.ToolInput
		e.ToolOutput = payload.ToolResponse
	case events.KindAgentBlocked:
		e.BlockReason = notificationBlockReasons[payload.Type]
		e.Message = payload.Message
		e.Options = payload.Options
	case events.KindAgentStopped:
		e.StopReason = payload.StopReason
	}

	h.rawBus.Emit(e)
}
