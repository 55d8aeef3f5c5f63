// Package events defines the payload types carried on Echo's three buses:
// RawBus, NarrationBus and ResponseBus.
package events

import "time"

// Kind is the normalized type of a RawEvent.
type Kind string

const (
	KindToolExecuted  Kind = "tool_executed"
	KindAgentBlocked  Kind = "agent_blocked"
	KindAgentStopped  Kind = "agent_stopped"
	KindAgentMessage  Kind = "agent_message"
	KindSessionStart  Kind = "session_start"
	KindSessionEnd    Kind = "session_end"
)

// Source identifies which producer emitted a RawEvent.
type Source string

const (
	SourceHook       Source = "hook"
	SourceTranscript Source = "transcript"
)

// BlockReason is the cause of an agent_blocked event.
type BlockReason string

const (
	BlockPermissionPrompt BlockReason = "permission_prompt"
	BlockIdlePrompt       BlockReason = "idle_prompt"
	BlockQuestion         BlockReason = "question"
	BlockNone             BlockReason = ""
)

// Priority is the SpeakerEngine scheduling class for a Narration.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank maps Priority to the Player's integer priority, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Method records how a Narration's text was produced, for observability only.
type Method string

const (
	MethodTemplate   Method = "template"
	MethodLLM        Method = "llm"
	MethodTruncation Method = "truncation"
)

// MatchMethod records how a voice Response was matched to an option.
type MatchMethod string

const (
	MatchOrdinal  MatchMethod = "ordinal"
	MatchYesNo    MatchMethod = "yes_no"
	MatchDirect   MatchMethod = "direct"
	MatchFuzzy    MatchMethod = "fuzzy"
	MatchVerbatim MatchMethod = "verbatim"
)

// RawEvent is the normalized input carried on RawBus. It is immutable after
// emission: callers must treat every field as read-only once the event has
// been handed to Bus.Emit.
type RawEvent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id"`
	Timestamp float64   `json:"timestamp"`
	Source    Source    `json:"source"`

	ToolName   string                 `json:"tool_name,omitempty"`
	ToolInput  map[string]interface{} `json:"tool_input,omitempty"`
	ToolOutput map[string]interface{} `json:"tool_output,omitempty"`

	BlockReason BlockReason `json:"block_reason,omitempty"`
	Message     string      `json:"message,omitempty"`
	Options     []string    `json:"options,omitempty"`

	Text string `json:"text,omitempty"`

	StopReason string `json:"stop_reason,omitempty"`
}

// TimestampTime renders Timestamp (monotonic-wall seconds) as a time.Time.
func (e RawEvent) TimestampTime() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Narration is carried on NarrationBus.
type Narration struct {
	Text          string      `json:"text"`
	Priority      Priority    `json:"priority"`
	SourceKind    Kind        `json:"source_kind"`
	SessionID     string      `json:"session_id"`
	SourceEventID string      `json:"source_event_id"`
	Method        Method      `json:"method"`
	BlockReason   BlockReason `json:"block_reason,omitempty"`
	Options       []string    `json:"options,omitempty"`
}

// Response is carried on ResponseBus.
type Response struct {
	Text        string      `json:"text"`
	Transcript  string      `json:"transcript"`
	SessionID   string      `json:"session_id"`
	MatchMethod MatchMethod `json:"match_method"`
	Confidence  float64     `json:"confidence"`
	Timestamp   time.Time   `json:"timestamp"`
	Options     []string    `json:"options,omitempty"`
}

// Batch is the Summarizer's internal accumulator of tool_executed events
// within one open window.
type Batch struct {
	Events []RawEvent
}

// Append adds e to the batch.
func (b *Batch) Append(e RawEvent) {
	b.Events = append(b.Events, e)
}

// Len reports the number of accumulated events.
func (b *Batch) Len() int {
	return len(b.Events)
}

// Empty reports whether the batch holds no events.
func (b *Batch) Empty() bool {
	return len(b.Events) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Events = nil
}
