// Package provider defines the canonical streaming event sequence emitted
// by every vendor adapter, and the state machine that assembles vendor wire
// events into that sequence.
package provider

import "github.com/dohr-michael/ozzie/internal/classify"

// EventKind enumerates the canonical stream events every vendor adapter
// must reduce its own wire protocol down to.
type EventKind string

const (
	EventStart         EventKind = "start"
	EventTextStart     EventKind = "text_start"
	EventTextDelta     EventKind = "text_delta"
	EventTextEnd       EventKind = "text_end"
	EventThinkingStart EventKind = "thinking_start"
	EventThinkingDelta EventKind = "thinking_delta"
	EventThinkingEnd   EventKind = "thinking_end"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallDelta EventKind = "tool_call_delta"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventUsage         EventKind = "usage"
	EventRetry         EventKind = "retry"
	EventDone          EventKind = "done"
	EventError         EventKind = "error"
)

// ThoughtSignaturePlaceholder is emitted on a ThinkingEnd event whose vendor
// does not supply a verifiable signature. It is a deliberate placeholder,
// passed through unvalidated rather than treated as an error.
const ThoughtSignaturePlaceholder = "skip_thought_signature_validator"

// Usage carries token accounting as reported by the vendor.
type Usage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens      int64
	CacheCreationTokens  int64
}

// RetryInfo accompanies an EventRetry event.
type RetryInfo struct {
	Attempt    int
	MaxRetries int
	DelayMs    int64
	Error      classify.ParsedError
}

// StreamEvent is one item in the canonical event sequence. Only the fields
// relevant to Kind are populated.
type StreamEvent struct {
	Kind EventKind

	// Index identifies which content block (text run, thinking run, or
	// tool call) a Start/Delta/End event belongs to, since a response may
	// interleave several.
	Index int

	TextDelta     string
	ThinkingDelta string
	// Signature is populated on ThinkingEnd; it is either a vendor-supplied
	// signature or ThoughtSignaturePlaceholder.
	Signature string

	ToolCallID   string
	ToolCallName string
	// ArgsDelta accumulates as raw JSON text across ToolCallDelta events;
	// ToolCallEnd carries the fully assembled arguments in ArgsDelta.
	ArgsDelta string

	Usage *Usage
	Retry *RetryInfo
	Err   error
}
