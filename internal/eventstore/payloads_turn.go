package eventstore

// StreamTurnStartPayload marks the beginning of one Turn Runner invocation.
type StreamTurnStartPayload struct{}

func (StreamTurnStartPayload) EventType() EventType { return EventStreamTurnStart }

// StreamTurnEndPayload carries the TurnResult summary spec.md §4.4 requires:
// success flag, tool-call count, token usage, stop reason, interrupted
// flag, partial content, and the stops_turn flag.
type StreamTurnEndPayload struct {
	Success         bool   `json:"success"`
	ToolCallCount   int    `json:"tool_call_count"`
	StopReason      string `json:"stop_reason"`
	Interrupted     bool   `json:"interrupted"`
	PartialContent  string `json:"partial_content,omitempty"`
	StopsTurn       bool   `json:"stops_turn"`
	Model           string `json:"model"`
	LatencyMs       int64  `json:"latency_ms"`
	HasThinking     bool   `json:"has_thinking"`
	InputTokens     int64  `json:"input_tokens,omitempty"`
	OutputTokens    int64  `json:"output_tokens,omitempty"`
}

func (StreamTurnEndPayload) EventType() EventType { return EventStreamTurnEnd }

// StreamTextDeltaPayload is one soft-batch of assistant text.
type StreamTextDeltaPayload struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (StreamTextDeltaPayload) EventType() EventType { return EventStreamTextDelta }

// StreamThinkingDeltaPayload is one soft-batch of assistant reasoning.
type StreamThinkingDeltaPayload struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (StreamThinkingDeltaPayload) EventType() EventType { return EventStreamThinkingDelta }

// ToolCallEventPayload is appended before a tool executes.
type ToolCallEventPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	ArgsJSON   string `json:"args_json"`
}

func (ToolCallEventPayload) EventType() EventType { return EventToolCall }

// ToolResultEventPayload is appended after a tool executes.
type ToolResultEventPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	StopsTurn  bool   `json:"stops_turn,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (ToolResultEventPayload) EventType() EventType { return EventToolResult }

// MessageAssistantToolCall is one tool call carried by a MessageAssistantPayload.
type MessageAssistantToolCall struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ArgsJSON string `json:"args_json"`
}

// MessageAssistantPayload is the single event persisted on Done: the
// assembled message plus the per-turn metadata spec.md §4.4 names (model,
// latency, stop reason, has-thinking, provider, cost, usage).
type MessageAssistantPayload struct {
	Content        string                     `json:"content"`
	ThinkingBlocks []string                   `json:"thinking_blocks,omitempty"`
	ToolCalls      []MessageAssistantToolCall `json:"tool_calls,omitempty"`
	Model          string                     `json:"model"`
	Provider       string                     `json:"provider"`
	LatencyMs      int64                      `json:"latency_ms"`
	StopReason     string                     `json:"stop_reason"`
	HasThinking    bool                       `json:"has_thinking"`
	CostUSD        float64                    `json:"cost_usd,omitempty"`
	InputTokens    int64                      `json:"input_tokens,omitempty"`
	OutputTokens   int64                      `json:"output_tokens,omitempty"`
}

func (MessageAssistantPayload) EventType() EventType { return EventMessageAssistant }

// ErrorProviderPayload is appended when the stream errors mid-message; any
// text already yielded is captured so the partial content isn't lost.
type ErrorProviderPayload struct {
	Message        string `json:"message"`
	PartialContent string `json:"partial_content,omitempty"`
}

func (ErrorProviderPayload) EventType() EventType { return EventErrorProvider }

// HookTriggeredPayload marks the start of one tool call's pre-hook batch.
type HookTriggeredPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	HookCount  int    `json:"hook_count"`
}

func (HookTriggeredPayload) EventType() EventType { return EventHookTriggered }

// HookCompletedPayload marks the end of one tool call's pre-hook batch (or,
// when Background is true, the fire-and-forget completion of a post-hook).
type HookCompletedPayload struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Blocked    bool   `json:"blocked"`
	Background bool   `json:"background"`
}

func (HookCompletedPayload) EventType() EventType { return EventHookCompleted }
