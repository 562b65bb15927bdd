// Package turn runs exactly one provider request plus its resulting tool
// executions: the smallest unit of work the Agent Runner loops over.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/eventstore"
	"github.com/dohr-michael/ozzie/internal/provider"
	"github.com/dohr-michael/ozzie/internal/retry"
	"github.com/dohr-michael/ozzie/internal/tools"
)

// StopReason explains why a turn ended.
type StopReason string

const (
	StopEndTurn           StopReason = "end_turn"
	StopToolUse           StopReason = "tool_use"
	StopMaxTokens         StopReason = "max_tokens"
	StopCancelled         StopReason = "cancelled"
	StopError             StopReason = "error"
)

// ToolCall is one assembled tool invocation the provider requested.
type ToolCall struct {
	ID        string
	Name      string
	ArgsJSON  string
}

// ToolExecution pairs a requested call with its pipeline result.
type ToolExecution struct {
	Call   ToolCall
	Result tools.Result
	Err    error
}

// Result is everything one turn produced.
type Result struct {
	Text            string
	ThinkingBlocks  []string
	ToolCalls       []ToolCall
	ToolExecutions  []ToolExecution
	Usage           *provider.Usage
	StopReason      StopReason
	StopsTurn       bool
	Err             error
}

// EventSink is the Turn Runner's optional connection to the event-sourced
// log and the live broadcast bus. A nil *EventSink (the Runner's zero
// value) disables persistence and broadcasting entirely, which is what
// every existing bare-constructed Runner and test continues to get.
type EventSink struct {
	Store       *eventstore.Store
	Bus         *events.Bus
	SessionID   string
	WorkspaceID string
	Model       string
	Provider    string
}

func (s *EventSink) append(ctx context.Context, payload eventstore.EventPayload) {
	if s == nil || s.Store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("turn: failed to marshal event payload", "type", payload.EventType(), "error", err)
		return
	}
	if _, err := s.Store.Append(ctx, s.SessionID, s.WorkspaceID, payload, data); err != nil {
		slog.Warn("turn: failed to append event", "type", payload.EventType(), "error", err)
	}
}

func (s *EventSink) publish(payload events.EventPayload) {
	if s == nil || s.Bus == nil {
		return
	}
	s.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, payload, s.SessionID))
}

// Runner executes one turn: stream the provider response through the retry
// wrapper, assemble text/thinking/tool-call blocks, then run any requested
// tool calls through the pipeline.
type Runner struct {
	factory  retry.StreamFactory
	retryCfg retry.Config
	pipeline *tools.Pipeline
	toolCtx  tools.ToolContext
	sink     *EventSink
}

// NewRunner builds a Runner. factory opens a fresh provider stream for one
// attempt (the retry wrapper may call it more than once).
func NewRunner(factory retry.StreamFactory, retryCfg retry.Config, pipeline *tools.Pipeline, toolCtx tools.ToolContext) *Runner {
	return &Runner{factory: factory, retryCfg: retryCfg, pipeline: pipeline, toolCtx: toolCtx}
}

// WithEventSink attaches sink so Run persists to the event log and
// broadcasts to the bus. Returns r for chaining.
func (r *Runner) WithEventSink(sink *EventSink) *Runner {
	r.sink = sink
	return r
}

// Run drains the provider stream to completion, then executes every tool
// call it produced. It never returns early on a tool error: each tool's
// failure is recorded in its own ToolExecution so the turn can still report
// a complete picture.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	r.sink.append(ctx, eventstore.StreamTurnStartPayload{})

	stream := retry.WithProviderRetry(ctx, r.factory, r.retryCfg)

	var result Result
	var textBuilder, thinkingBuilder strings.Builder
	var pendingCalls []ToolCall
	var currentCall *ToolCall
	var argsBuilder strings.Builder
	deltaIndex := 0

	for ev := range stream {
		switch ev.Kind {
		case provider.EventTextDelta:
			textBuilder.WriteString(ev.TextDelta)
			r.sink.append(ctx, eventstore.StreamTextDeltaPayload{Index: deltaIndex, Text: ev.TextDelta})
			r.sink.publish(events.AssistantStreamPayload{Phase: events.StreamPhaseDelta, Content: ev.TextDelta, Index: deltaIndex})
			deltaIndex++
		case provider.EventTextEnd:
			// nothing to finalize beyond the accumulated text builder
		case provider.EventThinkingDelta:
			thinkingBuilder.WriteString(ev.ThinkingDelta)
			r.sink.append(ctx, eventstore.StreamThinkingDeltaPayload{Index: deltaIndex, Text: ev.ThinkingDelta})
			r.sink.publish(events.AssistantThinkingPayload{Content: ev.ThinkingDelta, Index: deltaIndex})
			deltaIndex++
		case provider.EventThinkingEnd:
			result.ThinkingBlocks = append(result.ThinkingBlocks, thinkingBuilder.String())
			thinkingBuilder.Reset()
		case provider.EventToolCallStart:
			currentCall = &ToolCall{ID: ev.ToolCallID, Name: ev.ToolCallName}
			argsBuilder.Reset()
		case provider.EventToolCallDelta:
			argsBuilder.WriteString(ev.ArgsDelta)
		case provider.EventToolCallEnd:
			if currentCall != nil {
				args := ev.ArgsDelta
				if args == "" {
					args = argsBuilder.String()
				}
				currentCall.ArgsJSON = args
				pendingCalls = append(pendingCalls, *currentCall)
				currentCall = nil
			}
		case provider.EventUsage:
			result.Usage = ev.Usage
		case provider.EventError:
			result.Err = ev.Err
			result.StopReason = StopError
		case provider.EventDone:
			// handled after the loop via pendingCalls/text
		}
	}

	result.Text = textBuilder.String()
	result.ToolCalls = pendingCalls

	if result.Err != nil {
		if ctx.Err() != nil {
			result.StopReason = StopCancelled
		}
		r.sink.append(ctx, eventstore.ErrorProviderPayload{Message: result.Err.Error(), PartialContent: result.Text})
		r.sink.publish(events.AssistantMessagePayload{Content: result.Text, Error: result.Err.Error()})
		r.emitTurnEnd(ctx, result, start)
		return result
	}

	if len(pendingCalls) > 0 {
		result.StopReason = StopToolUse
		result.ToolExecutions = r.executeTools(ctx, pendingCalls)
		for _, exec := range result.ToolExecutions {
			if exec.Result.StopsTurn {
				result.StopsTurn = true
			}
		}
	} else {
		result.StopReason = StopEndTurn
	}

	r.persistAssistantMessage(ctx, result)
	r.emitTurnEnd(ctx, result, start)
	return result
}

// persistAssistantMessage appends the single message.assistant event spec
// requires on successful completion, carrying full per-turn metadata, and
// forwards the equivalent assistant.message event to the bus.
func (r *Runner) persistAssistantMessage(ctx context.Context, result Result) {
	calls := make([]eventstore.MessageAssistantToolCall, 0, len(result.ToolCalls))
	for _, c := range result.ToolCalls {
		calls = append(calls, eventstore.MessageAssistantToolCall{ID: c.ID, Name: c.Name, ArgsJSON: c.ArgsJSON})
	}
	var inputTokens, outputTokens int64
	if result.Usage != nil {
		inputTokens = result.Usage.InputTokens
		outputTokens = result.Usage.OutputTokens
	}
	model, provName := "", ""
	if r.sink != nil {
		model, provName = r.sink.Model, r.sink.Provider
	}
	r.sink.append(ctx, eventstore.MessageAssistantPayload{
		Content:        result.Text,
		ThinkingBlocks: result.ThinkingBlocks,
		ToolCalls:      calls,
		Model:          model,
		Provider:       provName,
		StopReason:     string(result.StopReason),
		HasThinking:    len(result.ThinkingBlocks) > 0,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
	})
	r.sink.publish(events.AssistantMessagePayload{Content: result.Text})
}

func (r *Runner) emitTurnEnd(ctx context.Context, result Result, start time.Time) {
	latency := time.Since(start).Milliseconds()
	success := result.Err == nil
	r.sink.append(ctx, eventstore.StreamTurnEndPayload{
		Success:        success,
		ToolCallCount:  len(result.ToolCalls),
		StopReason:     string(result.StopReason),
		Interrupted:    result.StopReason == StopCancelled,
		StopsTurn:      result.StopsTurn,
		LatencyMs:      latency,
		HasThinking:    len(result.ThinkingBlocks) > 0,
	})
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	r.sink.publish(events.TurnEndPayload{
		Success:       success,
		ToolCallCount: len(result.ToolCalls),
		StopReason:    string(result.StopReason),
		Interrupted:   result.StopReason == StopCancelled,
		StopsTurn:     result.StopsTurn,
		Error:         errMsg,
	})
}

// executeTools runs every requested call through the pipeline in request
// order (tool calls within a single turn are sequential: a later call may
// depend on an earlier one's side effects, e.g. a file write then a read).
func (r *Runner) executeTools(ctx context.Context, calls []ToolCall) []ToolExecution {
	execs := make([]ToolExecution, 0, len(calls))
	for _, call := range calls {
		toolCtx := r.toolCtx
		toolCtx.ToolCallID = call.ID

		r.sink.append(ctx, eventstore.ToolCallEventPayload{ToolCallID: call.ID, Name: call.Name, ArgsJSON: call.ArgsJSON})
		r.sink.publish(events.ToolCallPayload{Status: events.ToolStatusStarted, Name: call.Name})

		callStart := time.Now()
		result, err := r.pipeline.Run(ctx, call.Name, toolCtx, call.ArgsJSON)
		execs = append(execs, ToolExecution{Call: call, Result: result, Err: err})

		status := events.ToolStatusCompleted
		errMsg := ""
		if err != nil || result.IsError {
			status = events.ToolStatusFailed
			if err != nil {
				errMsg = err.Error()
			}
		}
		r.sink.append(ctx, eventstore.ToolResultEventPayload{
			ToolCallID: call.ID,
			Content:    result.Content,
			IsError:    result.IsError,
			StopsTurn:  result.StopsTurn,
			DurationMs: time.Since(callStart).Milliseconds(),
		})
		r.sink.publish(events.ToolCallPayload{Status: status, Name: call.Name, Result: result.Content, Error: errMsg})
	}
	return execs
}

// MarshalToolResult renders a tools.Result back to the JSON shape a
// provider's tool_result content block expects.
func MarshalToolResult(res tools.Result) (string, error) {
	payload := struct {
		Content string `json:"content"`
		IsError bool   `json:"is_error,omitempty"`
	}{Content: res.Content, IsError: res.IsError}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("turn: marshal tool result: %w", err)
	}
	return string(data), nil
}
