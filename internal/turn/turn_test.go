package turn

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/eventstore"
	"github.com/dohr-michael/ozzie/internal/provider"
	"github.com/dohr-michael/ozzie/internal/retry"
	"github.com/dohr-michael/ozzie/internal/tools"
)

type staticTool struct{ response string }

func (s *staticTool) Name() string        { return "static" }
func (s *staticTool) Description() string { return "" }
func (s *staticTool) Execute(_ context.Context, _ tools.ToolContext, _ string) (tools.Result, error) {
	return tools.Result{Content: s.response}, nil
}

func TestRunner_AssemblesTextOnly(t *testing.T) {
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		out := make(chan provider.StreamEvent, 4)
		out <- provider.StreamEvent{Kind: provider.EventTextStart, Index: 0}
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, Index: 0, TextDelta: "hello "}
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, Index: 0, TextDelta: "world"}
		out <- provider.StreamEvent{Kind: provider.EventTextEnd, Index: 0}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}
	reg := tools.NewRegistry()
	pipeline := tools.NewPipeline(reg, nil, nil, nil)
	r := NewRunner(factory, retry.DefaultConfig(), pipeline, tools.ToolContext{})

	result := r.Run(context.Background())
	if result.Text != "hello world" {
		t.Errorf("expected 'hello world', got %q", result.Text)
	}
	if result.StopReason != StopEndTurn {
		t.Errorf("expected StopEndTurn, got %s", result.StopReason)
	}
}

func TestRunner_ExecutesToolCalls(t *testing.T) {
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		out := make(chan provider.StreamEvent, 8)
		out <- provider.StreamEvent{Kind: provider.EventToolCallStart, Index: 0, ToolCallID: "call-1", ToolCallName: "static"}
		out <- provider.StreamEvent{Kind: provider.EventToolCallDelta, Index: 0, ArgsDelta: `{"a":`}
		out <- provider.StreamEvent{Kind: provider.EventToolCallDelta, Index: 0, ArgsDelta: `1}`}
		out <- provider.StreamEvent{Kind: provider.EventToolCallEnd, Index: 0, ArgsDelta: `{"a":1}`}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}
	reg := tools.NewRegistry()
	reg.Register(&staticTool{response: "done"})
	pipeline := tools.NewPipeline(reg, nil, nil, nil)
	r := NewRunner(factory, retry.DefaultConfig(), pipeline, tools.ToolContext{})

	result := r.Run(context.Background())
	if result.StopReason != StopToolUse {
		t.Errorf("expected StopToolUse, got %s", result.StopReason)
	}
	if len(result.ToolExecutions) != 1 {
		t.Fatalf("expected 1 tool execution, got %d", len(result.ToolExecutions))
	}
	if result.ToolExecutions[0].Result.Content != "done" {
		t.Errorf("expected 'done', got %q", result.ToolExecutions[0].Result.Content)
	}
	if result.ToolCalls[0].ArgsJSON != `{"a":1}` {
		t.Errorf("expected assembled args, got %q", result.ToolCalls[0].ArgsJSON)
	}
}

func TestRunner_ThinkingBlockCarriesSignature(t *testing.T) {
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		out := make(chan provider.StreamEvent, 4)
		out <- provider.StreamEvent{Kind: provider.EventThinkingStart, Index: 0}
		out <- provider.StreamEvent{Kind: provider.EventThinkingDelta, Index: 0, ThinkingDelta: "reasoning..."}
		out <- provider.StreamEvent{Kind: provider.EventThinkingEnd, Index: 0, Signature: provider.ThoughtSignaturePlaceholder}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}
	reg := tools.NewRegistry()
	pipeline := tools.NewPipeline(reg, nil, nil, nil)
	r := NewRunner(factory, retry.DefaultConfig(), pipeline, tools.ToolContext{})

	result := r.Run(context.Background())
	if len(result.ThinkingBlocks) != 1 || result.ThinkingBlocks[0] != "reasoning..." {
		t.Errorf("expected one thinking block, got %v", result.ThinkingBlocks)
	}
}

func newTestSink(t *testing.T) (*eventstore.Store, *events.Bus, string) {
	t.Helper()
	ctx := context.Background()
	store, err := eventstore.OpenMemory(ctx, eventstore.DefaultConnectionConfig())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	wsID := uuid.NewString()
	if err := store.CreateWorkspace(ctx, eventstore.Workspace{ID: wsID, RootDir: "/tmp/ws", Name: "t"}); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	sessID := uuid.NewString()
	if err := store.CreateSession(ctx, eventstore.Session{ID: sessID, WorkspaceID: wsID, Title: "t"}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	return store, bus, sessID
}

func TestRunner_EventSinkPersistsTurnLifecycle(t *testing.T) {
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		out := make(chan provider.StreamEvent, 4)
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, Index: 0, TextDelta: "hi"}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}
	reg := tools.NewRegistry()
	pipeline := tools.NewPipeline(reg, nil, nil, nil)
	store, _, sessID := newTestSink(t)
	r := NewRunner(factory, retry.DefaultConfig(), pipeline, tools.ToolContext{}).
		WithEventSink(&EventSink{Store: store, SessionID: sessID, Model: "claude-test", Provider: "anthropic"})

	result := r.Run(context.Background())
	if result.Text != "hi" {
		t.Fatalf("expected 'hi', got %q", result.Text)
	}

	evs, err := store.GetEventsBySession(context.Background(), sessID)
	if err != nil {
		t.Fatalf("GetEventsBySession: %v", err)
	}
	var gotStart, gotDelta, gotMessage, gotEnd bool
	for _, ev := range evs {
		switch ev.Type {
		case eventstore.EventStreamTurnStart:
			gotStart = true
		case eventstore.EventStreamTextDelta:
			gotDelta = true
		case eventstore.EventMessageAssistant:
			gotMessage = true
		case eventstore.EventStreamTurnEnd:
			gotEnd = true
		}
	}
	if !gotStart || !gotDelta || !gotMessage || !gotEnd {
		t.Errorf("expected turn_start, text_delta, message.assistant, turn_end events; got %+v", evs)
	}
}

func TestRunner_StopsTurnPropagatesFromToolResult(t *testing.T) {
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		out := make(chan provider.StreamEvent, 4)
		out <- provider.StreamEvent{Kind: provider.EventToolCallStart, Index: 0, ToolCallID: "call-1", ToolCallName: "static"}
		out <- provider.StreamEvent{Kind: provider.EventToolCallEnd, Index: 0, ArgsDelta: `{}`}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}
	reg := tools.NewRegistry()
	reg.Register(&stopsTurnTool{})
	pipeline := tools.NewPipeline(reg, nil, nil, nil)
	r := NewRunner(factory, retry.DefaultConfig(), pipeline, tools.ToolContext{})

	result := r.Run(context.Background())
	if !result.StopsTurn {
		t.Error("expected StopsTurn to propagate from the tool result")
	}
}

type stopsTurnTool struct{}

func (s *stopsTurnTool) Name() string        { return "static" }
func (s *stopsTurnTool) Description() string { return "" }
func (s *stopsTurnTool) Execute(_ context.Context, _ tools.ToolContext, _ string) (tools.Result, error) {
	return tools.Result{Content: "done", StopsTurn: true}, nil
}
