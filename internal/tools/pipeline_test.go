package tools

import (
	"context"
	"sync"
	"testing"
)

type echoTool struct{ calls int }

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "echoes its args" }
func (e *echoTool) Execute(_ context.Context, _ ToolContext, argsJSON string) (Result, error) {
	e.calls++
	return Result{Content: argsJSON}, nil
}

func TestPipeline_ToolNotFound(t *testing.T) {
	reg := NewRegistry()
	p := NewPipeline(reg, nil, nil, nil)

	result, err := p.Run(context.Background(), "missing", ToolContext{}, "{}")
	if err != nil {
		t.Fatalf("expected synthesized result, got error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing tool")
	}
}

func TestPipeline_GuardrailBlocks(t *testing.T) {
	reg := NewRegistry()
	tool := &echoTool{}
	reg.Register(tool)

	guardrails := NewGuardrailSet(Guardrail{
		Name:     "deny-all",
		Priority: 0,
		Check: func(string, ToolContext, string) GuardrailDecision {
			return DecisionBlock
		},
	})
	p := NewPipeline(reg, guardrails, nil, nil)

	result, err := p.Run(context.Background(), "echo", ToolContext{}, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected guardrail to block")
	}
	if tool.calls != 0 {
		t.Error("tool should not have executed")
	}
}

func TestPipeline_FirstBlockingGuardrailWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&echoTool{})

	var order []string
	guardrails := NewGuardrailSet(
		Guardrail{Name: "later", Priority: 10, Check: func(string, ToolContext, string) GuardrailDecision {
			order = append(order, "later")
			return DecisionBlock
		}},
		Guardrail{Name: "earlier", Priority: 1, Check: func(string, ToolContext, string) GuardrailDecision {
			order = append(order, "earlier")
			return DecisionBlock
		}},
	)
	p := NewPipeline(reg, guardrails, nil, nil)

	if _, err := p.Run(context.Background(), "echo", ToolContext{}, "{}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != "earlier" {
		t.Errorf("expected only the higher-priority rule to run, got %v", order)
	}
}

func TestPipeline_PreHookModifiesArgs(t *testing.T) {
	reg := NewRegistry()
	tool := &echoTool{}
	reg.Register(tool)

	hook := func(_ context.Context, _ string, _ ToolContext, _ string) HookDecision {
		return HookDecision{Action: HookModify, ModifiedArgs: `{"patched":true}`}
	}
	p := NewPipeline(reg, nil, []PreHook{hook}, nil)

	result, err := p.Run(context.Background(), "echo", ToolContext{}, `{"original":true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != `{"patched":true}` {
		t.Errorf("expected modified args echoed back, got %q", result.Content)
	}
}

func TestPipeline_PreHookBlocks(t *testing.T) {
	reg := NewRegistry()
	tool := &echoTool{}
	reg.Register(tool)

	hook := func(_ context.Context, _ string, _ ToolContext, _ string) HookDecision {
		return HookDecision{Action: HookBlock, BlockedReason: "nope"}
	}
	p := NewPipeline(reg, nil, []PreHook{hook}, nil)

	result, err := p.Run(context.Background(), "echo", ToolContext{}, "{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError || result.Content != "nope" {
		t.Errorf("expected block result, got %+v", result)
	}
	if tool.calls != 0 {
		t.Error("tool should not have executed")
	}
}

func TestPipeline_PostHooksFireAndForget(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&echoTool{})

	var wg sync.WaitGroup
	wg.Add(1)
	var observed Result
	post := func(_ string, _ ToolContext, _ string, result Result, _ error) {
		observed = result
		wg.Done()
	}
	p := NewPipeline(reg, nil, nil, []PostHook{post})

	result, err := p.Run(context.Background(), "echo", ToolContext{}, `{"a":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wg.Wait()
	if observed.Content != result.Content {
		t.Errorf("expected post-hook to observe the same result, got %q vs %q", observed.Content, result.Content)
	}
}
