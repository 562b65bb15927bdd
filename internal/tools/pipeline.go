package tools

import (
	"context"
	"fmt"

	"github.com/dohr-michael/ozzie/internal/events"
)

// HookAction is what a pre-hook tells the pipeline to do.
type HookAction int

const (
	HookContinue HookAction = iota
	HookModify
	HookBlock
)

// HookDecision is the result of running one pre-hook.
type HookDecision struct {
	Action        HookAction
	ModifiedArgs  string // used when Action == HookModify
	BlockedReason string // used when Action == HookBlock
}

// PreHook runs before tool execution and can rewrite the arguments or veto
// the call outright.
type PreHook func(ctx context.Context, toolName string, tc ToolContext, argsJSON string) HookDecision

// PostHook runs after execution, fire-and-forget: its return value is
// ignored by the pipeline, and it must not block the caller.
type PostHook func(toolName string, tc ToolContext, argsJSON string, result Result, execErr error)

// Pipeline wires resolution, guardrails, pre-hooks, execution, and
// post-hooks into the single ordered flow every tool call goes through.
type Pipeline struct {
	registry   *Registry
	guardrails *GuardrailSet
	preHooks   []PreHook
	postHooks  []PostHook
	bus        *events.Bus
}

// NewPipeline builds a Pipeline over registry, evaluating rules with
// guardrails (may be nil for none) and running preHooks/postHooks in the
// order given.
func NewPipeline(registry *Registry, guardrails *GuardrailSet, preHooks []PreHook, postHooks []PostHook) *Pipeline {
	return &Pipeline{registry: registry, guardrails: guardrails, preHooks: preHooks, postHooks: postHooks}
}

// WithEventBus attaches a bus so Run broadcasts HookTriggered/HookCompleted
// around the pre-hook batch. Returns p for chaining; a nil bus (the zero
// value) leaves hook broadcasting disabled.
func (p *Pipeline) WithEventBus(bus *events.Bus) *Pipeline {
	p.bus = bus
	return p
}

// ErrToolNotFound is synthesized as a Result (not a Go error) so the
// provider sees a normal tool_result it can react to, rather than the turn
// aborting outright.
const toolNotFoundTemplate = "tool %q is not registered"

// Run resolves toolName, evaluates guardrails, runs pre-hooks, executes
// the tool, then fires post-hooks (which never affect the returned
// Result). A guardrail block or pre-hook block is surfaced as an
// IsError Result, not a Go error, matching how the provider consumes
// tool_result content.
func (p *Pipeline) Run(ctx context.Context, toolName string, tc ToolContext, argsJSON string) (Result, error) {
	tool, ok := p.registry.Lookup(toolName)
	if !ok {
		return Result{Content: fmt.Sprintf(toolNotFoundTemplate, toolName), IsError: true}, nil
	}

	if p.guardrails != nil {
		if decision, rule := p.guardrails.Evaluate(toolName, tc, argsJSON); decision == DecisionBlock {
			return Result{Content: fmt.Sprintf("blocked by guardrail %q", rule), IsError: true}, nil
		}
	}

	if p.bus != nil && len(p.preHooks) > 0 {
		p.bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, events.HookTriggeredPayload{
			ToolCallID: tc.ToolCallID,
			ToolName:   toolName,
			HookCount:  len(p.preHooks),
		}, tc.SessionID))
	}

	effectiveArgs := argsJSON
	blocked := false
	for _, hook := range p.preHooks {
		decision := hook(ctx, toolName, tc, effectiveArgs)
		switch decision.Action {
		case HookBlock:
			blocked = true
			if p.bus != nil {
				p.bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, events.HookCompletedPayload{
					ToolCallID: tc.ToolCallID,
					ToolName:   toolName,
					Blocked:    true,
				}, tc.SessionID))
			}
			return Result{Content: decision.BlockedReason, IsError: true}, nil
		case HookModify:
			effectiveArgs = decision.ModifiedArgs
		}
	}

	if p.bus != nil && len(p.preHooks) > 0 && !blocked {
		p.bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, events.HookCompletedPayload{
			ToolCallID: tc.ToolCallID,
			ToolName:   toolName,
			Blocked:    false,
		}, tc.SessionID))
	}

	result, err := tool.Execute(ctx, tc, effectiveArgs)

	for _, hook := range p.postHooks {
		go hook(toolName, tc, effectiveArgs, result, err)
	}

	return result, err
}
