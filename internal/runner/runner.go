// Package runner implements the Agent Runner: it loops the Turn Runner up
// to a configured maximum, deciding after each turn whether to continue,
// and emits the fixed AgentComplete-before-AgentReady event ordering the
// transport layer depends on.
package runner

import (
	"context"
	"fmt"

	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/memory"
	"github.com/dohr-michael/ozzie/internal/retry"
	"github.com/dohr-michael/ozzie/internal/tools"
	"github.com/dohr-michael/ozzie/internal/turn"
)

// StopCondition is why the agent loop stopped.
type StopCondition string

const (
	StopEndTurn           StopCondition = "end_turn"
	StopMaxTurns          StopCondition = "max_turns"
	StopCancelled         StopCondition = "cancelled"
	StopError             StopCondition = "error"
	StopStopTurnRequested StopCondition = "stop_turn_requested"
)

// Config bounds one agent run.
type Config struct {
	MaxTurns int
	// ContextWindow is the model's total token budget, used to compute
	// CurrentTokenRatio for the Memory Manager's compaction trigger. Zero
	// disables ratio computation (the cycle always reports ratio 0).
	ContextWindow int
}

// DefaultConfig caps a run at 50 turns, matching the reference runtime's
// default ceiling against runaway tool loops.
func DefaultConfig() Config {
	return Config{MaxTurns: 50}
}

// TurnFactory opens a turn.Runner for the next turn, given the turns run
// so far. Implementations close over conversation state (history, system
// prompt) and update it between calls based on the previous turn's result.
type TurnFactory func(ctx context.Context, turnIndex int, prior *turn.Result) (*turn.Runner, error)

// StopSignal lets a caller request the loop end after the turn in
// progress completes (e.g. a user "stop" button), without cancelling the
// context outright.
type StopSignal struct {
	requested bool
}

// Request marks that the next turn boundary should stop the loop.
func (s *StopSignal) Request() { s.requested = true }

// Runner loops the Turn Runner to a stop condition.
type Runner struct {
	cfg       Config
	factory   TurnFactory
	bus       *events.Bus
	sessionID string

	memoryManager *memory.CycleManager
	workspaceID   string
	model         string
	workingDir    string
}

// NewRunner builds an agent Runner. bus may be nil if lifecycle events
// aren't needed (e.g. in tests).
func NewRunner(cfg Config, factory TurnFactory, bus *events.Bus, sessionID string) *Runner {
	return &Runner{cfg: cfg, factory: factory, bus: bus, sessionID: sessionID}
}

// WithMemory attaches the Memory Manager invoked after the loop exits.
// workspaceID/model/workingDir populate the CycleInfo it receives. Returns
// r for chaining; a nil mgr (never calling this) leaves on_cycle_complete
// unreachable, matching every existing bare-constructed Runner.
func (r *Runner) WithMemory(mgr *memory.CycleManager, workspaceID, model, workingDir string) *Runner {
	r.memoryManager = mgr
	r.workspaceID = workspaceID
	r.model = model
	r.workingDir = workingDir
	return r
}

// Outcome is the final report of a full agent run.
type Outcome struct {
	Turns      []turn.Result
	Stop       StopCondition
	Err        error
}

// Run loops turns until a stop condition is reached. On every path it
// publishes AgentComplete immediately before AgentReady, a contract the
// websocket/TUI transport relies on to know a turn's output is final
// before the agent signals it can accept new input.
func (r *Runner) Run(ctx context.Context, stop *StopSignal) Outcome {
	r.publish(events.EventAgentStart, nil)

	var outcome Outcome
	var prior *turn.Result

	for i := 0; i < r.cfg.MaxTurns; i++ {
		if ctx.Err() != nil {
			outcome.Stop = StopCancelled
			outcome.Err = ctx.Err()
			break
		}
		if stop != nil && stop.requested {
			outcome.Stop = StopStopTurnRequested
			break
		}

		runner, err := r.factory(ctx, i, prior)
		if err != nil {
			outcome.Stop = StopError
			outcome.Err = fmt.Errorf("runner: build turn %d: %w", i, err)
			break
		}

		result := runner.Run(ctx)
		outcome.Turns = append(outcome.Turns, result)
		prior = &result

		if result.Err != nil && result.StopReason == turn.StopError {
			outcome.Stop = StopError
			outcome.Err = result.Err
			break
		}
		if result.StopReason == turn.StopCancelled {
			outcome.Stop = StopCancelled
			outcome.Err = result.Err
			break
		}
		if result.StopReason == turn.StopEndTurn {
			outcome.Stop = StopEndTurn
			break
		}
		if result.StopsTurn {
			outcome.Stop = StopStopTurnRequested
			break
		}
		// StopToolUse: loop again for the next turn with tool results fed
		// back in via the factory's closure state.
		if i == r.cfg.MaxTurns-1 {
			outcome.Stop = StopMaxTurns
		}
	}

	r.runMemoryCycle(ctx, outcome)

	r.publish(events.EventAgentComplete, map[string]any{"stop": string(outcome.Stop)})
	r.publish(events.EventAgentReady, nil)

	return outcome
}

// runMemoryCycle invokes on_cycle_complete with the just-finished run's
// summary. Compaction always runs before the ledger write inside the
// Memory Manager itself; this just supplies the info it needs.
func (r *Runner) runMemoryCycle(ctx context.Context, outcome Outcome) {
	if r.memoryManager == nil {
		return
	}
	r.memoryManager.OnCycleComplete(ctx, memory.CycleInfo{
		SessionID:         r.sessionID,
		WorkspaceID:       r.workspaceID,
		Model:             r.model,
		WorkingDir:        r.workingDir,
		CurrentTokenRatio: r.tokenRatio(outcome),
		RecentEventTypes:  recentEventTypes(outcome.Turns),
		RecentToolCalls:   recentToolCalls(outcome.Turns),
	})
}

// tokenRatio estimates context usage from the last turn's usage against
// the configured context window. Zero ContextWindow or missing usage
// yields ratio 0, which never trips the compaction trigger.
func (r *Runner) tokenRatio(outcome Outcome) float64 {
	if r.cfg.ContextWindow <= 0 || len(outcome.Turns) == 0 {
		return 0
	}
	last := outcome.Turns[len(outcome.Turns)-1]
	if last.Usage == nil {
		return 0
	}
	used := last.Usage.InputTokens + last.Usage.OutputTokens + last.Usage.CacheReadTokens + last.Usage.CacheCreationTokens
	return float64(used) / float64(r.cfg.ContextWindow)
}

func recentEventTypes(turns []turn.Result) []string {
	types := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		if len(t.ToolCalls) > 0 {
			types = append(types, "tool.call", "tool.result")
		}
		types = append(types, "message.assistant")
	}
	return types
}

func recentToolCalls(turns []turn.Result) []string {
	var names []string
	for _, t := range turns {
		for _, call := range t.ToolCalls {
			names = append(names, call.Name)
		}
	}
	return names
}

func (r *Runner) publish(eventType events.EventType, payload map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewEventWithSession(eventType, events.SourceAgent, payload, r.sessionID))
}

// retryConfigFor is a small convenience so callers building a TurnFactory
// don't need to import internal/retry directly just to get the default.
func retryConfigFor() retry.Config { return retry.DefaultConfig() }

// NewToolContext is a convenience constructor mirroring the fields a
// TurnFactory typically needs to populate per turn.
func NewToolContext(workingDir, sessionID string, maxDepth int) tools.ToolContext {
	return tools.ToolContext{WorkingDir: workingDir, SessionID: sessionID, MaxSubagentDepth: maxDepth}
}
