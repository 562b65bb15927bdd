// Package orchestrator wires the Context Assembler, Turn Runner, Agent
// Runner, and Memory Manager into the event-driven chat path: it
// subscribes to the same user-message event the Eino ADK EventRunner
// reacts to, and is the "native" alternative selected by
// config.AgentConfig.ChatEngine == "native".
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/ozzie/internal/ctxassembler"
	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/eventstore"
	"github.com/dohr-michael/ozzie/internal/memory"
	"github.com/dohr-michael/ozzie/internal/provider"
	"github.com/dohr-michael/ozzie/internal/retry"
	"github.com/dohr-michael/ozzie/internal/runner"
	"github.com/dohr-michael/ozzie/internal/sessions"
	"github.com/dohr-michael/ozzie/internal/tools"
	"github.com/dohr-michael/ozzie/internal/turn"

	"github.com/anthropics/anthropic-sdk-go"
)

// SessionStore is the subset of sessions.Store the orchestrator needs.
type SessionStore interface {
	AppendMessage(sessionID string, msg sessions.Message) error
	LoadMessages(sessionID string) ([]sessions.Message, error)
}

// MemoryRetriever is the subset of memory.HybridRetriever the orchestrator
// needs to populate the assembled system prompt's memory ledger.
type MemoryRetriever interface {
	Retrieve(query string, tags []string, limit int) ([]memory.RetrievedMemory, error)
}

// Config is everything NewNativeRunner needs to wire the chat path.
type Config struct {
	Bus             *events.Bus
	EventStore      *eventstore.Store
	SessionStore    SessionStore
	WorkspaceID     string
	ToolRegistry    *tools.Registry
	ToolPipeline    *tools.Pipeline
	MemoryRetriever MemoryRetriever      // optional
	MemoryManager   *memory.CycleManager // optional

	Provider      provider.AnthropicClientConfig
	RetryCfg      retry.Config
	MaxTurns      int
	ContextWindow int // total context window in tokens, for the Memory Manager's compaction trigger
	WorkingDir    string

	// StreamFactoryBuilder overrides how each turn opens its provider
	// stream. Defaults to provider.NewAnthropicStreamFactory; tests
	// substitute a stub here to drive the orchestrator without a live
	// Anthropic connection.
	StreamFactoryBuilder func(client anthropic.Client, cfg provider.AnthropicClientConfig, messages []*schema.Message, toolInfos []*schema.ToolInfo) func(ctx context.Context) (<-chan provider.StreamEvent, error)

	Persona            string
	CustomInstructions string
}

// NativeRunner drives one turn.Runner/runner.Runner cycle per incoming
// user message, mirroring agent.EventRunner's per-session serialization
// but over the Turn/Agent Runner stack instead of an Eino adk.Runner.
type NativeRunner struct {
	cfg    Config
	client anthropic.Client

	mu      sync.Mutex
	running map[string]bool

	unsubscribe func()
}

// NewNativeRunner builds a NativeRunner and subscribes it to
// events.EventUserMessage. Call Close to unsubscribe.
func NewNativeRunner(cfg Config) *NativeRunner {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 50
	}
	if cfg.StreamFactoryBuilder == nil {
		cfg.StreamFactoryBuilder = provider.NewAnthropicStreamFactory
	}
	nr := &NativeRunner{
		cfg:     cfg,
		client:  provider.NewAnthropicClient(cfg.Provider),
		running: make(map[string]bool),
	}
	nr.unsubscribe = cfg.Bus.Subscribe(nr.handleEvent, events.EventUserMessage)
	return nr
}

// Close unsubscribes from the bus.
func (nr *NativeRunner) Close() {
	if nr.unsubscribe != nil {
		nr.unsubscribe()
	}
}

func (nr *NativeRunner) handleEvent(event events.Event) {
	if event.Type != events.EventUserMessage {
		return
	}
	payload, ok := events.GetUserMessagePayload(event)
	if !ok || payload.Content == "" {
		return
	}
	go nr.processMessage(event.SessionID, payload.Content)
}

func (nr *NativeRunner) processMessage(sessionID, content string) {
	nr.mu.Lock()
	if nr.running[sessionID] {
		nr.mu.Unlock()
		return
	}
	nr.running[sessionID] = true
	nr.mu.Unlock()
	defer func() {
		nr.mu.Lock()
		delete(nr.running, sessionID)
		nr.mu.Unlock()
	}()

	ctx := events.ContextWithSessionID(context.Background(), sessionID)

	userMsg := sessions.Message{Role: string(schema.User), Content: content, Ts: time.Now()}
	if err := nr.cfg.SessionStore.AppendMessage(sessionID, userMsg); err != nil {
		slog.Error("orchestrator: persist user message", "error", err, "session_id", sessionID)
	}

	history, err := nr.cfg.SessionStore.LoadMessages(sessionID)
	if err != nil {
		slog.Error("orchestrator: load messages", "error", err, "session_id", sessionID)
		nr.emitError(sessionID, "failed to load session history")
		return
	}
	messages := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		msg := m.ToSchemaMessage()
		if msg.Content == "" && msg.Role != schema.Assistant {
			continue
		}
		messages = append(messages, msg)
	}

	parts := ctxassembler.Parts{
		BaseInstructions:   nr.cfg.Persona,
		CustomInstructions: nr.cfg.CustomInstructions,
		MemoryLedger:       nr.renderLedger(content),
		History:            messages,
	}
	assembled := ctxassembler.New().Assemble(parts)

	toolInfos := buildToolInfos(nr.cfg.ToolRegistry)
	toolCtx := tools.ToolContext{WorkingDir: nr.cfg.WorkingDir, SessionID: sessionID}
	sink := &turn.EventSink{
		Store:       nr.cfg.EventStore,
		Bus:         nr.cfg.Bus,
		SessionID:   sessionID,
		WorkspaceID: nr.cfg.WorkspaceID,
		Model:       nr.cfg.Provider.Model,
		Provider:    "anthropic",
	}

	factory := nr.turnFactory(assembled, toolInfos, toolCtx, sink)
	agentRunner := runner.NewRunner(
		runner.Config{MaxTurns: nr.cfg.MaxTurns, ContextWindow: nr.cfg.ContextWindow},
		factory, nr.cfg.Bus, sessionID,
	)
	if nr.cfg.MemoryManager != nil {
		agentRunner = agentRunner.WithMemory(nr.cfg.MemoryManager, nr.cfg.WorkspaceID, nr.cfg.Provider.Model, nr.cfg.WorkingDir)
	}

	outcome := agentRunner.Run(ctx, nil)

	if final := lastAssistantText(outcome); final != "" {
		assistantMsg := sessions.Message{Role: string(schema.Assistant), Content: final, Ts: time.Now()}
		if err := nr.cfg.SessionStore.AppendMessage(sessionID, assistantMsg); err != nil {
			slog.Error("orchestrator: persist assistant message", "error", err, "session_id", sessionID)
		}
	}
	if outcome.Err != nil {
		slog.Warn("orchestrator: run ended with error", "error", outcome.Err, "stop", outcome.Stop, "session_id", sessionID)
	}
}

// turnFactory closes over the assembled message list, appending each
// prior turn's assistant + tool-result messages before opening the next
// provider request — the running conversation state an ADK adk.Runner
// would otherwise track internally.
func (nr *NativeRunner) turnFactory(initial []*schema.Message, toolInfos []*schema.ToolInfo, toolCtx tools.ToolContext, sink *turn.EventSink) runner.TurnFactory {
	messages := append([]*schema.Message(nil), initial...)
	return func(ctx context.Context, idx int, prior *turn.Result) (*turn.Runner, error) {
		if prior != nil {
			messages = append(messages, priorToMessages(*prior)...)
		}
		streamFactory := nr.cfg.StreamFactoryBuilder(nr.client, nr.cfg.Provider, messages, toolInfos)
		return turn.NewRunner(streamFactory, nr.cfg.RetryCfg, nr.cfg.ToolPipeline, toolCtx).WithEventSink(sink), nil
	}
}

func priorToMessages(result turn.Result) []*schema.Message {
	assistant := &schema.Message{Role: schema.Assistant, Content: result.Text}
	for _, c := range result.ToolCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, schema.ToolCall{
			ID:       c.ID,
			Function: schema.FunctionCall{Name: c.Name, Arguments: c.ArgsJSON},
		})
	}
	out := []*schema.Message{assistant}
	for _, exec := range result.ToolExecutions {
		out = append(out, &schema.Message{Role: schema.Tool, ToolCallID: exec.Call.ID, Content: exec.Result.Content})
	}
	return out
}

func lastAssistantText(outcome runner.Outcome) string {
	for i := len(outcome.Turns) - 1; i >= 0; i-- {
		if outcome.Turns[i].Text != "" {
			return outcome.Turns[i].Text
		}
	}
	return ""
}

func (nr *NativeRunner) renderLedger(query string) string {
	if nr.cfg.MemoryRetriever == nil {
		return ""
	}
	hits, err := nr.cfg.MemoryRetriever.Retrieve(query, nil, 5)
	if err != nil || len(hits) == 0 {
		return ""
	}
	var sb []byte
	for _, m := range hits {
		sb = append(sb, []byte(fmt.Sprintf("- **[%s] %s**: %s\n", m.Entry.Type, m.Entry.Title, m.Content))...)
	}
	return string(sb)
}

func (nr *NativeRunner) emitError(sessionID, msg string) {
	nr.cfg.Bus.Publish(events.NewTypedEventWithSession(events.SourceAgent, events.AssistantMessagePayload{Error: msg}, sessionID))
}

// buildToolInfos converts every registered tool to a schema.ToolInfo,
// reusing tool.Describable's parameter map where a tool implements it
// (mirroring plugins.toolSpecToToolInfo's ToolSpec-to-ToolInfo conversion
// for WASM plugin tools).
func buildToolInfos(reg *tools.Registry) []*schema.ToolInfo {
	if reg == nil {
		return nil
	}
	names := reg.Names()
	sort.Strings(names)

	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		t, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		info := &schema.ToolInfo{Name: t.Name(), Desc: t.Description()}
		if d, ok := t.(tools.Describable); ok {
			if params := d.Params(); len(params) > 0 {
				schemaParams := make(map[string]*schema.ParameterInfo, len(params))
				for pname, p := range params {
					schemaParams[pname] = &schema.ParameterInfo{
						Type:     paramDataType(p.Type),
						Desc:     p.Description,
						Required: p.Required,
						Enum:     p.Enum,
					}
				}
				info.ParamsOneOf = schema.NewParamsOneOfByParams(schemaParams)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func paramDataType(t string) schema.DataType {
	switch t {
	case "number":
		return schema.Number
	case "integer":
		return schema.Integer
	case "boolean":
		return schema.Boolean
	case "array":
		return schema.Array
	case "object":
		return schema.Object
	default:
		return schema.String
	}
}
