// Package tools implements tool resolution and the
// guardrails -> pre-hooks -> execute -> post-hooks execution pipeline.
package tools

import "context"

// Tool is anything the agent can invoke by name. Native Go tools, WASM
// plugin tools, and MCP-backed tools all implement this one interface, so
// the pipeline below treats them identically.
type Tool interface {
	Name() string
	Description() string
	// Execute runs the tool. argsJSON is the raw JSON arguments the
	// provider produced for the call.
	Execute(ctx context.Context, tc ToolContext, argsJSON string) (Result, error)
}

// ToolParam describes one argument a tool accepts, mirroring the WASM
// plugin manifest's parameter shape so both paths feed the same JSON
// Schema conversion at the provider boundary.
type ToolParam struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// Describable is implemented by tools that can report their argument
// schema. Tools that don't implement it get an empty, permissive schema
// when converted for a provider request.
type Describable interface {
	Params() map[string]ToolParam
}

// ToolContext carries everything a tool needs beyond its arguments.
type ToolContext struct {
	WorkingDir       string
	SessionID        string
	ToolCallID       string
	SubagentDepth    int
	MaxSubagentDepth int
}

// Result is what a tool execution produces for the provider to see.
type Result struct {
	Content  string
	IsError  bool
	Metadata map[string]any
	// StopsTurn, when set by the tool, tells the Agent Runner to exit the
	// cycle loop after this turn instead of looping for another one.
	StopsTurn bool
}

// Registry resolves tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Lookup resolves name to a Tool, or ok=false if unknown.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
