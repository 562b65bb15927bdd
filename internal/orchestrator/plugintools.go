package orchestrator

import (
	"context"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/plugins"
	"github.com/dohr-michael/ozzie/internal/tools"
)

// PluginRegistrySource is the subset of *plugins.ToolRegistry NewToolsFromPlugins
// needs: everything the WASM/native/MCP tool ecosystem already built for the
// ADK chat path, reused here so the native path doesn't maintain a second
// tool catalog.
type PluginRegistrySource interface {
	ToolNames() []string
	Tool(name string) tool.InvokableTool
	ToolSpec(name string) *plugins.ToolSpec
}

// NewToolsFromPlugins copies every tool known to src into a tools.Registry,
// wrapping each eino tool.InvokableTool behind the tools.Tool interface so
// the Turn Runner's pipeline (guardrails, hooks, StopsTurn) can run over the
// exact same WASM/native/MCP tools the ADK EventRunner uses.
func NewToolsFromPlugins(src PluginRegistrySource) *tools.Registry {
	reg := tools.NewRegistry()
	for _, name := range src.ToolNames() {
		t := src.Tool(name)
		if t == nil {
			continue
		}
		reg.Register(&pluginToolAdapter{name: name, inner: t, spec: src.ToolSpec(name)})
	}
	return reg
}

// pluginToolAdapter adapts one eino tool.InvokableTool to tools.Tool, and to
// tools.Describable when the plugin registry holds a ToolSpec for it (native
// and WASM tools; MCP tools without a spec fall back to an empty schema).
type pluginToolAdapter struct {
	name  string
	inner tool.InvokableTool
	spec  *plugins.ToolSpec
}

func (a *pluginToolAdapter) Name() string { return a.name }

func (a *pluginToolAdapter) Description() string {
	if a.spec != nil {
		return a.spec.Description
	}
	info, err := a.inner.Info(context.Background())
	if err != nil || info == nil {
		return ""
	}
	return info.Desc
}

func (a *pluginToolAdapter) Execute(ctx context.Context, tc tools.ToolContext, argsJSON string) (tools.Result, error) {
	ctx = events.ContextWithSessionID(ctx, tc.SessionID)
	out, err := a.inner.InvokableRun(ctx, argsJSON)
	if err != nil {
		return tools.Result{Content: err.Error(), IsError: true}, nil
	}
	return tools.Result{Content: out}, nil
}

func (a *pluginToolAdapter) Params() map[string]tools.ToolParam {
	if a.spec == nil {
		return nil
	}
	params := make(map[string]tools.ToolParam, len(a.spec.Parameters))
	for name, p := range a.spec.Parameters {
		params[name] = tools.ToolParam{
			Type:        p.Type,
			Description: p.Description,
			Required:    p.Required,
			Enum:        p.Enum,
		}
	}
	return params
}

var _ tools.Describable = (*pluginToolAdapter)(nil)
