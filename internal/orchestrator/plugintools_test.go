package orchestrator

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/ozzie/internal/plugins"
	"github.com/dohr-michael/ozzie/internal/tools"
)

type fakeInvokableTool struct {
	info *schema.ToolInfo
	out  string
	err  error
}

func (f *fakeInvokableTool) Info(context.Context) (*schema.ToolInfo, error) { return f.info, nil }
func (f *fakeInvokableTool) InvokableRun(context.Context, string, ...tool.Option) (string, error) {
	return f.out, f.err
}

type fakePluginSource struct {
	names map[string]tool.InvokableTool
	specs map[string]*plugins.ToolSpec
}

func (s *fakePluginSource) ToolNames() []string {
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	return names
}
func (s *fakePluginSource) Tool(name string) tool.InvokableTool    { return s.names[name] }
func (s *fakePluginSource) ToolSpec(name string) *plugins.ToolSpec { return s.specs[name] }

func TestNewToolsFromPlugins_AdaptsDescribableSchema(t *testing.T) {
	src := &fakePluginSource{
		names: map[string]tool.InvokableTool{
			"grep": &fakeInvokableTool{info: &schema.ToolInfo{Name: "grep", Desc: "search files"}, out: "matched"},
		},
		specs: map[string]*plugins.ToolSpec{
			"grep": {
				Name:        "grep",
				Description: "search files",
				Parameters: map[string]plugins.ParamSpec{
					"pattern": {Type: "string", Description: "regex pattern", Required: true},
				},
			},
		},
	}

	reg := NewToolsFromPlugins(src)
	grepTool, ok := reg.Lookup("grep")
	if !ok {
		t.Fatalf("expected grep to be registered")
	}
	if grepTool.Description() != "search files" {
		t.Errorf("expected description from ToolSpec, got %q", grepTool.Description())
	}
	describable, ok := grepTool.(tools.Describable)
	if !ok {
		t.Fatalf("expected adapted tool to implement Describable")
	}
	params := describable.Params()
	if p, ok := params["pattern"]; !ok || !p.Required {
		t.Errorf("expected required 'pattern' param, got %+v", params)
	}

	result, err := grepTool.Execute(context.Background(), tools.ToolContext{SessionID: "sess1"}, `{"pattern":"foo"}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "matched" || result.IsError {
		t.Errorf("expected passthrough result, got %+v", result)
	}
}

func TestNewToolsFromPlugins_ErrorBecomesResultError(t *testing.T) {
	src := &fakePluginSource{
		names: map[string]tool.InvokableTool{
			"broken": &fakeInvokableTool{info: &schema.ToolInfo{Name: "broken"}, err: context.DeadlineExceeded},
		},
		specs: map[string]*plugins.ToolSpec{},
	}

	reg := NewToolsFromPlugins(src)
	brokenTool, _ := reg.Lookup("broken")
	result, err := brokenTool.Execute(context.Background(), tools.ToolContext{}, "{}")
	if err != nil {
		t.Fatalf("Execute should not return a Go error for a tool failure, got %v", err)
	}
	if !result.IsError {
		t.Errorf("expected IsError=true, got %+v", result)
	}
}
