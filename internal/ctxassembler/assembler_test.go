package ctxassembler

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestAssemble_OrdersSectionsAndAppendsHistory(t *testing.T) {
	a := New()
	parts := Parts{
		BaseInstructions:   "You are a coding agent.",
		CustomInstructions: "Prefer tabs.",
		Rules: []Rule{
			{Name: "go-style", Body: "Use gofmt.", PathGlobs: []string{"**/*.go"}},
			{Name: "python-style", Body: "Use black.", PathGlobs: []string{"**/*.py"}},
		},
		TouchedPaths:      []string{"internal/foo.go"},
		SkillDescriptions: map[string]string{"search": "searches the web"},
		MemoryLedger:      "- remembered fact",
		History: []*schema.Message{
			{Role: schema.User, Content: "hello"},
		},
	}

	messages := a.Assemble(parts)
	if len(messages) != 2 {
		t.Fatalf("expected system + 1 history message, got %d", len(messages))
	}
	if messages[0].Role != schema.System {
		t.Fatalf("expected first message to be system, got %s", messages[0].Role)
	}

	system := messages[0].Content
	baseIdx := strings.Index(system, "You are a coding agent.")
	customIdx := strings.Index(system, "Prefer tabs.")
	rulesIdx := strings.Index(system, "go-style")
	skillsIdx := strings.Index(system, "Available Skills")
	memoryIdx := strings.Index(system, "Memory")

	if !(baseIdx < customIdx && customIdx < rulesIdx && rulesIdx < skillsIdx && skillsIdx < memoryIdx) {
		t.Errorf("expected fixed section order, got indices base=%d custom=%d rules=%d skills=%d memory=%d",
			baseIdx, customIdx, rulesIdx, skillsIdx, memoryIdx)
	}
	if strings.Contains(system, "python-style") {
		t.Error("expected inactive path-scoped rule to be excluded")
	}
	if messages[1].Content != "hello" {
		t.Errorf("expected history message preserved, got %q", messages[1].Content)
	}
}

func TestAssemble_EmptyPartsProduceOnlyHistory(t *testing.T) {
	a := New()
	messages := a.Assemble(Parts{History: []*schema.Message{{Role: schema.User, Content: "hi"}}})
	if len(messages) != 1 {
		t.Fatalf("expected no system message when all parts are empty, got %d messages", len(messages))
	}
}

func TestRule_ActiveAlwaysOn(t *testing.T) {
	r := Rule{Name: "always", Body: "x"}
	if !r.Active(nil) {
		t.Error("expected rule with no PathGlobs to always be active")
	}
}
