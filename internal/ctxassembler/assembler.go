// Package ctxassembler builds the provider-facing message list from
// system-prompt parts, rules, skills, the memory ledger, and turn history,
// in the fixed order the rest of the system depends on.
package ctxassembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cloudwego/eino/schema"
)

// Rule is a workspace rule that only activates for matching paths, in
// addition to always-on rules (PathGlobs empty).
type Rule struct {
	Name      string
	Body      string
	PathGlobs []string // empty means always active
}

// Active reports whether r applies given the set of paths touched so far
// in the session (file reads/writes/edits).
func (r Rule) Active(touchedPaths []string) bool {
	if len(r.PathGlobs) == 0 {
		return true
	}
	for _, glob := range r.PathGlobs {
		for _, path := range touchedPaths {
			if matched, _ := doublestar.Match(glob, path); matched {
				return true
			}
		}
	}
	return false
}

// Parts is every input the assembler composes, in the order spec.md names
// them: base instructions, custom instructions, active rules, skill
// descriptions, memory ledger, then turn history.
type Parts struct {
	BaseInstructions   string
	CustomInstructions string
	Rules              []Rule
	TouchedPaths       []string
	SkillDescriptions  map[string]string // name -> description
	MemoryLedger       string            // rendered markdown, already ordered
	History            []*schema.Message
}

// Assembler composes Parts into the final message list handed to a
// provider adapter.
type Assembler struct{}

// New creates an Assembler.
func New() *Assembler { return &Assembler{} }

// Assemble renders the system prompt from every non-history part, then
// appends History unchanged, producing the message list a provider
// adapter sends on the wire.
func (a *Assembler) Assemble(p Parts) []*schema.Message {
	system := a.renderSystemPrompt(p)

	messages := make([]*schema.Message, 0, len(p.History)+1)
	if system != "" {
		messages = append(messages, &schema.Message{Role: schema.System, Content: system})
	}
	messages = append(messages, p.History...)
	return messages
}

func (a *Assembler) renderSystemPrompt(p Parts) string {
	var sections []string

	if p.BaseInstructions != "" {
		sections = append(sections, p.BaseInstructions)
	}

	if p.CustomInstructions != "" {
		sections = append(sections, "## Additional Instructions\n\n"+p.CustomInstructions)
	}

	if active := activeRules(p.Rules, p.TouchedPaths); len(active) > 0 {
		var sb strings.Builder
		sb.WriteString("## Active Rules\n\n")
		for _, r := range active {
			sb.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", r.Name, r.Body))
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if len(p.SkillDescriptions) > 0 {
		names := make([]string, 0, len(p.SkillDescriptions))
		for name := range p.SkillDescriptions {
			names = append(names, name)
		}
		sort.Strings(names)

		var sb strings.Builder
		sb.WriteString("## Available Skills\n\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", name, p.SkillDescriptions[name]))
		}
		sections = append(sections, strings.TrimRight(sb.String(), "\n"))
	}

	if p.MemoryLedger != "" {
		sections = append(sections, "## Memory\n\n"+p.MemoryLedger)
	}

	return strings.Join(sections, "\n\n")
}

func activeRules(rules []Rule, touchedPaths []string) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Active(touchedPaths) {
			out = append(out, r)
		}
	}
	return out
}
