// Package prompt assembles the per-request instruction set from up to four
// fragment kinds: the tool-rules module, the tenant's base instructions,
// live capability documentation, and the remaining selected modules. The
// assembly order is fixed and load-bearing; each fragment is tracked in a
// breakdown record for diagnostic replay.
package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/config"
)

// Separator terminates each fragment. It is stable so that breakdown
// offsets stay meaningful across releases.
const Separator = "\n\n---\n\n"

// Fragment source identifiers used in the breakdown record.
const (
	SourceBase = "base"
	SourceDocs = "directory_docs"

	sourceToolRulesPrefix = "tool_rules:"
	sourceModulePrefix    = "module:"
)

var moduleNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Assembler builds instruction sets from the module directory. It holds
// only the directory path; every Assemble call re-reads module files so
// edits take effect on the next request.
type Assembler struct {
	modulesDir string
}

// New creates an Assembler over the configured modules directory.
func New(cfg *config.Config) *Assembler {
	return &Assembler{modulesDir: cfg.Tenants.ModulesDir}
}

// Assemble concatenates the instruction fragments for one request.
//
// Order:
//  1. The tool-rules module, when selected. Capability-selection policy
//     must precede the capability descriptions it governs; models weight
//     earlier instructions more heavily for behavior-shaping rules.
//  2. The base instructions (required; enforced by the config resolver).
//  3. directoryDocs, the live capability documentation. Empty when the
//     tenant has no collections or the data source is unavailable.
//  4. The remaining selected modules in listed order, excluding the
//     tool-rules module already placed first.
//
// A missing or unreadable module file is skipped with a warning, never
// fatal. The returned prompt is immutable.
func (a *Assembler) Assemble(ac *config.AgentConfig, directoryDocs string) (*api.Prompt, error) {
	if ac.BaseInstructions == "" {
		return nil, api.NewConfigurationError("instruction_file", "base instructions are empty")
	}

	type fragment struct {
		source string
		text   string
	}
	var fragments []fragment

	if ac.ToolRulesModule != "" {
		if text, ok := a.readModule(ac.Tenant, ac.ToolRulesModule); ok {
			fragments = append(fragments, fragment{
				source: sourceToolRulesPrefix + ac.ToolRulesModule,
				text:   text,
			})
		}
	}

	fragments = append(fragments, fragment{source: SourceBase, text: ac.BaseInstructions})

	if directoryDocs != "" {
		fragments = append(fragments, fragment{source: SourceDocs, text: directoryDocs})
	}

	for _, name := range ac.Modules {
		if name == ac.ToolRulesModule {
			continue
		}
		if text, ok := a.readModule(ac.Tenant, name); ok {
			fragments = append(fragments, fragment{source: sourceModulePrefix + name, text: text})
		}
	}

	var b strings.Builder
	breakdown := make([]api.Fragment, 0, len(fragments))
	for i, f := range fragments {
		text := strings.TrimRight(f.text, "\n")
		b.WriteString(text)
		if i < len(fragments)-1 {
			b.WriteString(Separator)
		}
		breakdown = append(breakdown, api.Fragment{
			Source: f.source,
			Index:  i,
			Length: len(text),
		})
	}

	return &api.Prompt{Text: b.String(), Fragments: breakdown}, nil
}

// readModule loads one instruction module. Unknown names and unreadable
// files are reported as absent.
func (a *Assembler) readModule(tenant config.Tenant, name string) (string, bool) {
	if !moduleNameRE.MatchString(name) {
		slog.Warn("skipping instruction module with invalid name",
			"tenant", tenant.ID(),
			"module", name,
		)
		return "", false
	}

	path := filepath.Join(a.modulesDir, name+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("skipping unreadable instruction module",
			"tenant", tenant.ID(),
			"module", name,
			"error", err.Error(),
		)
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// Describe renders a short human-readable summary of a breakdown record,
// used in logs.
func Describe(fragments []api.Fragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, fmt.Sprintf("%s(%d)", f.Source, f.Length))
	}
	return strings.Join(parts, " + ")
}
