package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/averbach/colloquy/pkg/config"
)

func newTestAssembler(t *testing.T, modules map[string]string) *Assembler {
	t.Helper()
	dir := t.TempDir()
	for name, content := range modules {
		if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Defaults()
	cfg.Tenants.ModulesDir = dir
	return New(&cfg)
}

func testAgent() *config.AgentConfig {
	return &config.AgentConfig{
		BaseInstructions: "You are a helpful garden-center assistant.",
		Tenant:           config.Tenant{Account: "acme", Agent: "support"},
	}
}

func TestAssemble_BaseOnly(t *testing.T) {
	a := newTestAssembler(t, nil)

	p, err := a.Assemble(testAgent(), "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if p.Text != "You are a helpful garden-center assistant." {
		t.Errorf("text = %q", p.Text)
	}
	if len(p.Fragments) != 1 || p.Fragments[0].Source != SourceBase {
		t.Errorf("fragments = %+v", p.Fragments)
	}
}

func TestAssemble_ToolRulesAlwaysFirst(t *testing.T) {
	a := newTestAssembler(t, map[string]string{
		"tool-rules": "Prefer directory search before answering.",
		"tone":       "Keep answers short.",
	})

	ac := testAgent()
	// Listed last on purpose; position in Modules must not matter.
	ac.Modules = []string{"tone", "tool-rules"}
	ac.ToolRulesModule = "tool-rules"

	p, err := a.Assemble(ac, "## Collections\n- plants: 120 entries")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	parts := strings.Split(p.Text, Separator)
	if len(parts) != 4 {
		t.Fatalf("parts = %d, want 4: %q", len(parts), p.Text)
	}
	if parts[0] != "Prefer directory search before answering." {
		t.Errorf("first fragment = %q, want tool rules", parts[0])
	}
	if parts[1] != "You are a helpful garden-center assistant." {
		t.Errorf("second fragment = %q, want base", parts[1])
	}
	if !strings.HasPrefix(parts[2], "## Collections") {
		t.Errorf("third fragment = %q, want docs", parts[2])
	}
	if parts[3] != "Keep answers short." {
		t.Errorf("fourth fragment = %q, want tone module", parts[3])
	}

	wantSources := []string{"tool_rules:tool-rules", SourceBase, SourceDocs, "module:tone"}
	for i, want := range wantSources {
		if p.Fragments[i].Source != want {
			t.Errorf("fragment %d source = %q, want %q", i, p.Fragments[i].Source, want)
		}
		if p.Fragments[i].Index != i {
			t.Errorf("fragment %d index = %d", i, p.Fragments[i].Index)
		}
	}
}

func TestAssemble_ToolRulesNotDuplicated(t *testing.T) {
	a := newTestAssembler(t, map[string]string{
		"rules": "Rules text.",
	})

	ac := testAgent()
	ac.Modules = []string{"rules"}
	ac.ToolRulesModule = "rules"

	p, err := a.Assemble(ac, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := strings.Count(p.Text, "Rules text."); got != 1 {
		t.Errorf("tool-rules module appears %d times", got)
	}
}

func TestAssemble_MissingModuleSkipped(t *testing.T) {
	a := newTestAssembler(t, map[string]string{
		"tone": "Keep answers short.",
	})

	ac := testAgent()
	ac.Modules = []string{"nonexistent", "tone"}

	p, err := a.Assemble(ac, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(p.Fragments) != 2 {
		t.Errorf("fragments = %+v", p.Fragments)
	}
	if !strings.Contains(p.Text, "Keep answers short.") {
		t.Errorf("surviving module missing: %q", p.Text)
	}
}

func TestAssemble_TraversalModuleNameRejected(t *testing.T) {
	a := newTestAssembler(t, nil)

	ac := testAgent()
	ac.Modules = []string{"../secrets"}

	p, err := a.Assemble(ac, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(p.Fragments) != 1 {
		t.Errorf("traversal name was not skipped: %+v", p.Fragments)
	}
}

func TestAssemble_EmptyBaseFatal(t *testing.T) {
	a := newTestAssembler(t, nil)

	ac := testAgent()
	ac.BaseInstructions = ""

	if _, err := a.Assemble(ac, ""); err == nil {
		t.Error("empty base instructions should be fatal")
	}
}

func TestAssemble_FragmentLengths(t *testing.T) {
	a := newTestAssembler(t, nil)

	ac := testAgent()
	p, err := a.Assemble(ac, "docs text\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// Trailing newlines are trimmed before measuring.
	if p.Fragments[1].Length != len("docs text") {
		t.Errorf("docs length = %d", p.Fragments[1].Length)
	}
}

func TestDescribe(t *testing.T) {
	a := newTestAssembler(t, nil)
	p, err := a.Assemble(testAgent(), "docs")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := Describe(p.Fragments)
	if !strings.Contains(got, "base(") || !strings.Contains(got, "directory_docs(4)") {
		t.Errorf("Describe = %q", got)
	}
}
