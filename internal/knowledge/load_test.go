package knowledge

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bookctl/bookctl/internal/fault"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_EmptyDirectory(t *testing.T) {
	b, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !b.Empty() {
		t.Fatalf("base = %+v, want empty", b)
	}
	if out := FormatForPrompt(b); out != "" {
		t.Fatalf("FormatForPrompt = %q, want empty", out)
	}
}

func TestLoad_AllSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, RecordsFile,
		`{"question":"Who is the reader?","answer":"First-time managers"}`+"\n"+
			`{"type":"established_fact","key":"Tone","value":"warm","source_issue":12}`+"\n"+
			`{"note":"ignored"}`+"\n")
	writeFile(t, dir, TerminologyFile, "utilize: use\nteam member: teammate\nnumbers:\n  style: spelled out\n")
	writeFile(t, dir, ThemesFile, "- trust\n- patience\n")
	writeFile(t, dir, PreferencesFile, "oxford_comma: true\n")

	b, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.QAPairs) != 1 || len(b.Facts) != 1 {
		t.Fatalf("QAPairs = %d, Facts = %d; want 1 each", len(b.QAPairs), len(b.Facts))
	}

	out := FormatForPrompt(b)
	for _, want := range []string{
		"## Known Context (from author answers)\n\nQ: Who is the reader?\nA: First-time managers\n- Tone: warm (issue #12)",
		"## Terminology Preferences\n\n- numbers: map[style:spelled out]\n- Use 'teammate' not 'team member'\n- Use 'use' not 'utilize'",
		"## Central Themes\n\n- trust\n- patience",
		"## Author Preferences\n\noxford_comma: true",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q\n%s", want, out)
		}
	}
}

func TestLoad_BadYAMLIsParseFault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ThemesFile, "- trust\n- patience\n")
	writeFile(t, dir, TerminologyFile, "key: [unterminated\n")

	b, err := Load(dir)
	if err == nil {
		t.Fatal("Load returned no error for bad YAML")
	}
	if !fault.IsParse(err) {
		t.Fatalf("error = %v, want parse fault", err)
	}
	if !strings.Contains(err.Error(), TerminologyFile) {
		t.Fatalf("error %q does not name %s", err, TerminologyFile)
	}

	// Everything else still loads.
	if !reflect.DeepEqual(b.Themes, []any{"trust", "patience"}) {
		t.Fatalf("Themes = %#v", b.Themes)
	}
	if len(b.Terminology) != 0 {
		t.Fatalf("Terminology = %v, want empty", b.Terminology)
	}
}

func TestFormatForPrompt_ScalarThemes(t *testing.T) {
	b := &Base{Themes: "Quiet courage"}
	if got, want := FormatForPrompt(b), "## Central Themes\n\nQuiet courage"; got != want {
		t.Fatalf("FormatForPrompt = %q, want %q", got, want)
	}
}
