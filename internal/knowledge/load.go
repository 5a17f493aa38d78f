package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bookctl/bookctl/internal/fault"
)

// Side files read from the knowledge directory next to knowledge.jsonl.
const (
	RecordsFile     = "knowledge.jsonl"
	TerminologyFile = "terminology.yaml"
	ThemesFile      = "themes.yaml"
	PreferencesFile = "author-preferences.yaml"
)

// Base is everything the editor knows about the book beyond one issue.
type Base struct {
	Facts       []Record
	QAPairs     []Record
	Terminology map[string]any
	Themes      any
	Preferences map[string]any
}

// Empty reports whether b contributes nothing to a prompt.
func (b *Base) Empty() bool {
	return b == nil || (len(b.Facts) == 0 && len(b.QAPairs) == 0 &&
		len(b.Terminology) == 0 && isEmptyThemes(b.Themes) && len(b.Preferences) == 0)
}

// Load reads the knowledge directory. Missing files are empty. A side file
// that fails to parse is left out of the result and reported as a
// fault.KindParse error joined into the returned error; everything that did
// load is still returned.
func Load(dir string) (*Base, error) {
	b := &Base{}

	records, err := ReadRecords(filepath.Join(dir, RecordsFile))
	if err != nil {
		return b, err
	}
	for _, rec := range records {
		switch {
		case rec.IsFact():
			b.Facts = append(b.Facts, rec)
		case rec.IsQA():
			b.QAPairs = append(b.QAPairs, rec)
		}
	}

	var errs []error
	if err := readYAML(filepath.Join(dir, TerminologyFile), &b.Terminology); err != nil {
		errs = append(errs, err)
	}
	if err := readYAML(filepath.Join(dir, ThemesFile), &b.Themes); err != nil {
		errs = append(errs, err)
	}
	if err := readYAML(filepath.Join(dir, PreferencesFile), &b.Preferences); err != nil {
		errs = append(errs, err)
	}
	return b, errors.Join(errs...)
}

func readYAML(path string, into any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fault.Parse("load "+filepath.Base(path), err)
	}
	return nil
}

// FormatForPrompt renders b as system-prompt sections, or "" when there is
// nothing to say.
func FormatForPrompt(b *Base) string {
	if b.Empty() {
		return ""
	}
	var sections []string

	if len(b.QAPairs) > 0 || len(b.Facts) > 0 {
		var lines []string
		for _, qa := range b.QAPairs {
			lines = append(lines, "Q: "+qa.Question+"\nA: "+qa.Answer)
		}
		for _, f := range b.Facts {
			line := "- " + f.Key + ": " + f.Value
			if f.SourceIssue > 0 {
				line += fmt.Sprintf(" (issue #%d)", f.SourceIssue)
			}
			lines = append(lines, line)
		}
		sections = append(sections, "## Known Context (from author answers)\n\n"+strings.Join(lines, "\n"))
	}

	if len(b.Terminology) > 0 {
		keys := make([]string, 0, len(b.Terminology))
		for k := range b.Terminology {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			if v, ok := b.Terminology[k].(string); ok {
				lines = append(lines, fmt.Sprintf("- Use '%s' not '%s'", v, k))
			} else {
				lines = append(lines, fmt.Sprintf("- %s: %v", k, b.Terminology[k]))
			}
		}
		sections = append(sections, "## Terminology Preferences\n\n"+strings.Join(lines, "\n"))
	}

	if !isEmptyThemes(b.Themes) {
		var body string
		if list, ok := b.Themes.([]any); ok {
			lines := make([]string, 0, len(list))
			for _, t := range list {
				lines = append(lines, fmt.Sprintf("- %v", t))
			}
			body = strings.Join(lines, "\n")
		} else {
			body = fmt.Sprint(b.Themes)
		}
		sections = append(sections, "## Central Themes\n\n"+body)
	}

	if len(b.Preferences) > 0 {
		out, err := yaml.Marshal(b.Preferences)
		if err == nil {
			sections = append(sections, "## Author Preferences\n\n"+strings.TrimRight(string(out), "\n"))
		}
	}

	return strings.Join(sections, "\n\n")
}

func isEmptyThemes(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	}
	return false
}
