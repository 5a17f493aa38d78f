package editor

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bookctl/bookctl/internal/knowledge"
)

//go:embed prompts/*.md
var promptFS embed.FS

// Files read from the root of the book repository.
const (
	PersonaFile    = "EDITOR_PERSONA.md"
	GuidelinesFile = "EDITORIAL_GUIDELINES.md"
	GlossaryFile   = "GLOSSARY.md"
	StyleGuideFile = "style-guide.md"
	ChaptersDir    = "chapters"
)

const (
	maxFileBytes   = 32 * 1024
	noGuidelines   = "No guidelines defined."
	truncateNotice = "\n[Truncated: file exceeds 32KB limit]"
)

// EditorialContext is everything about the book that goes into the system prompt.
type EditorialContext struct {
	Persona    string
	Guidelines string
	Glossary   string
	StyleGuide string
	Chapters   []string // file names under chapters/, sorted
	Knowledge  *knowledge.Base
}

// LoadContext reads the editorial files of the book checked out at repoDir
// and the knowledge base in knowledgeDir. Missing files fall back to
// defaults. A knowledge side file that fails to parse is logged and skipped.
func LoadContext(repoDir, knowledgeDir string, logger *slog.Logger) (*EditorialContext, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ec := &EditorialContext{
		Persona:    readContextFile(filepath.Join(repoDir, PersonaFile)),
		Guidelines: readContextFile(filepath.Join(repoDir, GuidelinesFile)),
		Glossary:   readContextFile(filepath.Join(repoDir, GlossaryFile)),
		StyleGuide: readContextFile(filepath.Join(repoDir, StyleGuideFile)),
	}
	if ec.Persona == "" {
		ec.Persona = defaultPrompt("persona")
	}
	if ec.Guidelines == "" {
		ec.Guidelines = noGuidelines
	}

	chapters, err := listChapters(filepath.Join(repoDir, ChaptersDir))
	if err != nil {
		return nil, err
	}
	ec.Chapters = chapters

	kb, err := knowledge.Load(knowledgeDir)
	if err != nil {
		logger.Warn("knowledge base partially loaded", "dir", knowledgeDir, "error", err)
	}
	ec.Knowledge = kb
	return ec, nil
}

// SystemPrompt assembles the system prompt in a fixed order.
func (ec *EditorialContext) SystemPrompt() string {
	sections := []string{ec.Persona, "## Editorial Guidelines\n\n" + ec.Guidelines}
	if ec.Glossary != "" {
		sections = append(sections, "## Glossary\n\n"+ec.Glossary)
	}
	if ec.StyleGuide != "" {
		sections = append(sections, "## Style Guide\n\n"+ec.StyleGuide)
	}
	if len(ec.Chapters) > 0 {
		sections = append(sections, "## Chapters\n\n- "+strings.Join(ec.Chapters, "\n- "))
	}
	if kb := knowledge.FormatForPrompt(ec.Knowledge); kb != "" {
		sections = append(sections, kb)
	}
	return strings.Join(sections, "\n\n")
}

func listChapters(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// readContextFile returns the trimmed file content, or "" when the file is
// missing or empty. Content past maxFileBytes is cut with a notice.
func readContextFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if len(content) > maxFileBytes {
		content = strings.ToValidUTF8(content[:maxFileBytes], "") + truncateNotice
	}
	return content
}

func defaultPrompt(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name + ".md")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
