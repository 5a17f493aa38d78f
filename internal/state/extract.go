package state

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const minQuestionLength = 20

var confirmationPrefixes = []string{"does that", "sound good", "make sense"}

var markdown = goldmark.New()

// ExtractQuestions returns the bold questions (**...?**) of an editor
// response that are worth tracking: at least 20 characters and not a simple
// confirmation. Duplicates are dropped, first occurrence wins.
func ExtractQuestions(response string) []string {
	src := []byte(response)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var out []string
	seen := make(map[string]bool)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		em, ok := n.(*ast.Emphasis)
		if !ok || em.Level != 2 {
			return ast.WalkContinue, nil
		}

		q := strings.TrimSpace(inlineText(em, src))
		if trackable(q) && !seen[strings.ToLower(q)] {
			seen[strings.ToLower(q)] = true
			out = append(out, q)
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func trackable(q string) bool {
	if !strings.HasSuffix(q, "?") || utf8.RuneCountInString(q) < minQuestionLength {
		return false
	}
	lower := strings.ToLower(q)
	for _, p := range confirmationPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// inlineText concatenates the literal text below n.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(inlineText(c, src))
		}
	}
	return b.String()
}
