package state

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	StartMarker = "<!-- AI_EDITOR_STATE -->"
	EndMarker   = "<!-- /AI_EDITOR_STATE -->"

	progressHeading     = "## 📊 Editorial Progress"
	establishedHeading  = "### ✅ Established"
	questionsHeading    = "### ⏳ Questions Awaiting Your Response"
	prerequisiteHeading = "### 🚧 Prerequisites for PR"

	phasePrefix  = "**Phase:**"
	footerPrefix = "*Updated by AI Editor · "
	separator    = "\n\n---\n\n"
)

var (
	factLine     = regexp.MustCompile(`^-\s+\*\*(.+?):\*\*\s?(.*)$`)
	checkboxLine = regexp.MustCompile(`^-\s+\[([ xX])\]\s(.*)$`)
	blocksSuffix = regexp.MustCompile(`^(.*?)\s+\*\(blocks: ([^)]+)\)\*$`)
)

// Split locates the state block in body. The block runs from the start marker
// through the end marker, or to the end of body when the end marker is
// missing. prefix+block+suffix always equals body.
func Split(body string) (prefix, block, suffix string, found bool) {
	start := strings.Index(body, StartMarker)
	if start < 0 {
		return body, "", "", false
	}
	end := strings.Index(body[start:], EndMarker)
	if end < 0 {
		return body[:start], body[start:], "", true
	}
	end += start + len(EndMarker)
	return body[:start], body[start:end], body[end:], true
}

// Join is the inverse of Split.
func Join(prefix, block, suffix string) string {
	return prefix + block + suffix
}

// Content returns body with the state block, and the rule that introduced
// it, removed. It is the author's own text as the editor should read it.
func Content(body string) string {
	prefix, _, suffix, found := Split(body)
	if !found {
		return strings.TrimSpace(body)
	}
	prefix = strings.TrimSuffix(strings.TrimRight(prefix, " \t\r\n"), "---")
	return strings.TrimSpace(strings.TrimSpace(prefix) + "\n\n" + strings.TrimSpace(suffix))
}

// Format renders s as a marker-delimited block without surrounding newlines.
// Sections without items are omitted.
func Format(s *ConversationState) string {
	phase := s.Phase
	if phase == "" {
		phase = PhaseDiscovery
	}

	lines := []string{
		StartMarker,
		progressHeading,
		"",
		phasePrefix + " " + titleCase(phase),
		"",
	}

	if len(s.Established) > 0 {
		lines = append(lines, establishedHeading)
		for _, f := range s.Established {
			lines = append(lines, "- **"+oneLine(f.Key)+":** "+oneLine(f.Value))
		}
		lines = append(lines, "")
	}

	if len(s.Questions) > 0 {
		lines = append(lines, questionsHeading)
		for _, q := range s.Questions {
			lines = append(lines, "- "+checkbox(q.Answered)+" "+oneLine(q.Question))
		}
		lines = append(lines, "")
	}

	if len(s.Prerequisites) > 0 {
		lines = append(lines, prerequisiteHeading)
		for _, p := range s.Prerequisites {
			line := "- " + checkbox(p.Met) + " " + oneLine(p.Requirement)
			if p.Blocks != "" && p.Blocks != DefaultBlocks {
				line += " *(blocks: " + oneLine(p.Blocks) + ")*"
			}
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}

	if !s.LastUpdated.IsZero() {
		lines = append(lines, footerPrefix+s.LastUpdated.UTC().Format(time.RFC3339)+"*")
	}
	lines = append(lines, EndMarker)
	return strings.Join(lines, "\n")
}

type section int

const (
	sectionNone section = iota
	sectionEstablished
	sectionQuestions
	sectionPrerequisites
)

// Parse reads the state block out of body. A body without a block yields an
// empty state for issueNumber. Lines that do not parse are skipped, and an
// unreadable phase falls back to discovery.
func Parse(body string, issueNumber int) *ConversationState {
	s := New(issueNumber)
	_, block, _, found := Split(body)
	if !found {
		return s
	}

	cur := sectionNone
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, phasePrefix):
			if p := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, phasePrefix))); p != "" {
				s.Phase = p
			}
			continue
		case strings.HasPrefix(trimmed, "### "):
			cur = headingSection(trimmed)
			continue
		case strings.HasPrefix(trimmed, "## "):
			cur = sectionNone
			continue
		case strings.HasPrefix(trimmed, footerPrefix):
			ts := strings.TrimSuffix(strings.TrimPrefix(trimmed, footerPrefix), "*")
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				s.LastUpdated = t
			}
			cur = sectionNone
			continue
		}

		switch cur {
		case sectionEstablished:
			if m := factLine.FindStringSubmatch(line); m != nil {
				s.Established = append(s.Established, EstablishedFact{Key: m[1], Value: m[2]})
			}
		case sectionQuestions:
			if m := checkboxLine.FindStringSubmatch(line); m != nil {
				s.Questions = append(s.Questions, OutstandingQuestion{
					Question: m[2],
					Answered: m[1] != " ",
				})
			}
		case sectionPrerequisites:
			if m := checkboxLine.FindStringSubmatch(line); m != nil {
				p := Prerequisite{Requirement: m[2], Met: m[1] != " ", Blocks: DefaultBlocks}
				if b := blocksSuffix.FindStringSubmatch(p.Requirement); b != nil {
					p.Requirement, p.Blocks = b[1], b[2]
				}
				s.Prerequisites = append(s.Prerequisites, p)
			}
		}
	}
	return s
}

func headingSection(heading string) section {
	switch {
	case strings.Contains(heading, "Established"):
		return sectionEstablished
	case strings.Contains(heading, "Questions"):
		return sectionQuestions
	case strings.Contains(heading, "Prerequisites"):
		return sectionPrerequisites
	default:
		return sectionNone
	}
}

// UpdateIssueBody writes s into body. An existing block is replaced in place
// and any further blocks are dropped; otherwise the block is appended after a
// horizontal rule. Text outside the block is left untouched.
func UpdateIssueBody(body string, s *ConversationState) string {
	block := Format(s)

	prefix, _, suffix, found := Split(body)
	if !found {
		trimmed := strings.TrimRight(body, " \t\r\n")
		if trimmed == "" {
			return block + "\n"
		}
		return trimmed + separator + block + "\n"
	}

	for {
		p, _, rest, ok := Split(suffix)
		if !ok {
			break
		}
		suffix = p + rest
	}
	return Join(prefix, block, suffix)
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// lineBreaks folds every line ending, including a lone carriage return, into
// a space.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// oneLine keeps values from breaking the bullet syntax or the block itself.
// An HTML comment opener would let a value that quotes either marker end the
// block early, so it is written as an entity.
func oneLine(s string) string {
	if strings.ContainsAny(s, "\r\n") {
		s = lineBreaks.Replace(s)
	}
	return strings.ReplaceAll(s, "<!--", "&lt;!--")
}

// titleCase upper-cases the first letter of every word, where any non-letter
// separates words ("self_edit" -> "Self_Edit").
func titleCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if upper {
				r = unicode.ToUpper(r)
			} else {
				r = unicode.ToLower(r)
			}
			upper = false
		} else {
			upper = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
