package state

import (
	"fmt"
	"strings"
)

// DefaultKnowledgePath is where established facts are persisted across issues.
const DefaultKnowledgePath = ".ai-context/knowledge.jsonl"

// DefaultPrerequisites gates PR creation until there is real content.
func DefaultPrerequisites() []Prerequisite {
	return []Prerequisite{
		{Requirement: "Content outline or structure defined", Blocks: DefaultBlocks},
		{Requirement: "Actual chapter content written (not just ideas)", Blocks: DefaultBlocks},
	}
}

// FormatQuestionsReminder lists up to three unanswered questions for the end
// of a response. It returns "" when nothing is outstanding.
func FormatQuestionsReminder(s *ConversationState) string {
	unanswered := s.UnansweredQuestions()
	if len(unanswered) == 0 {
		return ""
	}

	lines := []string{"", "---", "", "📋 **Still waiting for your thoughts on:**"}
	for _, q := range unanswered[:min(len(unanswered), 3)] {
		lines = append(lines, "- "+q.Question)
	}
	if len(unanswered) > 3 {
		lines = append(lines, fmt.Sprintf("- *(and %d more)*", len(unanswered)-3))
	}
	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// FormatPrerequisiteBlocker explains why action cannot happen yet, or returns
// "" when nothing blocks it.
func FormatPrerequisiteBlocker(s *ConversationState, action string) string {
	unmet := s.UnmetPrerequisites(action)
	unanswered := s.UnansweredQuestions()
	if len(unmet) == 0 && len(unanswered) == 0 {
		return ""
	}

	lines := []string{"Before I can create a PR, we need to address a few things:", ""}
	if len(unanswered) > 0 {
		lines = append(lines, "**📋 Questions awaiting your response:**")
		for _, q := range unanswered[:min(len(unanswered), 3)] {
			lines = append(lines, "- "+q.Question)
		}
		lines = append(lines, "")
	}
	if len(unmet) > 0 {
		lines = append(lines, "**🚧 Prerequisites not yet met:**")
		for _, p := range unmet {
			lines = append(lines, "- "+p.Requirement)
		}
		lines = append(lines, "")
	}
	lines = append(lines, "Let's tackle these first. Which would you like to address?")
	return strings.Join(lines, "\n")
}

// ContextReferences points at where detail dropped by compaction still lives.
// An empty knowledgePath means DefaultKnowledgePath.
func ContextReferences(issueNumber int, knowledgePath string) []string {
	if knowledgePath == "" {
		knowledgePath = DefaultKnowledgePath
	}
	return []string{
		fmt.Sprintf("Issue #%d comments - full conversation history", issueNumber),
		"git log --oneline -- chapters/ - chapter change history",
		knowledgePath + " - established facts from all issues",
	}
}

// ClosingOptions configures FormatClosingSummary.
type ClosingOptions struct {
	Reason        string // completed, not_planned, duplicate or free text; "" means completed
	RelatedPR     int
	KnowledgePath string // "" means DefaultKnowledgePath
}

// FormatClosingSummary renders the comment left on an issue when it closes.
func FormatClosingSummary(s *ConversationState, opts ClosingOptions) string {
	kbPath := opts.KnowledgePath
	if kbPath == "" {
		kbPath = DefaultKnowledgePath
	}

	lines := []string{"## 📋 Issue Summary\n"}

	switch opts.Reason {
	case "", "completed":
		lines = append(lines, "**Status:** ✅ Completed\n")
	case "not_planned":
		lines = append(lines, "**Status:** ⏭️ Not planned\n")
	case "duplicate":
		lines = append(lines, "**Status:** 🔄 Duplicate\n")
	default:
		lines = append(lines, "**Status:** "+opts.Reason+"\n")
	}

	if opts.RelatedPR > 0 {
		lines = append(lines, fmt.Sprintf("**Related PR:** #%d\n", opts.RelatedPR))
	}

	if len(s.Established) > 0 {
		lines = append(lines, "### Decisions Made\n")
		for _, f := range s.Established {
			lines = append(lines, "- **"+f.Key+":** "+f.Value)
		}
		lines = append(lines, "")
	}

	if answered := s.AnsweredQuestions(); len(answered) > 0 {
		lines = append(lines, "### Questions Resolved\n")
		for _, q := range answered[:min(len(answered), 5)] {
			lines = append(lines, "- ✅ "+q.Question)
		}
		if len(answered) > 5 {
			lines = append(lines, fmt.Sprintf("- *(+%d more)*", len(answered)-5))
		}
		lines = append(lines, "")
	}

	if unanswered := s.UnansweredQuestions(); len(unanswered) > 0 {
		lines = append(lines, "### Deferred Questions\n")
		for _, q := range unanswered[:min(len(unanswered), 3)] {
			lines = append(lines, "- ⏳ "+q.Question)
		}
		lines = append(lines, "")
	}

	lines = append(lines, "### For Future Reference\n")
	lines = append(lines, "- Facts persisted to `"+kbPath+"`")
	if opts.RelatedPR > 0 {
		lines = append(lines, fmt.Sprintf("- Content integrated via PR #%d", opts.RelatedPR))
	}
	for _, ref := range ContextReferences(s.IssueNumber, kbPath) {
		lines = append(lines, "- "+ref)
	}
	lines = append(lines, "")

	lines = append(lines, "---\n*Summary generated by AI Editor*")
	return strings.Join(lines, "\n")
}
