package editor

import (
	"fmt"
	"strings"

	"github.com/bookctl/bookctl/internal/state"
)

// Emotional states the editor adapts its tone to.
const (
	MoodVulnerable = "vulnerable"
	MoodConfident  = "confident"
	MoodFrustrated = "frustrated"
	MoodBlocked    = "blocked"
	MoodDefensive  = "defensive"
	MoodExcited    = "excited"
	MoodUncertain  = "uncertain"
)

type moodIndicators struct {
	mood    string
	phrases []string
}

// Ordered so that ties resolve the same way on every run.
var moods = []moodIndicators{
	{MoodVulnerable, []string{"this is rough", "first draft", "not sure if", "probably bad", "be gentle", "nervous", "scared to share"}},
	{MoodConfident, []string{"ready for feedback", "tear it apart", "don't hold back", "give me the hard truth", "almost done", "final draft"}},
	{MoodFrustrated, []string{"stuck", "frustrated", "can't figure out", "nothing works", "hate this", "ugh", "argh"}},
	{MoodBlocked, []string{"blocked", "blank page", "can't start", "don't know where to begin", "paralyzed", "frozen"}},
	{MoodDefensive, []string{"but i like it", "you don't understand", "that's intentional", "i disagree", "you're wrong"}},
	{MoodExcited, []string{"i love this", "breakthrough", "finally", "it clicked", "so excited", "can't wait"}},
	{MoodUncertain, []string{"not sure", "what do you think", "is this right", "confused", "lost", "help"}},
}

// DetectMood returns the emotional state with the most indicator phrases in
// text, or "" when none appear.
func DetectMood(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := "", 0
	for _, m := range moods {
		score := 0
		for _, p := range m.phrases {
			if strings.Contains(lower, p) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = m.mood, score
		}
	}
	return best
}

var (
	skipPhrases = []string{"skip discovery", "just review", "skip the questions", "don't ask", "give me feedback", "tear it apart"}
	skipLabels  = []string{"quick-review", state.PhaseLabel(state.PhaseFeedback), state.PhaseLabel(state.PhaseRevision), state.PhaseLabel(state.PhasePolish)}
)

// ShouldSkipDiscovery reports whether the author asked to go straight to
// feedback, in words or by label.
func ShouldSkipDiscovery(text string, labels []string) bool {
	lower := strings.ToLower(text)
	for _, p := range skipPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	for _, l := range labels {
		for _, s := range skipLabels {
			if strings.EqualFold(l, s) {
				return true
			}
		}
	}
	return false
}

// KnowledgeItem is a sentence from an author comment that states something
// worth remembering about the book or its author.
type KnowledgeItem struct {
	Type      string // preference, goal, audience, voice or correction
	Pattern   string
	Content   string
	Indicator string
}

type knowledgePattern struct {
	name       string
	kind       string
	indicators []string
}

var knowledgePatterns = []knowledgePattern{
	{"author_preference", "preference", []string{"i prefer", "i always", "i never", "i like to", "my style is"}},
	{"writing_goal", "goal", []string{"i want readers to", "the goal is", "i'm trying to", "this book should"}},
	{"audience", "audience", []string{"my readers are", "written for", "target audience", "people who"}},
	{"voice_choice", "voice", []string{"my voice", "i write like", "influenced by", "inspired by"}},
	{"correction", "correction", []string{"actually", "no, i meant", "that's not what i", "let me clarify"}},
}

// ExtractKnowledgeItems returns, for each indicator phrase found in text, the
// first sentence containing it.
func ExtractKnowledgeItems(text string) []KnowledgeItem {
	lower := strings.ToLower(text)
	sentences := strings.Split(text, ".")
	var items []KnowledgeItem
	for _, p := range knowledgePatterns {
		for _, ind := range p.indicators {
			if !strings.Contains(lower, ind) {
				continue
			}
			for _, sentence := range sentences {
				if strings.Contains(strings.ToLower(sentence), ind) {
					items = append(items, KnowledgeItem{
						Type:      p.kind,
						Pattern:   p.name,
						Content:   strings.TrimSpace(sentence),
						Indicator: ind,
					})
					break
				}
			}
		}
	}
	return items
}

// FactKey is the state key an item is established under. Later items of the
// same type replace earlier ones.
func (k KnowledgeItem) FactKey() string {
	return strings.ToUpper(k.Type[:1]) + k.Type[1:]
}

// phaseIntro tells the model how to behave in phase.
func phaseIntro(phase string) string {
	switch phase {
	case state.PhaseDiscovery:
		return "You are in DISCOVERY mode. Your job is to ASK, not TELL. Understand what the author is trying to do " +
			"before offering any critique: their intent, their reader and what they are worried about. " +
			"Do not give line edits yet."
	case state.PhaseFeedback:
		return "You are in FEEDBACK mode. Give honest, specific feedback grounded in what the author told you. " +
			"Sort it into priority tiers: CRITICAL (must fix), RECOMMENDED (should fix) and OPTIONAL (consider)."
	case state.PhaseRevision:
		return "The author is now REVISING. Compare against earlier feedback, acknowledge what improved and " +
			"focus only on what still needs work."
	case state.PhasePolish:
		return "The piece is in POLISH. Limit feedback to line-level clarity, rhythm and consistency."
	case state.PhaseHold:
		return "This piece is on HOLD. Keep replies short and do not push for progress unless asked."
	default:
		return ""
	}
}

// moodGuidance adjusts tone for a detected emotional state.
func moodGuidance(mood string) string {
	switch mood {
	case MoodVulnerable:
		return "The author seems vulnerable about this draft. Lead with what works and be gentle."
	case MoodConfident:
		return "The author asked for direct feedback. Be candid and skip the cushioning."
	case MoodFrustrated:
		return "The author sounds frustrated. Acknowledge it briefly and offer one concrete next step."
	case MoodBlocked:
		return "The author is blocked. Help them get moving with a small, specific prompt."
	case MoodDefensive:
		return "The author is pushing back. Respect their intent and explain your reasoning rather than insisting."
	case MoodExcited:
		return "The author is excited. Share the energy and build on what clicked."
	case MoodUncertain:
		return "The author is unsure. Give clear guidance and explain the why."
	default:
		return ""
	}
}

// FormatDiscoveryQuestions renders discovery questions as an issue comment.
func FormatDiscoveryQuestions(questions []string, personaName, philosophy string) string {
	lines := []string{"## Before I dive in...", ""}
	if philosophy != "" {
		lines = append(lines, "*"+philosophy+"*", "")
	}
	for i, q := range questions {
		lines = append(lines, fmt.Sprintf("**%d.** %s", i+1, q), "")
	}
	lines = append(lines,
		"---",
		"",
		"Take your time with these. Reply when you're ready, and I'll give you feedback that actually fits what you need.",
	)
	if personaName != "" {
		lines = append(lines, "", "*— "+personaName+"*")
	}
	return strings.Join(lines, "\n")
}
