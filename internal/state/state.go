// Package state is the editor's working memory for one issue: facts the
// author has settled, questions still waiting for an answer and gates that
// block actions such as opening a PR. It lives as a markdown block inside the
// issue body and is re-parsed on every run.
package state

import (
	"strings"
	"time"
)

// DefaultBlocks is the action a prerequisite blocks unless told otherwise.
const DefaultBlocks = "pr_creation"

// Editorial phases, tracked in the state block and as phase:* labels.
const (
	PhaseDiscovery = "discovery"
	PhaseFeedback  = "feedback"
	PhaseRevision  = "revision"
	PhasePolish    = "polish"
	PhaseComplete  = "complete"
	PhaseHold      = "hold"
)

// Phases lists the known phases in workflow order.
var Phases = []string{PhaseDiscovery, PhaseFeedback, PhaseRevision, PhasePolish, PhaseComplete, PhaseHold}

// PhaseLabel returns the GitHub label used for phase.
func PhaseLabel(phase string) string { return "phase:" + phase }

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC().Truncate(time.Second) }

type EstablishedFact struct {
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	EstablishedAt time.Time `json:"established_at,omitzero"`
}

type OutstandingQuestion struct {
	Question string    `json:"question"`
	AskedAt  time.Time `json:"asked_at,omitzero"`
	Answered bool      `json:"answered"`
	Context  string    `json:"context,omitempty"`
}

type Prerequisite struct {
	Requirement string `json:"requirement"`
	Met         bool   `json:"met"`
	Blocks      string `json:"blocks"`
}

// ConversationState is owned by exactly one issue.
type ConversationState struct {
	IssueNumber   int                   `json:"issue_number"`
	Phase         string                `json:"phase"`
	Established   []EstablishedFact     `json:"established"`
	Questions     []OutstandingQuestion `json:"outstanding_questions"`
	Prerequisites []Prerequisite        `json:"prerequisites"`
	LastUpdated   time.Time             `json:"last_updated,omitzero"`
}

// New returns an empty state in the discovery phase.
func New(issueNumber int) *ConversationState {
	return &ConversationState{IssueNumber: issueNumber, Phase: PhaseDiscovery}
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *ConversationState) touch() { s.LastUpdated = now() }

// SetPhase normalizes phase to a lowercase key.
func (s *ConversationState) SetPhase(phase string) {
	phase = strings.ToLower(strings.TrimSpace(phase))
	if phase == "" {
		phase = PhaseDiscovery
	}
	if s.Phase != phase {
		s.Phase = phase
		s.touch()
	}
}

// AddQuestion appends an unanswered question unless an equal one (ignoring
// case and surrounding space) is already tracked. It reports whether it added.
func (s *ConversationState) AddQuestion(question, context string) bool {
	for _, q := range s.Questions {
		if sameText(q.Question, question) {
			return false
		}
	}
	s.Questions = append(s.Questions, OutstandingQuestion{
		Question: question,
		AskedAt:  now(),
		Context:  context,
	})
	s.touch()
	return true
}

// MarkQuestionAnswered marks the first question containing substr.
func (s *ConversationState) MarkQuestionAnswered(substr string) bool {
	for i := range s.Questions {
		if containsFold(s.Questions[i].Question, substr) {
			s.Questions[i].Answered = true
			s.touch()
			return true
		}
	}
	return false
}

// EstablishFact upserts by case-insensitive key. Keys are trimmed; a blank key
// would not survive the markdown form, so it is rejected and false returned.
func (s *ConversationState) EstablishFact(key, value string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	t := now()
	for i := range s.Established {
		if strings.EqualFold(s.Established[i].Key, key) {
			s.Established[i].Value = value
			s.Established[i].EstablishedAt = t
			s.touch()
			return true
		}
	}
	s.Established = append(s.Established, EstablishedFact{Key: key, Value: value, EstablishedAt: t})
	s.touch()
	return true
}

// Fact returns the value established for key.
func (s *ConversationState) Fact(key string) (string, bool) {
	for _, f := range s.Established {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return "", false
}

// AddPrerequisite adds a gate on blocks ("" means DefaultBlocks). Duplicate
// requirements are ignored. It reports whether it added.
func (s *ConversationState) AddPrerequisite(requirement, blocks string) bool {
	if blocks == "" {
		blocks = DefaultBlocks
	}
	for _, p := range s.Prerequisites {
		if sameText(p.Requirement, requirement) {
			return false
		}
	}
	s.Prerequisites = append(s.Prerequisites, Prerequisite{Requirement: requirement, Blocks: blocks})
	s.touch()
	return true
}

// MarkPrerequisiteMet marks the first prerequisite containing substr.
func (s *ConversationState) MarkPrerequisiteMet(substr string) bool {
	for i := range s.Prerequisites {
		if containsFold(s.Prerequisites[i].Requirement, substr) {
			s.Prerequisites[i].Met = true
			s.touch()
			return true
		}
	}
	return false
}

func (s *ConversationState) HasUnansweredQuestions() bool {
	return len(s.UnansweredQuestions()) > 0
}

func (s *ConversationState) UnansweredQuestions() []OutstandingQuestion {
	var out []OutstandingQuestion
	for _, q := range s.Questions {
		if !q.Answered {
			out = append(out, q)
		}
	}
	return out
}

// AnsweredQuestions is the complement of UnansweredQuestions.
func (s *ConversationState) AnsweredQuestions() []OutstandingQuestion {
	var out []OutstandingQuestion
	for _, q := range s.Questions {
		if q.Answered {
			out = append(out, q)
		}
	}
	return out
}

func (s *ConversationState) HasUnmetPrerequisites(action string) bool {
	return len(s.UnmetPrerequisites(action)) > 0
}

func (s *ConversationState) UnmetPrerequisites(action string) []Prerequisite {
	var out []Prerequisite
	for _, p := range s.Prerequisites {
		if !p.Met && p.Blocks == action {
			out = append(out, p)
		}
	}
	return out
}

// MetPrerequisites returns every satisfied gate regardless of action.
func (s *ConversationState) MetPrerequisites() []Prerequisite {
	var out []Prerequisite
	for _, p := range s.Prerequisites {
		if p.Met {
			out = append(out, p)
		}
	}
	return out
}

// FactStrings renders facts as "key: value", the form handed to the summarizer.
func (s *ConversationState) FactStrings() []string {
	out := make([]string, len(s.Established))
	for i, f := range s.Established {
		out[i] = f.Key + ": " + f.Value
	}
	return out
}

// Compact returns a copy that keeps every fact but only unanswered questions
// and unmet prerequisites.
func Compact(s *ConversationState) *ConversationState {
	out := &ConversationState{
		IssueNumber: s.IssueNumber,
		Phase:       s.Phase,
		Established: append([]EstablishedFact(nil), s.Established...),
		Questions:   s.UnansweredQuestions(),
		LastUpdated: s.LastUpdated,
	}
	for _, p := range s.Prerequisites {
		if !p.Met {
			out.Prerequisites = append(out.Prerequisites, p)
		}
	}
	return out
}
