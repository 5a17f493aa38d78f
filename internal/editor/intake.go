package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bookctl/bookctl/internal/fault"
	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/state"
)

const (
	discoveryMaxTokens = 2000
	analyzeMaxTokens   = 4000
	discoveryExcerpt   = 4000

	// DiscoveryFooter marks the comment that opened discovery on an issue.
	DiscoveryFooter = "<sub>Phase: Discovery | Reply to continue the conversation</sub>"

	noTranscript = "No transcript found in issue body. Please add the voice memo transcript."
)

// DiscoveryResult reports what Discover did. Skipped is set, with a reason,
// when no questions were asked.
type DiscoveryResult struct {
	Skipped   bool
	Reason    string
	Questions []string
	Mood      string
	Comment   string
	State     *state.ConversationState
	Usage     provider.Usage
}

type discoveryReply struct {
	OpeningLine          string   `json:"opening_line"`
	EmotionalObservation string   `json:"emotional_observation"`
	Questions            []string `json:"questions"`
	ClosingLine          string   `json:"closing_line"`
}

// Discover opens the conversation on a new memo by asking the author a few
// questions before any critique. The questions go into the state block with
// the default pr_creation prerequisites. It does nothing when the author
// asked to skip ahead (the issue moves to feedback) or when discovery was
// already opened.
func (e *Editor) Discover(ctx context.Context, number int) (*DiscoveryResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}
	log := e.logger().With("issue", number)

	content := state.Content(issue.Body)
	mood := DetectMood(content)
	if ShouldSkipDiscovery(content, issue.Labels) {
		s.SetPhase(state.PhaseFeedback)
		if err := e.save(ctx, issue, s); err != nil {
			return nil, err
		}
		log.Info("discovery skipped at author request")
		return &DiscoveryResult{Skipped: true, Reason: "author asked for feedback directly", Mood: mood, State: s}, nil
	}
	if s.Phase != state.PhaseDiscovery {
		return &DiscoveryResult{Skipped: true, Reason: "issue is already in " + s.Phase, Mood: mood, State: s}, nil
	}

	comments, err := e.Issues.ListComments(ctx, number)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if strings.Contains(c.Body, "Phase: Discovery") {
			return &DiscoveryResult{Skipped: true, Reason: "discovery already started", Mood: mood, State: s}, nil
		}
	}

	res, err := e.discover(ctx, issue, s, content, mood)
	if err != nil {
		e.notifyFailure(ctx, number, "start the discovery conversation", err)
		return nil, fmt.Errorf("discover issue #%d: %w", number, err)
	}
	log.Info("discovery questions posted", "questions", len(res.Questions), "mood", mood)
	return res, nil
}

func (e *Editor) discover(ctx context.Context, issue *github.Issue, s *state.ConversationState, content, mood string) (*DiscoveryResult, error) {
	ec, err := e.editorialContext(e.logger().With("issue", issue.Number))
	if err != nil {
		return nil, err
	}
	name := personaName(ec.Persona)

	model := e.model()
	completion, err := provider.Prompt(ctx, e.Provider, model, ec.SystemPrompt(),
		buildDiscoveryPrompt(content, mood, name), discoveryMaxTokens)
	if err != nil {
		return nil, err
	}

	var questions []string
	var comment string
	if d, ok := parseDiscoveryReply(completion.Text); ok {
		questions = d.Questions
		comment = formatDiscoveryComment(d, name)
	} else {
		questions = state.ExtractQuestions(completion.Text)
		if len(questions) == 0 {
			return nil, fault.Parse("discovery questions", errors.New("model reply holds no questions"))
		}
		comment = FormatDiscoveryQuestions(questions, name, "")
	}
	comment += "\n\n" + DiscoveryFooter

	for _, q := range questions {
		s.AddQuestion(q, "discovery")
	}
	for _, p := range state.DefaultPrerequisites() {
		s.AddPrerequisite(p.Requirement, p.Blocks)
	}
	s.SetPhase(state.PhaseDiscovery)
	if err := e.save(ctx, issue, s); err != nil {
		return nil, err
	}
	if err := e.Issues.CreateComment(ctx, issue.Number, comment); err != nil {
		return nil, err
	}

	return &DiscoveryResult{
		Questions: questions,
		Mood:      mood,
		Comment:   comment,
		State:     s,
		Usage:     completion.Usage,
	}, nil
}

func buildDiscoveryPrompt(content, mood, name string) string {
	var b strings.Builder
	b.WriteString(phaseIntro(state.PhaseDiscovery) + "\n\n")
	if guidance := moodGuidance(mood); guidance != "" {
		b.WriteString("**Author's emotional state:** " + mood + ". " + guidance + "\n\n")
	}
	b.WriteString("## The Content to Review\n\n" + truncateRunes(content, discoveryExcerpt) + "\n\n")
	fmt.Fprintf(&b, `## Generate Your Discovery Questions

Based on this content, generate 2-4 discovery questions that:
1. Are specific to THIS piece (not generic)
2. Help you understand the author's intent
3. Are asked in your own voice (%s)
4. Will make the author feel heard, not interrogated

Reply with only a JSON object of this shape:
{"opening_line": "...", "emotional_observation": "...", "questions": ["...", "..."], "closing_line": "..."}
emotional_observation may be empty.`, name)
	return b.String()
}

// parseDiscoveryReply reads the JSON object the discovery prompt asks for,
// tolerating a code fence or prose around it.
func parseDiscoveryReply(text string) (discoveryReply, bool) {
	var d discoveryReply
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return d, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return d, false
	}
	var qs []string
	for _, q := range d.Questions {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}
	d.Questions = qs
	return d, len(qs) > 0
}

func formatDiscoveryComment(d discoveryReply, name string) string {
	var lines []string
	if d.OpeningLine != "" {
		lines = append(lines, d.OpeningLine, "")
	}
	if d.EmotionalObservation != "" {
		lines = append(lines, "*"+d.EmotionalObservation+"*", "")
	}
	lines = append(lines, "---", "")
	for i, q := range d.Questions {
		lines = append(lines, fmt.Sprintf("**%d.** %s", i+1, q), "")
	}
	lines = append(lines, "---", "")
	if d.ClosingLine != "" {
		lines = append(lines, d.ClosingLine, "")
	}
	lines = append(lines, "*— "+name+"*")
	return strings.Join(lines, "\n")
}

// personaName takes the editor's name from the first heading of the persona.
func personaName(persona string) string {
	for _, line := range strings.Split(persona, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "# "); ok {
			name = strings.TrimSpace(name)
			if name != "" && !strings.EqualFold(name, "Editor Persona") {
				return name
			}
			break
		}
	}
	return "AI Editor"
}

// AnalysisResult is the editorial analysis of a transcript.
type AnalysisResult struct {
	Comment      string
	NewQuestions []string
	State        *state.ConversationState
	Usage        provider.Usage
}

// Analyze reviews the voice memo transcript in the issue body: a cleaned
// transcript, what it is about, where it might go and what needs the author.
// What discovery established shapes the review. The issue moves to the
// feedback phase.
func (e *Editor) Analyze(ctx context.Context, number int) (*AnalysisResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}

	content := state.Content(issue.Body)
	if content == "" {
		if err := e.Issues.CreateComment(ctx, number, noTranscript); err != nil {
			return nil, err
		}
		return nil, fault.Invalid("analyze", fmt.Errorf("issue #%d has no transcript", number))
	}

	res, err := e.analyze(ctx, issue, s, content)
	if err != nil {
		e.notifyFailure(ctx, number, "analyze this transcript", err)
		return nil, fmt.Errorf("analyze issue #%d: %w", number, err)
	}
	return res, nil
}

func (e *Editor) analyze(ctx context.Context, issue *github.Issue, s *state.ConversationState, content string) (*AnalysisResult, error) {
	log := e.logger().With("issue", issue.Number)
	ec, err := e.editorialContext(log)
	if err != nil {
		return nil, err
	}

	model := e.model()
	prompt := buildAnalysisPrompt(s, DetectMood(content)) + "\n\n## Transcript\n\n" + content
	completion, err := provider.Prompt(ctx, e.Provider, model, ec.SystemPrompt(), prompt, analyzeMaxTokens)
	if err != nil {
		return nil, err
	}

	var asked []string
	for _, q := range state.ExtractQuestions(completion.Text) {
		if s.AddQuestion(q, "transcript analysis") {
			asked = append(asked, q)
		}
	}
	for _, p := range state.DefaultPrerequisites() {
		s.AddPrerequisite(p.Requirement, p.Blocks)
	}
	s.SetPhase(state.PhaseFeedback)
	if err := e.save(ctx, issue, s); err != nil {
		return nil, err
	}

	comment := formatAnalysisComment(completion.Text, personaName(ec.Persona), usageFooter(model, completion.Usage), len(s.Established) > 0)
	if err := e.Issues.CreateComment(ctx, issue.Number, comment); err != nil {
		return nil, err
	}
	log.Info("analyzed transcript", "model", model, "new_questions", len(asked))

	return &AnalysisResult{Comment: comment, NewQuestions: asked, State: s, Usage: completion.Usage}, nil
}

const analysisTask = `Analyze this voice memo transcript and provide:

1. **Cleaned Transcript**: Fix grammar, punctuation, remove filler words (um, uh, like, you know), but preserve the author's voice and meaning exactly. Do not add new content or change the meaning.

2. **Content Analysis**: What is this about? What themes, topics, or ideas are present? How does it relate to the book's central themes?

3. **Suggested Placement**: Based on the existing chapters, where might this content fit?
   - Should it be added to an existing chapter? Which one and where?
   - Should it become a new chapter or section?
   - Is it notes/ideas for later development?

4. **Editorial Notes**:
   - What's working well in this content?
   - What needs clarification or expansion?
   - Questions for the author about intent or meaning, each in bold

5. **Ready for PR?**: Can this be integrated now, or does it need author input first?

Format your response with clear ### headers for each section.`

func buildAnalysisPrompt(s *state.ConversationState, mood string) string {
	answered := s.AnsweredQuestions()
	facts := s.FactStrings()
	if len(answered) == 0 && len(facts) == 0 && mood == "" {
		return phaseIntro(state.PhaseFeedback) + "\n\n" + analysisTask
	}

	lines := []string{phaseIntro(state.PhaseFeedback), "", "## What You Learned in Discovery", ""}
	if len(answered) > 0 {
		lines = append(lines, "The author has answered:")
		for _, q := range answered {
			lines = append(lines, "- "+q.Question)
		}
		lines = append(lines, "")
	}
	if len(facts) > 0 {
		lines = append(lines, "**Key insights from discovery:**")
		for _, f := range facts {
			lines = append(lines, "- "+f)
		}
		lines = append(lines, "")
	}
	if guidance := moodGuidance(mood); guidance != "" {
		lines = append(lines, "**Author's emotional state:** "+mood, "", "*"+guidance+"*", "")
	}
	lines = append(lines,
		"---", "",
		"**Now, using what you learned, analyze this transcript:**", "",
		analysisTask, "",
		"**Remember:** Tailor your feedback to what the author told you during discovery.",
	)
	return strings.Join(lines, "\n")
}

func formatAnalysisComment(analysis, name, usage string, tailored bool) string {
	var b strings.Builder
	b.WriteString("## AI Editorial Analysis\n")
	if tailored {
		b.WriteString("\n*This feedback is tailored based on our discovery conversation.*\n")
	}
	b.WriteString("\n" + analysis + "\n\n---\n\n")
	b.WriteString(`### Next Steps

**To integrate this content:**
1. Reply with any feedback or answers to my questions above
2. Specify placement: ` + "`/ai-editor place in chapter-name.md`" + `
3. When ready: ` + "`/ai-editor create PR`" + `

**Or if this isn't ready:**
- Close this issue if you want to discard it
- Add ` + "`awaiting-author`" + ` label if you need to think about it
- Just reply with questions or direction

---
`)
	b.WriteString("*— " + name + "*\n\n")
	b.WriteString("<sub>" + usage + " | Phase: Feedback</sub>")
	return b.String()
}
