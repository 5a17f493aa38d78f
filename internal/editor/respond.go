package editor

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/session"
	"github.com/bookctl/bookctl/internal/state"
)

// RespondResult describes one editor reply.
type RespondResult struct {
	Reply        string // the comment posted on the issue
	NewQuestions []string
	Learned      []KnowledgeItem // facts picked up from the author's comment
	Mood         string
	State        *state.ConversationState
	Context      *session.PreparedContext
	Usage        provider.Usage
}

// Respond answers the latest message on an issue. comment is that message;
// when empty the body of the last comment is used. If anything fails after
// the issue was read, a short notice is posted on the issue before the error
// is returned.
func (e *Editor) Respond(ctx context.Context, number int, comment string) (*RespondResult, error) {
	issue, s, err := e.load(ctx, number)
	if err != nil {
		return nil, err
	}

	res, err := e.respond(ctx, issue, s, comment)
	if err != nil {
		e.notifyFailure(ctx, number, "respond to this comment", err)
		return nil, fmt.Errorf("respond to issue #%d: %w", number, err)
	}
	return res, nil
}

func (e *Editor) respond(ctx context.Context, issue *github.Issue, s *state.ConversationState, comment string) (*RespondResult, error) {
	log := e.logger().With("issue", issue.Number)

	ghComments, err := e.Issues.ListComments(ctx, issue.Number)
	if err != nil {
		return nil, err
	}
	comments := make([]session.Comment, 0, len(ghComments))
	for _, c := range ghComments {
		comments = append(comments, session.Comment{Author: c.Author, Body: c.Body})
	}
	if strings.TrimSpace(comment) == "" && len(ghComments) > 0 {
		comment = ghComments[len(ghComments)-1].Body
	}

	learned := ExtractKnowledgeItems(comment)
	for _, item := range learned {
		s.EstablishFact(item.FactKey(), item.Content)
	}
	if s.Phase == state.PhaseDiscovery && ShouldSkipDiscovery(comment, issue.Labels) {
		log.Info("author skipped discovery")
		s.SetPhase(state.PhaseFeedback)
	}
	mood := DetectMood(comment)

	ec, err := e.editorialContext(log)
	if err != nil {
		return nil, err
	}

	model := e.model()
	preparer := &session.Preparer{
		Counter: e.Counter,
		Summarizer: &session.Summarizer{
			Provider:   e.Provider,
			Model:      model,
			Counter:    e.Counter,
			KeepRecent: e.KeepRecent,
		},
		Model:                model,
		Options:              e.Budget,
		Logger:               log,
		WarnThreshold:        e.WarnThreshold,
		FallbackToTruncation: e.FallbackToTruncation,
	}
	content := state.Content(issue.Body)
	prepared, err := preparer.Prepare(ctx, comments, ec.SystemPrompt(), content, s.FactStrings())
	if err != nil {
		return nil, err
	}

	completion, err := provider.Complete(ctx, e.Provider, &provider.ChatRequest{
		Model:        model,
		SystemPrompt: prepared.SystemPrompt,
		Messages:     []provider.Message{provider.TextMessage(provider.RoleUser, buildRespondPrompt(issue, s, prepared.Conversation, content, comment, mood))},
		MaxTokens:    prepared.Budget.MaxOutput,
	})
	if err != nil {
		return nil, err
	}

	// Remind only of questions that were already waiting before this reply.
	reminder := state.FormatQuestionsReminder(s)

	var asked []string
	for _, q := range state.ExtractQuestions(completion.Text) {
		if s.AddQuestion(q, fmt.Sprintf("asked in reply to issue #%d", issue.Number)) {
			asked = append(asked, q)
		}
	}

	if err := e.save(ctx, issue, s); err != nil {
		return nil, err
	}

	reply := completion.Text + "\n" + reminder
	if err := e.Issues.CreateComment(ctx, issue.Number, strings.TrimRight(reply, "\n")); err != nil {
		return nil, err
	}
	log.Info("responded", "model", model, "new_questions", len(asked), "learned", len(learned), "mood", mood,
		"input_tokens", completion.Usage.InputTokens, "output_tokens", completion.Usage.OutputTokens)

	return &RespondResult{
		Reply:        strings.TrimRight(reply, "\n"),
		NewQuestions: asked,
		Learned:      learned,
		Mood:         mood,
		State:        s,
		Context:      prepared,
		Usage:        completion.Usage,
	}, nil
}

func buildRespondPrompt(issue *github.Issue, s *state.ConversationState, conversation, content, comment, mood string) string {
	var b strings.Builder
	b.WriteString("You are an editorial assistant having a conversation about integrating a voice memo into a book.\n\n")
	if intro := phaseIntro(s.Phase); intro != "" {
		b.WriteString(intro + "\n\n")
	}
	if guidance := moodGuidance(mood); guidance != "" {
		b.WriteString("**Author's emotional state:** " + mood + ". " + guidance + "\n\n")
	}
	if issue.Title != "" {
		fmt.Fprintf(&b, "**Issue:** #%d %s\n\n", issue.Number, issue.Title)
	}
	if content != "" {
		b.WriteString("**Original transcript:**\n" + content + "\n\n")
	}
	if facts := s.FactStrings(); len(facts) > 0 {
		b.WriteString("**Already established:**\n- " + strings.Join(facts, "\n- ") + "\n\n")
	}
	if open := s.UnansweredQuestions(); len(open) > 0 {
		b.WriteString("**Questions still waiting for the author:**\n")
		for _, q := range open {
			b.WriteString("- " + q.Question + "\n")
		}
		b.WriteString("\n")
	}
	if conversation != "" {
		b.WriteString("**Conversation so far:**\n" + conversation + "\n\n")
	}
	if comment != "" {
		b.WriteString("**Latest message from author:**\n" + comment + "\n\n")
	}
	b.WriteString(defaultPrompt("respond"))
	return b.String()
}
