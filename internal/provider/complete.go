package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Completion is the drained result of a streamed Chat call.
type Completion struct {
	Text  string
	Usage Usage
}

// ErrEmptyCompletion is returned when a stream finishes without any text.
var ErrEmptyCompletion = errors.New("provider returned empty response")

// Complete runs a single-turn request and drains the event stream into a
// Completion. Provider errors are returned as-is; there is no retry.
func Complete(ctx context.Context, p Provider, req *ChatRequest) (*Completion, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.Name(), err)
	}

	var sb strings.Builder
	var out Completion
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			sb.WriteString(ev.TextDelta)
		case EventDone:
			if ev.Usage != nil {
				out.Usage = *ev.Usage
			}
		case EventError:
			if streamErr == nil {
				streamErr = ev.Error
			}
		}
	}
	if streamErr != nil {
		return nil, streamErr
	}

	out.Text = strings.TrimSpace(sb.String())
	if out.Text == "" {
		return nil, ErrEmptyCompletion
	}
	return &out, nil
}

// Prompt is shorthand for Complete with one user message.
func Prompt(ctx context.Context, p Provider, model, system, prompt string, maxTokens int) (*Completion, error) {
	return Complete(ctx, p, &ChatRequest{
		Model:        model,
		Messages:     []Message{TextMessage(RoleUser, prompt)},
		SystemPrompt: system,
		MaxTokens:    maxTokens,
	})
}
