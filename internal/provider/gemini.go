package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider on the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: cli, model: model}, nil
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := p.buildContents(req.Messages)

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)

		usage := &Usage{}
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				ch <- Event{Type: EventError, Error: fmt.Errorf("gemini streaming error: %w", err)}
				return
			}
			if text := responseText(resp); text != "" {
				ch <- Event{Type: EventTextDelta, TextDelta: text}
			}
			if md := resp.UsageMetadata; md != nil {
				usage.InputTokens = int(md.PromptTokenCount)
				usage.OutputTokens = int(md.CandidatesTokenCount)
			}
		}
		ch <- Event{Type: EventDone, Usage: usage}
	}()
	return ch, nil
}

// CountTokens calls the countTokens endpoint for text as one user turn.
func (p *GeminiProvider) CountTokens(ctx context.Context, model, text string) (int, error) {
	if model == "" {
		model = p.model
	}
	res, err := p.client.Models.CountTokens(ctx, model,
		[]*genai.Content{{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: text}}}}, nil)
	if err != nil {
		return 0, fmt.Errorf("gemini count tokens: %w", err)
	}
	return int(res.TotalTokens), nil
}

func (p *GeminiProvider) buildContents(msgs []Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range msgs {
		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case ContentTypeText:
				if c.Text != "" {
					parts = append(parts, &genai.Part{Text: c.Text})
				}
			case ContentTypeImage:
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: c.MediaType, Data: c.Data}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		role := genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			out += part.Text
		}
	}
	return out
}
