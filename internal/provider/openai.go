package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/pkoukk/tiktoken-go"
)

// OpenAIProvider implements Provider for all OpenAI-compatible APIs,
// including OpenAI, DeepSeek and OpenRouter.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	name    string
	baseURL string

	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "o4-mini"
	}

	name := "openai"
	if baseURL != "" {
		switch {
		case strings.Contains(baseURL, "deepseek"):
			name = "deepseek"
		case strings.Contains(baseURL, "openrouter"):
			name = "openrouter"
		}
	}

	return &OpenAIProvider{
		client:   openai.NewClient(opts...),
		model:    model,
		name:     name,
		baseURL:  baseURL,
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: p.buildMessages(req),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		// Reasoning models on api.openai.com reject max_tokens; compatible
		// endpoints generally only understand max_tokens.
		if p.name == "openai" {
			params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
		} else {
			params.MaxTokens = openai.Int(int64(req.MaxTokens))
		}
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, ch)
	return ch, nil
}

// CountTokens tokenizes text locally with the model's tiktoken encoding.
// Models tiktoken does not know (deepseek-*, newer o-series) return an error
// so the caller can fall back to its heuristic.
func (p *OpenAIProvider) CountTokens(_ context.Context, model, text string) (int, error) {
	if model == "" {
		model = p.model
	}
	enc, err := p.encoder(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (p *OpenAIProvider) encoder(model string) (*tiktoken.Tiktoken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if enc, ok := p.encoders[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("tiktoken encoding for %s: %w", model, err)
	}
	p.encoders[model] = enc
	return enc, nil
}

// processStream reads the OpenAI SSE stream and emits unified events.
// With include_usage set, the last chunk has no choices and carries usage.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], ch chan<- Event) {
	defer close(ch)

	usage := &Usage{}
	for stream.Next() {
		select {
		case <-ctx.Done():
			ch <- Event{Type: EventError, Error: ctx.Err()}
			return
		default:
		}

		chunk := stream.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage.InputTokens = int(chunk.Usage.PromptTokens)
			usage.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		if delta := chunk.Choices[0].Delta; delta.Content != "" {
			ch <- Event{Type: EventTextDelta, TextDelta: delta.Content}
		}
	}

	if err := stream.Err(); err != nil {
		ch <- Event{Type: EventError, Error: fmt.Errorf("%s streaming error: %w", p.name, err)}
		return
	}

	ch <- Event{Type: EventDone, Usage: usage}
}

// buildMessages converts unified messages to OpenAI API params.
func (p *OpenAIProvider) buildMessages(req *ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var params []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		params = append(params, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		text := messageText(msg)
		if text == "" {
			continue
		}
		switch msg.Role {
		case RoleUser:
			params = append(params, openai.UserMessage(text))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(text))
		}
	}
	return params
}

// messageText joins the text blocks of msg.
func messageText(msg Message) string {
	var parts []string
	for _, c := range msg.Content {
		if c.Type == ContentTypeText && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
