// Package provider defines the unified interface and shared types for all LLM providers.
// Each adapter (anthropic.go, openai.go, gemini.go) implements Provider and
// normalizes its API's response into the same Event sequence.
package provider

import (
	"context"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Content is one block of a message. Only text blocks carry tokens we count;
// image blocks are passed through to providers that accept them.
type Content struct {
	Type      ContentType
	Text      string
	MediaType string // image
	Data      []byte // image
}

// Message is one entry in a conversation.
type Message struct {
	Role    Role
	Content []Content
}

// TextMessage builds a single-block text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// ── Request ──────────────────────────────────────────────────────────────────

// ChatRequest is the provider-neutral request.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// ── Streaming events ─────────────────────────────────────────────────────────

type EventType int

const (
	// EventTextDelta carries an incremental piece of the response text.
	EventTextDelta EventType = iota

	// EventDone ends the response and carries usage.
	EventDone

	// EventError ends the response with an error.
	EventError
)

// Event is one item on the stream returned by Chat.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption of one API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Interfaces ───────────────────────────────────────────────────────────────

// Provider is the unified interface of every LLM provider.
// Implementations convert ChatRequest into their API's format and translate
// the response back into Events.
type Provider interface {
	// Chat starts a streaming completion. The channel emits events until
	// EventDone or EventError and is then closed. Callers must drain it.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the model used when a request leaves Model empty.
	DefaultModel() string
}

// TokenCounter is implemented by providers that can tokenize text for a model,
// either locally or through a counting endpoint.
type TokenCounter interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}
