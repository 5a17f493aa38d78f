package session

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"github.com/bookctl/bookctl/internal/provider"
)

const tokenCacheSize = 1024

// Counter counts tokens for one model. It asks the provider's tokenizer when
// one is available and otherwise estimates 4 characters per token. Count never
// fails; tokenizer errors are logged once and absorbed into the estimate.
//
// A nil *Counter is valid and always estimates.
type Counter struct {
	backend provider.TokenCounter
	model   string
	logger  *slog.Logger

	cache *lru.Cache[[32]byte, int]
	warn  sync.Once
}

// NewCounter returns a Counter for model. backend may be nil.
func NewCounter(backend provider.TokenCounter, model string, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[[32]byte, int](tokenCacheSize)
	return &Counter{
		backend: backend,
		model:   model,
		logger:  logger,
		cache:   cache,
	}
}

// Model returns the model this counter tokenizes for.
func (c *Counter) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Count returns the number of tokens in text. Empty text is 0 tokens.
func (c *Counter) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	if c == nil || c.backend == nil {
		return EstimateTokens(text)
	}

	key := blake3.Sum256([]byte(text))
	if n, ok := c.cache.Get(key); ok {
		return n
	}

	n, err := c.backend.CountTokens(ctx, c.model, text)
	if err != nil {
		c.warn.Do(func() {
			c.logger.Warn("tokenizer unavailable, estimating 4 chars per token",
				"model", c.model, "error", err)
		})
		return EstimateTokens(text)
	}
	c.cache.Add(key, n)
	return n
}

// CountMessages sums the tokens of every text block in msgs. Non-text blocks
// are not counted.
func (c *Counter) CountMessages(ctx context.Context, msgs []provider.Message) int {
	total := 0
	for _, msg := range msgs {
		for _, part := range msg.Content {
			if part.Type == provider.ContentTypeText {
				total += c.Count(ctx, part.Text)
			}
		}
	}
	return total
}

// EstimateTokens is the tokenizer-free fallback: characters / 4.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}
