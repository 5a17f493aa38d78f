package session

import (
	"errors"
	"testing"
)

func TestGetContextBudget_RegisteredModel(t *testing.T) {
	b, err := GetContextBudget("claude-sonnet-4-5-20250929", DefaultBudgetOptions())
	if err != nil {
		t.Fatal(err)
	}
	if b.ContextWindow != 200000 {
		t.Errorf("ContextWindow = %d, want 200000", b.ContextWindow)
	}
	if b.AvailableInput != 184000 {
		t.Errorf("AvailableInput = %d, want 184000", b.AvailableInput)
	}
	if b.SystemBudget != 55200 || b.ConversationBudget != 73600 || b.ContentBudget != 55200 {
		t.Errorf("sub-budgets = %d/%d/%d, want 55200/73600/55200",
			b.SystemBudget, b.ConversationBudget, b.ContentBudget)
	}
	if b.TotalUsed() != 0 {
		t.Errorf("fresh budget TotalUsed = %d, want 0", b.TotalUsed())
	}
}

func TestGetContextBudget_UnknownModelUsesDefaultWindow(t *testing.T) {
	b, err := GetContextBudget("some-unreleased-model", DefaultBudgetOptions())
	if err != nil {
		t.Fatal(err)
	}
	if b.ContextWindow != 128000 {
		t.Errorf("ContextWindow = %d, want 128000", b.ContextWindow)
	}
	if b.ConversationBudget != 44800 {
		t.Errorf("ConversationBudget = %d, want 44800", b.ConversationBudget)
	}
}

func TestGetContextBudget_AliasResolves(t *testing.T) {
	b, _ := GetContextBudget("deepseek", DefaultBudgetOptions())
	if b.Model != "deepseek-reasoner" {
		t.Errorf("Model = %q, want deepseek-reasoner", b.Model)
	}
	if b.AvailableInput != 48000 {
		t.Errorf("AvailableInput = %d, want 48000", b.AvailableInput)
	}
}

func TestNewTokenBudget_OutputExceedsWindow(t *testing.T) {
	b, err := NewTokenBudget(10000, BudgetOptions{MaxOutput: 16000})
	if !errors.Is(err, ErrOutputExceedsWindow) {
		t.Fatalf("expected ErrOutputExceedsWindow, got %v", err)
	}
	if b.AvailableInput != 0 {
		t.Errorf("AvailableInput = %d, want clamped 0", b.AvailableInput)
	}
	if b.SystemBudget != 0 || b.ConversationBudget != 0 || b.ContentBudget != 0 {
		t.Error("expected zero sub-budgets")
	}
}

func TestNewTokenBudget_NegativeRatio(t *testing.T) {
	b, err := NewTokenBudget(101000, BudgetOptions{
		MaxOutput: 1000, SystemRatio: -0.1, ConversationRatio: 0.5, ContentRatio: 0.25,
	})
	if !errors.Is(err, ErrNegativeRatio) {
		t.Fatalf("expected ErrNegativeRatio, got %v", err)
	}
	if b.SystemBudget != 0 {
		t.Errorf("SystemBudget = %d, want 0", b.SystemBudget)
	}
	if b.ConversationBudget != 50000 || b.ContentBudget != 25000 {
		t.Errorf("sub-budgets = %d/%d, want 50000/25000", b.ConversationBudget, b.ContentBudget)
	}
}

func TestNewTokenBudget_RatiosAboveOneAreScaled(t *testing.T) {
	b, err := NewTokenBudget(2000, BudgetOptions{
		MaxOutput: 1000, SystemRatio: 0.5, ConversationRatio: 0.5, ContentRatio: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	sum := b.SystemBudget + b.ConversationBudget + b.ContentBudget
	if sum > b.AvailableInput {
		t.Errorf("sub-budgets sum to %d, exceeding available %d", sum, b.AvailableInput)
	}
	if b.SystemBudget != 333 {
		t.Errorf("SystemBudget = %d, want 333", b.SystemBudget)
	}
}

func TestNewTokenBudget_ZeroRatiosUseDefaults(t *testing.T) {
	b, err := NewTokenBudget(2000, BudgetOptions{MaxOutput: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if b.SystemBudget != 300 || b.ConversationBudget != 400 || b.ContentBudget != 300 {
		t.Errorf("sub-budgets = %d/%d/%d, want 300/400/300",
			b.SystemBudget, b.ConversationBudget, b.ContentBudget)
	}
}

func TestTokenBudget_Accounting(t *testing.T) {
	b := &TokenBudget{AvailableInput: 1000, SystemTokens: 300, ConversationTokens: 500, ContentTokens: 100}
	if b.TotalUsed() != 900 {
		t.Errorf("TotalUsed = %d, want 900", b.TotalUsed())
	}
	if b.Remaining() != 100 {
		t.Errorf("Remaining = %d, want 100", b.Remaining())
	}
	if b.IsOverBudget() {
		t.Error("900/1000 should not be over budget")
	}

	b.ContentTokens = 201
	if !b.IsOverBudget() {
		t.Error("1001/1000 should be over budget")
	}
	if b.Remaining() != -1 {
		t.Errorf("Remaining = %d, want -1", b.Remaining())
	}
}

func TestNeedsSummarization_Boundaries(t *testing.T) {
	tests := []struct {
		name         string
		system, conv int
		want         bool
	}{
		{"conversation over its allowance", 0, 30001, true},
		{"conversation at its allowance", 0, 30000, false},
		{"total 79999 under 80 percent", 50000, 29999, false},
		{"total 80000 at 80 percent", 50001, 29999, false},
		{"total 80001 over 80 percent", 50002, 29999, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &TokenBudget{
				AvailableInput:     100000,
				ConversationBudget: 30000,
				SystemTokens:       tt.system,
				ConversationTokens: tt.conv,
			}
			if got := b.NeedsSummarization(); got != tt.want {
				t.Errorf("NeedsSummarization() with total %d = %v, want %v", b.TotalUsed(), got, tt.want)
			}
		})
	}
}

func TestNeedsSummarization_CustomThreshold(t *testing.T) {
	b := &TokenBudget{
		AvailableInput:     100000,
		ConversationBudget: 30000,
		SystemTokens:       55000,
		ConversationTokens: 10000,
		SummarizeThreshold: 0.6,
	}
	if !b.NeedsSummarization() {
		t.Error("65000 > 60% of 100000 should trigger summarization")
	}
	if b.SummarizeAt() != 60000 {
		t.Errorf("SummarizeAt = %d, want 60000", b.SummarizeAt())
	}
}
