package provider

import (
	"sort"
	"strings"
)

// DefaultModel is used when neither config nor MODEL names one.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultContextWindow is assumed for models missing from the registry.
const DefaultContextWindow = 128000

// Capabilities describes what a model can take and do.
type Capabilities struct {
	Model             string
	Provider          string
	ContextWindow     int
	SupportsReasoning bool
	ReasoningBudget   int // thinking tokens for Anthropic extended thinking, 0 if n/a
	Registered        bool
}

var registry = map[string]Capabilities{
	// Anthropic Claude 4.5 family
	"claude-sonnet-4-5-20250929": {Provider: "anthropic", ContextWindow: 200000, SupportsReasoning: true, ReasoningBudget: 10000},
	"claude-opus-4-5-20251101":   {Provider: "anthropic", ContextWindow: 200000, SupportsReasoning: true, ReasoningBudget: 16000},
	"claude-haiku-4-5-20251201":  {Provider: "anthropic", ContextWindow: 200000, SupportsReasoning: true, ReasoningBudget: 8000},
	// Anthropic Claude 4
	"claude-sonnet-4-20250514": {Provider: "anthropic", ContextWindow: 200000, SupportsReasoning: true},
	"claude-opus-4-20250514":   {Provider: "anthropic", ContextWindow: 200000, SupportsReasoning: true},
	// DeepSeek
	"deepseek-reasoner": {Provider: "deepseek", ContextWindow: 64000, SupportsReasoning: true},
	// OpenAI o-series
	"o3":      {Provider: "openai", ContextWindow: 200000, SupportsReasoning: true},
	"o4-mini": {Provider: "openai", ContextWindow: 200000, SupportsReasoning: true},
	"o3-mini": {Provider: "openai", ContextWindow: 200000, SupportsReasoning: true},
	"o1":      {Provider: "openai", ContextWindow: 200000, SupportsReasoning: true},
	// Google Gemini 2.5
	"gemini-2.5-flash":      {Provider: "gemini", ContextWindow: 1000000, SupportsReasoning: true},
	"gemini-2.5-pro":        {Provider: "gemini", ContextWindow: 1000000, SupportsReasoning: true},
	"gemini-2.5-flash-lite": {Provider: "gemini", ContextWindow: 1000000, SupportsReasoning: true},
}

var aliases = map[string]string{
	"claude":        "claude-sonnet-4-5-20250929",
	"claude-sonnet": "claude-sonnet-4-5-20250929",
	"claude-opus":   "claude-opus-4-5-20251101",
	"claude-haiku":  "claude-haiku-4-5-20251201",
	"sonnet":        "claude-sonnet-4-5-20250929",
	"opus":          "claude-opus-4-5-20251101",
	"haiku":         "claude-haiku-4-5-20251201",
	"deepseek":      "deepseek-reasoner",
	"deepseek-r1":   "deepseek-reasoner",
	"openai":        "o4-mini",
	"gemini":        "gemini-2.5-flash",
	"gemini-pro":    "gemini-2.5-pro",
	"gemini-flash":  "gemini-2.5-flash",
	"gemini-lite":   "gemini-2.5-flash-lite",
	"cheap":         "gemini-2.5-flash-lite",
	"fast":          "claude-haiku-4-5-20251201",
	"default":       "claude-sonnet-4-5-20250929",
	"powerful":      "claude-opus-4-5-20251101",
}

// Resolve maps an alias or a provider-prefixed name ("anthropic/claude-opus-4-20250514")
// to the canonical model id. Unknown names are returned trimmed but otherwise unchanged.
func Resolve(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel
	}
	if target, ok := aliases[strings.ToLower(name)]; ok {
		return target
	}
	if _, ok := registry[name]; ok {
		return name
	}
	if i := strings.IndexByte(name, '/'); i >= 0 {
		if _, ok := registry[name[i+1:]]; ok {
			return name[i+1:]
		}
	}
	return name
}

// Lookup returns the capabilities of a model. Unregistered models get the
// conservative DefaultContextWindow and a provider guessed from the name.
func Lookup(name string) Capabilities {
	model := Resolve(name)
	if c, ok := registry[model]; ok {
		c.Model = model
		c.Registered = true
		return c
	}
	return Capabilities{
		Model:         model,
		Provider:      GuessProvider(model),
		ContextWindow: DefaultContextWindow,
	}
}

// GuessProvider infers the provider from an explicit "provider/" prefix or
// from the model family.
func GuessProvider(model string) string {
	if c, ok := registry[model]; ok {
		return c.Provider
	}
	if i := strings.IndexByte(model, '/'); i > 0 {
		return model[:i]
	}
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gemini"):
		return "gemini"
	case strings.HasPrefix(m, "deepseek"):
		return "deepseek"
	default:
		return "openai"
	}
}

// Models lists the registered model ids, sorted.
func Models() []string {
	out := make([]string, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Aliases returns a copy of the alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}
