// Package config loads bookctl settings.
// Sources, highest priority first:
//  1. command-line flags (applied by cmd)
//  2. environment variables, including a .env file in the working directory
//  3. the file named by --config, or ~/.config/bookctl/config.yaml
//  4. DefaultConfig
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// BudgetConfig tunes how the context window is split.
type BudgetConfig struct {
	MaxOutputTokens     int     `yaml:"max_output_tokens"`
	SystemRatio         float64 `yaml:"system_ratio"`
	ConversationRatio   float64 `yaml:"conversation_ratio"`
	ContentRatio        float64 `yaml:"content_ratio"`
	SummarizeThreshold  float64 `yaml:"summarize_threshold"`
	RecentComments      int     `yaml:"recent_comments"`
	SystemWarnThreshold float64 `yaml:"system_warn_threshold"`

	// FallbackToTruncation truncates the conversation when summarization fails.
	FallbackToTruncation bool `yaml:"fallback_to_truncation"`
}

// GitHubConfig selects the repository whose issues are edited.
type GitHubConfig struct {
	Repository string `yaml:"repository"` // owner/name
	Token      string `yaml:"token"`
}

// Config is the full bookctl configuration.
type Config struct {
	// Provider is "anthropic", "openai", "deepseek", "openrouter" or "gemini".
	// Empty means: infer from the model.
	Provider string `yaml:"provider"`

	// Model may be an alias ("sonnet", "cheap") or a full model id.
	Model string `yaml:"model"`

	Providers map[string]*ProviderConfig `yaml:"providers"`

	Budget BudgetConfig `yaml:"budget"`
	GitHub GitHubConfig `yaml:"github"`

	// RepoDir is the checkout holding EDITOR_PERSONA.md, chapters/ and .ai-context/.
	RepoDir       string `yaml:"repo_dir"`
	KnowledgePath string `yaml:"knowledge_path"` // relative paths resolve against RepoDir
	IndexPath     string `yaml:"index_path"`     // "" means ~/.local/share/bookctl/knowledge.db

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: make(map[string]*ProviderConfig),
		Budget: BudgetConfig{
			MaxOutputTokens:      16000,
			SystemRatio:          0.3,
			ConversationRatio:    0.4,
			ContentRatio:         0.3,
			SummarizeThreshold:   0.8,
			RecentComments:       3,
			SystemWarnThreshold:  0.9,
			FallbackToTruncation: true,
		},
		RepoDir:       ".",
		KnowledgePath: ".ai-context/knowledge.jsonl",
		LogLevel:      "info",
	}
}

// DefaultPath returns ~/.config/bookctl/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bookctl", "config.yaml")
}

// Load reads configPath (DefaultPath when empty) over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment without overriding ones already set. A missing file is fine.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no budget can be built from.
func (c *Config) Validate() error {
	b := c.Budget
	if b.MaxOutputTokens < 0 {
		return fmt.Errorf("budget.max_output_tokens must be >= 0, got %d", b.MaxOutputTokens)
	}
	if b.SystemRatio < 0 || b.ConversationRatio < 0 || b.ContentRatio < 0 {
		return errors.New("budget ratios must be non-negative")
	}
	if b.SummarizeThreshold < 0 || b.SummarizeThreshold > 1 {
		return fmt.Errorf("budget.summarize_threshold must be within [0, 1], got %g", b.SummarizeThreshold)
	}
	if b.RecentComments < 0 {
		return fmt.Errorf("budget.recent_comments must be >= 0, got %d", b.RecentComments)
	}
	return nil
}

// ProviderConfig returns the settings for name, or an empty config.
func (c *Config) ProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// Credentials returns the settings for name, filling gaps from the generic
// LLM_API_KEY / LLM_BASE_URL values recorded when no provider was selected.
func (c *Config) Credentials(name string) ProviderConfig {
	pc := *c.ProviderConfig(name)
	generic := c.ProviderConfig("")
	if pc.APIKey == "" {
		pc.APIKey = generic.APIKey
	}
	if pc.BaseURL == "" {
		pc.BaseURL = generic.BaseURL
	}
	return pc
}

// ResolvePath makes p absolute against RepoDir unless it already is.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RepoDir, p)
}

func (c *Config) provider(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

var providerKeyEnv = map[string]string{
	"ANTHROPIC_API_KEY":  "anthropic",
	"OPENAI_API_KEY":     "openai",
	"GEMINI_API_KEY":     "gemini",
	"DEEPSEEK_API_KEY":   "deepseek",
	"OPENROUTER_API_KEY": "openrouter",
}

func applyEnvOverrides(cfg *Config) {
	for env, name := range providerKeyEnv {
		if v := os.Getenv(env); v != "" {
			cfg.provider(name).APIKey = v
		}
	}

	if v := os.Getenv("MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("BOOKCTL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("BOOKCTL_MODEL"); v != "" {
		cfg.Model = v
	}

	// LLM_* apply to whichever provider is selected.
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.provider(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.provider(cfg.Provider).BaseURL = v
	}

	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_REPOSITORY"); v != "" {
		cfg.GitHub.Repository = v
	}

	if v := os.Getenv("BOOKCTL_REPO_DIR"); v != "" {
		cfg.RepoDir = v
	}
	if v := os.Getenv("BOOKCTL_KNOWLEDGE_PATH"); v != "" {
		cfg.KnowledgePath = v
	}
	if v := os.Getenv("BOOKCTL_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("BOOKCTL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOOKCTL_MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Budget.MaxOutputTokens = n
		}
	}
}
