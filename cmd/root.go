package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bookctl/bookctl/internal/config"
	"github.com/bookctl/bookctl/internal/editor"
	"github.com/bookctl/bookctl/internal/github"
	"github.com/bookctl/bookctl/internal/knowledge"
	"github.com/bookctl/bookctl/internal/provider"
	"github.com/bookctl/bookctl/internal/session"
)

var (
	cfgFile      string
	modelFlag    string
	providerFlag string
	repoFlag     string
	verbose      bool
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd := &cobra.Command{
		Use:   "bookctl",
		Short: "AI book editor for GitHub issues",
		Long: "bookctl answers authors on GitHub issues as a book editor, tracking what has been\n" +
			"decided in a state block inside the issue body and carrying facts across issues.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/bookctl/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "model id or alias (sonnet, opus, gemini, cheap, ...)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider (anthropic, openai, deepseek, openrouter, gemini)")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "GitHub repository owner/name (default $GITHUB_REPOSITORY)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newRespondCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newExtractAnswerCmd())
	rootCmd.AddCommand(newCloseCmd())
	rootCmd.AddCommand(newStateCmd())
	rootCmd.AddCommand(newKnowledgeCmd())
	rootCmd.AddCommand(newBudgetCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads .env and the config file, applies CLI flag overrides and
// installs the default logger.
func initConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if repoFlag != "" {
		cfg.GitHub.Repository = repoFlag
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// providerBaseURLs maps OpenAI-compatible provider names to their base URLs.
var providerBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"deepseek":   "https://api.deepseek.com",
	"openrouter": "https://openrouter.ai/api/v1",
}

// providerName is the configured provider, or the one the model belongs to.
func providerName(cfg *config.Config) string {
	if cfg.Provider != "" {
		return cfg.Provider
	}
	return provider.Lookup(cfg.Model).Provider
}

// buildProvider creates the LLM provider for the configured model.
func buildProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	name := providerName(cfg)
	creds := cfg.Credentials(name)
	if creds.APIKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: %s_API_KEY or LLM_API_KEY",
			name, name, strings.ToUpper(name),
		)
	}
	model := provider.Resolve(cfg.Model)

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(creds.APIKey, model), nil
	case "gemini":
		return provider.NewGeminiProvider(ctx, creds.APIKey, model)
	default:
		baseURL := creds.BaseURL
		if baseURL == "" {
			u, ok := providerBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(creds.APIKey, baseURL, model), nil
	}
}

func buildIssueStore(ctx context.Context, cfg *config.Config) (*github.Client, error) {
	owner, repo, err := github.ParseRepository(cfg.GitHub.Repository)
	if err != nil {
		return nil, fmt.Errorf("%w (set --repo, github.repository or GITHUB_REPOSITORY)", err)
	}
	return github.NewClient(ctx, cfg.GitHub.Token, owner, repo), nil
}

func budgetOptions(cfg *config.Config) session.BudgetOptions {
	b := cfg.Budget
	return session.BudgetOptions{
		MaxOutput:          b.MaxOutputTokens,
		SystemRatio:        b.SystemRatio,
		ConversationRatio:  b.ConversationRatio,
		ContentRatio:       b.ContentRatio,
		SummarizeThreshold: b.SummarizeThreshold,
	}
}

// buildEditor wires an Editor. withLLM=false skips the provider for commands
// that only edit state.
func buildEditor(ctx context.Context, cfg *config.Config, logger *slog.Logger, withLLM bool) (*editor.Editor, error) {
	store, err := buildIssueStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model := provider.Resolve(cfg.Model)

	ed := &editor.Editor{
		Issues:               store,
		Model:                model,
		Budget:               budgetOptions(cfg),
		KeepRecent:           cfg.Budget.RecentComments,
		WarnThreshold:        cfg.Budget.SystemWarnThreshold,
		FallbackToTruncation: cfg.Budget.FallbackToTruncation,
		RepoDir:              cfg.RepoDir,
		KnowledgePath:        cfg.KnowledgePath,
		Logger:               logger,
	}

	var backend provider.TokenCounter
	if withLLM {
		p, err := buildProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		ed.Provider = p
		if tc, ok := p.(provider.TokenCounter); ok {
			backend = tc
		}
	}
	ed.Counter = session.NewCounter(backend, model, logger)
	return ed, nil
}

// openIndex opens the fact index, logging instead of failing when it cannot.
func openIndex(cfg *config.Config, logger *slog.Logger) *knowledge.Index {
	path := cfg.IndexPath
	if path == "" {
		p, err := knowledge.DefaultIndexPath()
		if err != nil {
			logger.Debug("no fact index", "error", err)
			return nil
		}
		path = p
	}
	idx, err := knowledge.OpenIndex(path)
	if err != nil {
		logger.Warn("fact index unavailable", "path", path, "error", err)
		return nil
	}
	return idx
}
