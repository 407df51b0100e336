package di

import (
	"flag"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-reply-drafter/internal/config"
	"github.com/mikey/llm-reply-drafter/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Model flags
	Provider          string
	EmbeddingProvider string
	OpenAIAPIKey      string
	GeminiAPIKey      string
	BedrockRegion     string

	// Store flags
	PostgresDSN string

	// Drafting flags
	AccountID string
	InputFile string
	TopN      int

	// Maintenance flags
	Index     bool
	IndexSize int
	Recluster string

	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseFlagSet registers the CLI flags on fs and parses args
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (bedrock, gemini, openai)")
	fs.StringVar(&flags.EmbeddingProvider, "embedding-provider", "", "Embedding provider (openai, gemini)")
	fs.StringVar(&flags.OpenAIAPIKey, "openai-api-key", "", "API key for OpenAI")
	fs.StringVar(&flags.GeminiAPIKey, "gemini-api-key", "", "API key for Google Gemini")
	fs.StringVar(&flags.BedrockRegion, "bedrock-region", "", "AWS region for Bedrock")

	fs.StringVar(&flags.PostgresDSN, "dsn", "", "Postgres connection string")

	fs.StringVar(&flags.AccountID, "account", "", "Account to draft for")
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	fs.IntVar(&flags.TopN, "examples", 0, "Number of past emails to show the model")

	fs.BoolVar(&flags.Index, "index", false, "Embed the account's pending emails before drafting")
	fs.IntVar(&flags.IndexSize, "index-limit", 500, "Maximum emails embedded by -index")
	fs.StringVar(&flags.Recluster, "recluster", "", "Rebuild the style clusters of a relationship before drafting")

	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (command line flags override it)")

	fs.Parse(args) //nolint:errcheck
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return ConfigFromFlags(flags, logger)
	}); err != nil {
		return nil, err
	}

	// Metrics are collected but not served
	if err := container.Provide(prometheus.NewRegistry); err != nil {
		return nil, err
	}

	if err := providePipeline(container); err != nil {
		return nil, err
	}
	return container, nil
}

// ConfigFromFlags loads the config file when given and applies the command line overrides
func ConfigFromFlags(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", flags.ConfigFile))
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	v := cfg.GetViper()

	// Set some cli specific settings
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)

	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("llm.provider", flags.Provider)
	set("embedding.provider", flags.EmbeddingProvider)
	set("openai.api_key", flags.OpenAIAPIKey)
	set("gemini.api_key", flags.GeminiAPIKey)
	set("bedrock.region", flags.BedrockRegion)
	set("store.postgres_dsn", flags.PostgresDSN)
	if flags.TopN > 0 {
		v.Set("retrieval.top_n", flags.TopN)
	}

	return cfg, nil
}
