// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-hub CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/logging"
	"github.com/pdiddy/research-hub/internal/secrets"
	"github.com/pdiddy/research-hub/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	logger      = zap.NewNop()
	closeLogger = func() error { return nil }
)

// rootCmd is the base command for the research-hub CLI.
var rootCmd = &cobra.Command{
	Use:   "research-hub",
	Short: "Aggregate, score, and cache research evidence",
	Long: `research-hub searches several evidence sources at once, scores what it
finds for relevance, freshness and credibility, and caches the results.

Search results are cached per term set, uploaded documents are researched
once per entity, and chat conversations keep a bounded memory that can be
turned into a context for a language model.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		logFile, _ := cmd.Flags().GetString("log-file")

		l, closer, err := logging.New(logging.Options{Verbose: verbose, File: logFile})
		if err != nil {
			return err
		}
		logger, closeLogger = l, closer
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", zap.String("path", f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLogger()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./research-hub.yaml or ~/.config/research-hub/research-hub.yaml)")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.String("log-file", "", "also write JSON logs to this rotated file")
	pf.String("secrets-dir", ".secrets", "directory of API key files")
	pf.String("metrics-textfile", "", "write Prometheus metrics to this file on exit")
	pf.String("storage", "", "snapshot backend: memory, file, sqlite, redis")
	pf.String("data-dir", "", "directory for file or sqlite snapshots")

	_ = viper.BindPFlag("storage.backend", pf.Lookup("storage"))
	_ = viper.BindPFlag("storage.dir", pf.Lookup("data-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-hub")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-hub"))
		}
	}

	setDefaults(viper.GetViper(), types.DefaultConfig())
	viper.SetEnvPrefix("RESEARCH_HUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "warning: reading config:", err)
		}
	}
}

// setDefaults registers every scalar setting so environment variables can
// override keys that the config file does not mention.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.requests_per_second", d.HTTP.RequestsPerSecond)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)

	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)
	v.SetDefault("fetch.task_timeout", d.Fetch.TaskTimeout)
	v.SetDefault("fetch.max_attempts", d.Fetch.MaxAttempts)
	v.SetDefault("fetch.retry_base_delay", d.Fetch.RetryBaseDelay)
	v.SetDefault("fetch.excerpt_limit", d.Fetch.ExcerptLimit)
	v.SetDefault("fetch.max_results", d.Fetch.MaxResults)

	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.entity_ttl", d.Cache.EntityTTL)

	v.SetDefault("memory.max_conversations", d.Memory.MaxConversations)
	v.SetDefault("memory.max_messages_per_conversation", d.Memory.MaxMessagesPerConversation)
	v.SetDefault("memory.max_global_messages", d.Memory.MaxGlobalMessages)
	v.SetDefault("memory.context_messages", d.Memory.ContextMessages)
	v.SetDefault("memory.cross_conversation_messages", d.Memory.CrossConversationMessages)
	v.SetDefault("memory.entity_excerpt_limit", d.Memory.EntityExcerptLimit)

	v.SetDefault("storage.backend", string(d.Storage.Backend))
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", d.Storage.RedisDB)
	v.SetDefault("storage.redis_prefix", d.Storage.RedisPrefix)

	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.max_retries", d.AI.MaxRetries)
	v.SetDefault("ai.max_queries", d.AI.MaxQueries)

	v.SetDefault("browser.control_url", d.Browser.ControlURL)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.navigation_timeout", d.Browser.NavigationTimeout)

	v.SetDefault("openalex_email", "")
	v.SetDefault("ncbi_api_key", "")
	v.SetDefault("semantic_scholar_api_key", "")
}

// loadConfig reads the effective configuration and fills secrets.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()
	if viper.IsSet("sources") {
		// Decoding merges into existing slice elements.
		cfg.Sources = nil
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(dir, logger)
	if err != nil {
		return cfg, err
	}
	if len(s) > 0 {
		logger.Debug("loaded secrets", zap.Int("count", len(s)))
	}
	secrets.Apply(&cfg, s)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
