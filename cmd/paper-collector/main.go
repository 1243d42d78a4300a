// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-collector CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-collector/internal/secrets"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the validated configuration, loaded before every command.
	cfg types.Config

	// logger writes structured diagnostics to stderr.
	logger *slog.Logger
)

// rootCmd is the base command for the paper-collector CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-collector",
	Short: "Collect research papers from arXiv and PubMed",
	Long: `paper-collector searches arXiv and PubMed for papers that are not yet in
the local corpus, stores their metadata in SQLite, and downloads their PDFs
into dated folders. Documents longer than the page limit or larger than the
size limit are skipped.

Run a single search with "search", a keyword plan with "collect", or expose
the same operations over HTTP with "serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}

		loaded, err := loadConfig(s)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.Log)
		slog.SetDefault(logger)

		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./paper-collector.yaml or ~/.config/paper-collector/paper-collector.yaml)")
	pf.String("db", "", "SQLite database path")
	pf.String("papers-dir", "", "base directory for downloaded PDFs")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	for key, flag := range map[string]string{
		"store.path":             "db",
		"acquisition.papers_dir": "papers-dir",
		"log.level":              "log-level",
		"log.format":             "log-format",
	} {
		if err := viper.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-collector")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-collector"))
		}
	}

	setDefaults(types.DefaultConfig())
	bindEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// bindEnv maps PAPER_COLLECTOR_<SECTION>_<KEY> variables onto config keys.
func bindEnv() {
	viper.SetEnvPrefix("PAPER_COLLECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults registers every config key with viper so environment
// variables are picked up by Unmarshal.
func setDefaults(d types.Config) {
	for _, sec := range []struct {
		name string
		http types.HTTPConfig
	}{
		{"search", d.Search.HTTPConfig},
		{"acquisition", d.Acquisition.HTTPConfig},
	} {
		viper.SetDefault(sec.name+".timeout", sec.http.Timeout)
		viper.SetDefault(sec.name+".user_agent", sec.http.UserAgent)
		viper.SetDefault(sec.name+".max_retries", sec.http.MaxRetries)
	}

	viper.SetDefault("search.ncbi_api_key", d.Search.NCBIAPIKey)
	viper.SetDefault("search.ncbi_email", d.Search.NCBIEmail)
	viper.SetDefault("search.ncbi_tool", d.Search.NCBITool)

	viper.SetDefault("acquisition.papers_dir", d.Acquisition.PapersDir)
	viper.SetDefault("acquisition.max_pages", d.Acquisition.MaxPages)
	viper.SetDefault("acquisition.max_bytes", d.Acquisition.MaxBytes)
	viper.SetDefault("acquisition.download_delay", d.Acquisition.DownloadDelay)
	viper.SetDefault("acquisition.query_delay", d.Acquisition.QueryDelay)
	viper.SetDefault("acquisition.retry_skipped", d.Acquisition.RetrySkipped)

	viper.SetDefault("store.path", d.Store.Path)
	viper.SetDefault("api.addr", d.API.Addr)
	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.format", d.Log.Format)
}

// loadConfig decodes viper's merged settings, fills NCBI credentials from
// secrets when unset, and validates the result.
func loadConfig(s secrets.Secrets) (types.Config, error) {
	c := types.DefaultConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if c.Search.NCBIAPIKey == "" {
		c.Search.NCBIAPIKey = s.Get(secrets.NCBIAPIKey, "")
	}
	if c.Search.NCBIEmail == "" {
		c.Search.NCBIEmail = s.Get(secrets.NCBIEmail, "")
	}
	if err := c.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func newLogger(c types.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
