// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the harvest CLI. Each pipeline
// stage is a subcommand: collect builds the canonical record set, scrape
// resolves records on the secondary source, download fetches artifacts,
// and reprocess re-extracts abstracts from stored pages.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvest/internal/logging"
	"github.com/pdiddy/paper-harvest/internal/secrets"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets secrets.Secrets

// cfg is the configuration resolved for the running command.
var cfg types.Config

// closeLog flushes the log file opened for this invocation.
var closeLog = func() error { return nil }

// rootCmd is the base command for the harvest CLI.
var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Collect bibliographic metadata and acquire abstracts and full texts",
	Long: `harvest builds a local corpus of journal articles. It pulls canonical
metadata from CrossRef (or OpenAlex), finds each article on a secondary
source that exposes abstracts and PDFs, and stores everything in SQLite
with full-text search.

Run the stages in order: collect, scrape, download. Every stage resumes
where the last run stopped.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(secrets.DefaultDir)
		if err != nil {
			return err
		}
		loadedSecrets = s

		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		cleanup, err := logging.Setup(cfg.Log)
		if err != nil {
			return err
		}
		closeLog = cleanup
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./harvest.yaml or ~/.config/harvest/harvest.yaml)")
	pf.String("data-dir", "", "directory for the database, caches, pages, and artifacts (default data)")
	pf.String("log-level", "", "log level: debug, info, warn, error (default info)")
	pf.String("log-file", "", "also write JSON logs to this file")

	viper.BindPFlag("storage.data_dir", pf.Lookup("data-dir"))
	viper.BindPFlag("log.level", pf.Lookup("log-level"))
	viper.BindPFlag("log.file", pf.Lookup("log-file"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("harvest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "harvest"))
		}
	}

	viper.SetEnvPrefix("HARVEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// signalContext is cancelled on SIGINT or SIGTERM so stages stop at the
// next record boundary.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
