// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-harvest/internal/pipeline"
	"github.com/pdiddy/paper-harvest/internal/secrets"
	"github.com/pdiddy/paper-harvest/internal/store"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// setDefaults registers every config key with its default so file,
// environment, and flag values all resolve through viper.
func setDefaults() {
	d := types.DefaultConfig()
	for key, v := range map[string]any{
		"storage.data_dir": d.Storage.DataDir,
		"storage.db_path":  d.Storage.DBPath,

		"metadata.timeout":      d.Metadata.Timeout,
		"metadata.user_agent":   d.Metadata.UserAgent,
		"metadata.source":       string(d.Metadata.Source),
		"metadata.email":        d.Metadata.Email,
		"metadata.cache_dir":    d.Metadata.CacheDir,
		"metadata.workers":      d.Metadata.Workers,
		"metadata.max_attempts": d.Metadata.MaxAttempts,
		"metadata.backoff_base": d.Metadata.BackoffBase,
		"metadata.refresh":      d.Metadata.Refresh,

		"fetch.transport":         string(d.Fetch.Transport),
		"fetch.base_url":          d.Fetch.BaseURL,
		"fetch.search_url":        d.Fetch.SearchURL,
		"fetch.crawl_delay":       d.Fetch.CrawlDelay,
		"fetch.max_retries":       d.Fetch.MaxRetries,
		"fetch.backoff_factor":    d.Fetch.BackoffFactor,
		"fetch.page_timeout":      d.Fetch.PageTimeout,
		"fetch.challenge_timeout": d.Fetch.ChallengeTimeout,
		"fetch.headless":          d.Fetch.Headless,
		"fetch.save_pages":        d.Fetch.SavePages,
		"fetch.respect_robots":    d.Fetch.RespectRobots,

		"match.similarity_threshold": d.Match.SimilarityThreshold,
		"match.length_weight":        d.Match.LengthWeight,
		"match.max_candidates":       d.Match.MaxCandidates,

		"log.file":  d.Log.File,
		"log.level": d.Log.Level,
	} {
		viper.SetDefault(key, v)
	}
}

// bindFlags binds a command's own flags to config keys. Stage commands
// share keys (delay, threshold), so binding happens when the command
// runs rather than at init.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	if keys, ok := stageFlagKeys[cmd.Name()]; ok {
		if err := bindFlags(cmd, keys); err != nil {
			return types.Config{}, err
		}
	}

	var c types.Config
	if err := viper.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("reading configuration: %w", err)
	}
	c.Metadata.Email = loadedSecrets.Or(secrets.CrossRefEmail, c.Metadata.Email)
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(c.Storage.DataDir, store.DBFile)
	}
	if c.Metadata.CacheDir == "" {
		c.Metadata.CacheDir = filepath.Join(c.Storage.DataDir, "cache", string(c.Metadata.Source))
	}
	return c, nil
}

// stageFlagKeys maps each command's flags to the config keys they
// override.
var stageFlagKeys = map[string]map[string]string{
	"collect": {
		"workers": "metadata.workers",
		"refresh": "metadata.refresh",
		"source":  "metadata.source",
		"email":   "metadata.email",
	},
	"scrape": {
		"delay":     "fetch.crawl_delay",
		"threshold": "match.similarity_threshold",
		"headless":  "fetch.headless",
		"transport": "fetch.transport",
		"robots":    "fetch.respect_robots",
	},
	"download": {
		"delay":     "fetch.crawl_delay",
		"headless":  "fetch.headless",
		"transport": "fetch.transport",
	},
}

// openStore opens the state store named by the resolved configuration.
func openStore() (*store.Store, error) {
	return store.Open(cfg.Storage.DBPath)
}

// openLocked takes the run lock on the data directory and opens the store.
// The returned func closes the store and releases the lock.
func openLocked() (*store.Store, func(), error) {
	lock, err := pipeline.AcquireLock(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore()
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return st, func() {
		st.Close()
		lock.Release()
	}, nil
}
