package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// configFile is the config written by init.
const configFile = "harvest.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and a default harvest.yaml",
	Long: `Init creates the data directory layout (cache, pages, artifacts) and
writes harvest.yaml with every setting at its default. An existing config
file is left alone unless --force is given.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite an existing harvest.yaml")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	out := cmd.OutOrStdout()

	dirs := []string{
		filepath.Join(cfg.Storage.DataDir, "cache", string(types.SourceCrossRef)),
		filepath.Join(cfg.Storage.DataDir, "cache", string(types.SourceOpenAlex)),
		filepath.Join(cfg.Storage.DataDir, fetch.PagesDir),
		filepath.Join(cfg.Storage.DataDir, fetch.ArtifactsDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Fprintln(out, "  ", dir)
	}

	if _, err := os.Stat(configFile); err == nil && !force {
		fmt.Fprintf(out, "%s exists, leaving it alone\n", configFile)
		return nil
	}

	def := types.DefaultConfig()
	def.Storage.DataDir = cfg.Storage.DataDir
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", configFile, err)
	}
	fmt.Fprintf(out, "Wrote %s\n", configFile)
	return nil
}
