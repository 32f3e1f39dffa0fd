package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/internal/pipeline"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-extract abstracts from stored pages",
	Long: `Reprocess runs the extraction cascade again over pages saved by earlier
scrape runs for records that still have no abstract. It makes no network
calls, so it is the way to pick up improvements to the extractors.`,
	RunE: runReprocess,
}

func init() {
	reprocessCmd.Flags().Int("limit", 0, "reprocess at most this many pages (0 = all)")

	rootCmd.AddCommand(reprocessCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	st, done, err := openLocked()
	if err != nil {
		return err
	}
	defer done()

	pages, err := fetch.NewPageStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	stage := pipeline.NewReprocessStage(st, pages, pipeline.NewRunID(), cmd.OutOrStdout())
	return finishStage(stage.Run(ctx, limit))
}
