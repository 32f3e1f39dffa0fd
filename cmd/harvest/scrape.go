package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/internal/match"
	"github.com/pdiddy/paper-harvest/internal/pipeline"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Resolve pending records on the secondary source",
	Long: `Scrape searches the secondary source for every canonical record that has
no acquisition record yet, picks the best-matching result by title
similarity, and extracts the abstract and full-text link from the matched
page. Records are processed one at a time with a pause between them.

Interrupting a run discards only the record in flight; committed records
are never revisited. Use reset to retry failures.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().Int("limit", 0, "process at most this many records, most recent year first (0 = all)")
	scrapeCmd.Flags().Duration("delay", 0, "pause between records (default 5s)")
	scrapeCmd.Flags().Float64("threshold", 0, "minimum match score, 0-100 (default 85)")
	scrapeCmd.Flags().Bool("headless", true, "run the browser without a window")
	scrapeCmd.Flags().String("transport", "", "browser or http (default browser)")
	scrapeCmd.Flags().Bool("robots", false, "honor the source's robots.txt rules and Crawl-delay")

	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	st, done, err := openLocked()
	if err != nil {
		return err
	}
	defer done()

	var pages *fetch.PageStore
	if cfg.Fetch.SavePages {
		if pages, err = fetch.NewPageStore(cfg.Storage.DataDir); err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()

	session, err := newSession(cfg.Fetch)
	if err != nil {
		return err
	}
	defer session.Close()

	pacer, robots := newPacer(ctx, cfg)
	fetcher := fetch.NewFetcher(session, cfg.Fetch).WithRobots(robots)
	engine := match.NewEngine(cfg.Match)

	stage := pipeline.NewSearchStage(st, fetcher, engine, pages, pacer, pipeline.NewRunID(), cmd.OutOrStdout())
	return finishStage(stage.Run(ctx, limit))
}
