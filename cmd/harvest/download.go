package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/internal/pipeline"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download full-text PDFs for resolved records",
	Long: `Download fetches the PDF for every resolved record that has not been
downloaded yet. The link comes from the record, the stored page, the live
page (with --revisit), or is built from the page's abstract id. Files are
written under <data-dir>/artifacts. Failed downloads stay pending.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().Int("limit", 0, "download at most this many artifacts (0 = all)")
	downloadCmd.Flags().Duration("delay", 0, "pause between downloads (default 5s)")
	downloadCmd.Flags().Bool("revisit", false, "reopen the matched page when no link is stored")
	downloadCmd.Flags().Bool("headless", true, "run the browser without a window (with --revisit)")
	downloadCmd.Flags().String("transport", "", "browser or http for --revisit (default browser)")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	revisit, _ := cmd.Flags().GetBool("revisit")

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

	pacer, robots := newPacer(ctx, cfg)

	var fetcher *fetch.Fetcher
	if revisit {
		session, err := newSession(cfg.Fetch)
		if err != nil {
			return err
		}
		defer session.Close()
		fetcher = fetch.NewFetcher(session, cfg.Fetch).WithRobots(robots)
	}

	client := &http.Client{Timeout: cfg.Fetch.PageTimeout}
	downloader := fetch.NewDownloader(client, fetch.RandomIdentity().UserAgent).
		WithPolicy(fetch.RetryPolicy(cfg.Fetch))

	stage := pipeline.NewDownloadStage(st, downloader, fetcher, pages, pacer, pipeline.NewRunID(), cmd.OutOrStdout())
	return finishStage(stage.Run(ctx, limit))
}
