package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/catalog"
	"github.com/pdiddy/paper-harvest/internal/metadata"
	"github.com/pdiddy/paper-harvest/internal/pipeline"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect canonical article metadata for catalog journals",
	Long: `Collect queries the metadata source for every (journal, year) pair in
range, filters out front matter and other non-articles, and stores the
remaining works as canonical records keyed by DOI. Pairs that already have
records are skipped unless --refresh is given. API responses are cached per
pair, so a re-run costs no network calls.`,
	RunE: runCollect,
}

func init() {
	thisYear := time.Now().Year()

	collectCmd.Flags().String("field", catalog.FieldAll, "only collect journals in this field")
	collectCmd.Flags().StringSlice("journal", nil, "only collect these ISSNs (repeatable)")
	collectCmd.Flags().Int("from", thisYear-1, "first publication year")
	collectCmd.Flags().Int("to", thisYear, "last publication year")
	collectCmd.Flags().Int("workers", 0, "parallel (journal, year) fetches (default 3)")
	collectCmd.Flags().Bool("refresh", false, "re-fetch pairs that already have records")
	collectCmd.Flags().String("source", "", "metadata source: crossref or openalex (default crossref)")
	collectCmd.Flags().String("email", "", "contact email for the polite pool (default: .secrets/crossref-email)")
	collectCmd.Flags().String("catalog", "", "journal catalog YAML file (default: built-in)")

	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	catalogPath, _ := cmd.Flags().GetString("catalog")
	field, _ := cmd.Flags().GetString("field")
	issns, _ := cmd.Flags().GetStringSlice("journal")
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")

	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return err
	}
	journals, err := selectJournals(cat, field, issns)
	if err != nil {
		return err
	}
	years, err := catalog.Years(from, to)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Metadata.Timeout}
	var source metadata.Source
	switch cfg.Metadata.Source {
	case types.SourceCrossRef, "":
		source = metadata.NewCrossRefSource(client, cfg.Metadata)
	case types.SourceOpenAlex:
		source = metadata.NewOpenAlexSource(client, cfg.Metadata)
	default:
		return fmt.Errorf("unknown metadata source %q (known: crossref, openalex)", cfg.Metadata.Source)
	}

	cache, err := metadata.NewCache(cfg.Metadata.CacheDir)
	if err != nil {
		return err
	}

	st, done, err := openLocked()
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signalContext()
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "collecting %d journals x %d years from %s\n", len(journals), len(years), source.Name())
	fetcher := newMetadataFetcher(source, cache, st)
	collector := metadata.NewCollector(st, fetcher, cfg.Metadata, cmd.OutOrStdout())
	res, err := collector.Run(ctx, journals, years)
	if res.Stored() > 0 {
		rows := make([][]string, 0, len(res.Counts))
		for _, name := range res.Journals() {
			rows = append(rows, []string{name, itoa(res.Counts[name])})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Journal", "Stored"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	return err
}

// selectJournals narrows the catalog by explicit ISSNs or by field.
func selectJournals(cat *catalog.Catalog, field string, issns []string) ([]types.Journal, error) {
	if len(issns) == 0 {
		return cat.ByField(field)
	}
	out := make([]types.Journal, 0, len(issns))
	for _, issn := range issns {
		j, ok := cat.ByISSN(issn)
		if !ok {
			return nil, fmt.Errorf("journal %s is not in the catalog", issn)
		}
		out = append(out, j)
	}
	return out, nil
}

// newMetadataFetcher returns a fetcher whose audit entries carry a fresh
// run ID, like the other stages.
func newMetadataFetcher(source metadata.Source, cache *metadata.Cache, log metadata.AttemptLogger) *metadata.Fetcher {
	return metadata.NewFetcher(source, cache, log, cfg.Metadata).WithRunID(pipeline.NewRunID())
}
