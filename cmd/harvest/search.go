package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <title|abstract> <query>",
	Short: "Full-text search over stored titles or abstracts",
	Long: `Search ranks stored records against query with the SQLite full-text
index. Search titles to look up canonical records, or abstracts to find
articles by content.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 20, "maximum results")
	searchCmd.Flags().Bool("json", false, "print results as JSON")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	query := strings.Join(args[1:], " ")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	var hits []types.SearchHit
	switch args[0] {
	case "title":
		hits, err = st.SearchTitle(ctx, query, limit)
	case "abstract":
		hits, err = st.SearchAbstract(ctx, query, limit)
	default:
		return fmt.Errorf("unknown search target %q (use title or abstract)", args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		fmt.Fprintln(out, "no matches")
		return nil
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		row := []string{fmt.Sprintf("%.2f", h.Score), itoa(h.Year), h.Identifier, h.Title}
		if h.Snippet != "" {
			row[3] = h.Title + "\n" + h.Snippet
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, renderTable([]string{"Score", "Year", "DOI", "Title"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
	return nil
}
