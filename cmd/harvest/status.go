package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress and failure counts",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the counts as JSON")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	right := []columnAlignment{alignLeft, alignRight}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Records"}, [][]string{
		{"canonical records", itoa(stats.Total)},
		{"attempted", itoa(stats.Attempted)},
		{"resolved", itoa(stats.Resolved)},
		{"with abstract", itoa(stats.WithAbstract)},
		{"downloaded", itoa(stats.Downloaded)},
		{"pending search", itoa(stats.PendingSearch)},
		{"pending download", itoa(stats.PendingDownload)},
		{"pending reprocess", itoa(stats.PendingReprocess)},
		{"log entries", itoa(stats.LogEntries)},
	}, right))

	if len(stats.ByYear) > 0 {
		rows := make([][]string, 0, len(stats.ByYear))
		for _, y := range stats.ByYear {
			rows = append(rows, []string{itoa(y.Year), itoa(y.Total), itoa(y.Resolved), itoa(y.Downloaded)})
		}
		fmt.Fprintln(out, renderTable([]string{"Year", "Records", "Resolved", "Downloaded"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
	}

	if len(stats.Errors) > 0 {
		rows := make([][]string, 0, len(stats.Errors))
		for _, e := range stats.Errors {
			rows = append(rows, []string{e.Class, itoa(e.Count)})
		}
		fmt.Fprintln(out, renderTable([]string{"Error", "Records"}, rows, right))
	}
	return nil
}
