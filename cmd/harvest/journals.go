package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/catalog"
)

var journalsCmd = &cobra.Command{
	Use:   "journals",
	Short: "List the journals in the catalog",
	RunE:  runJournals,
}

func init() {
	journalsCmd.Flags().String("field", catalog.FieldAll, "only list journals in this field")
	journalsCmd.Flags().String("catalog", "", "journal catalog YAML file (default: built-in)")

	rootCmd.AddCommand(journalsCmd)
}

func runJournals(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("catalog")
	field, _ := cmd.Flags().GetString("field")

	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}
	journals, err := cat.ByField(field)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(journals))
	for _, j := range journals {
		rows = append(rows, []string{j.ISSN, j.Name, j.Field})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"ISSN", "Journal", "Field"}, rows, nil))
	fmt.Fprintf(out, "%d journals (fields: %s)\n", len(journals), strings.Join(cat.Fields(), ", "))
	return nil
}
