package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-harvest/internal/store"
)

// defaultResetPatterns are the failure classes retried by default. Records
// that simply scored below the threshold are left alone unless asked.
var defaultResetPatterns = []string{
	store.ClassSearchFailed,
	store.ClassOpenFailed,
	store.ClassNoResults,
	store.ClassBlocked,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return failed records to the search queue",
	Long: `Reset deletes acquisition records whose error matches one of the given
classes so the next scrape run searches them again. The attempt log is kept.
Records published before --year-cutoff are not touched.

Without --yes, reset lists how many records match and asks for confirmation.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringSlice("pattern", nil, "error class to reset, case-insensitive substring (repeatable; default: search, open, no results, blocked)")
	resetCmd.Flags().Bool("include-low-match", false, "also reset records that scored below the match threshold")
	resetCmd.Flags().Int("year-cutoff", 2000, "only reset records published in or after this year")
	resetCmd.Flags().Bool("dry-run", false, "list matching records without resetting them")
	resetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	patterns, _ := cmd.Flags().GetStringSlice("pattern")
	lowMatch, _ := cmd.Flags().GetBool("include-low-match")
	cutoff, _ := cmd.Flags().GetInt("year-cutoff")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	yes, _ := cmd.Flags().GetBool("yes")

	if len(patterns) == 0 {
		patterns = append(patterns, defaultResetPatterns...)
	}
	if lowMatch {
		patterns = append(patterns, store.ClassBelowThreshold)
	}
	filter := store.FailureFilter{Patterns: patterns, YearCutoff: cutoff}

	st, done, err := openLocked()
	if err != nil {
		return err
	}
	defer done()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	filter.DryRun = true
	ids, err := st.ResetFailures(ctx, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records match %s (year >= %d)\n", len(ids), strings.Join(patterns, ", "), cutoff)
	if len(ids) == 0 {
		return nil
	}
	if dryRun {
		for _, id := range ids {
			fmt.Fprintln(out, "  ", id)
		}
		return nil
	}
	if !yes && !isTerminal(cmd.InOrStdin()) {
		return fmt.Errorf("refusing to reset %d records without confirmation; pass --yes", len(ids))
	}
	if !yes && !confirm(cmd, "Reset these records? Type 'yes' to continue: ") {
		fmt.Fprintln(out, "aborted")
		return nil
	}

	filter.DryRun = false
	ids, err = st.ResetFailures(ctx, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "reset %d records; they will be searched on the next scrape run\n", len(ids))
	return nil
}

// confirm asks prompt on the command's output and reads the answer from
// its input.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

func isTerminal(r io.Reader) bool {
	file, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
