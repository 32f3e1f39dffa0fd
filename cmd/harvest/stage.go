package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pdiddy/paper-harvest/internal/pipeline"
)

// finishStage turns a stage result into the command's exit status. An
// interrupt is a clean stop: committed work is kept and the next run
// resumes from it.
func finishStage(sum pipeline.Summary, err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted; run again to resume")
		return nil
	}
	if err != nil {
		return err
	}
	if sum.HasFailures() {
		return fmt.Errorf("%d record(s) failed, %d blocked", sum.Failed, sum.Blocked)
	}
	return nil
}
