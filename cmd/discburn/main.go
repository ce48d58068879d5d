package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"discburn/internal/burnerr"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) && !burnerr.IsCancel(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes a cancelled run from a failed one.
func exitCode(err error) int {
	if burnerr.IsCancel(err) || errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
