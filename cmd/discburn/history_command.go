package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"discburn/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past operations",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var kind, result string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := store.List(cmd.Context(), history.Filter{Kind: kind, Result: history.Result(result), Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runsJSON(runs))
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "History is empty")
				return nil
			}
			fmt.Fprint(out, renderTable(
				[]string{"ID", "Kind", "Target", "Started", "Duration", "Result", "Written"},
				buildHistoryRows(runs),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only show record, blank or check operations")
	cmd.Flags().StringVar(&result, "result", "", "Only show succeeded, failed, cancelled or interrupted operations")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of operations (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("no operation with id %s", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", run.ID)
			fmt.Fprintf(out, "Kind:     %s\n", run.Kind)
			fmt.Fprintf(out, "Target:   %s\n", run.Target)
			fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC1123))
			fmt.Fprintf(out, "Duration: %s\n", run.Duration().Round(time.Second))
			fmt.Fprintf(out, "Result:   %s\n", run.Result)
			fmt.Fprintf(out, "Written:  %s\n", humanize.IBytes(uint64(max(run.BytesWritten, 0))))
			if run.ErrorKind != "" {
				fmt.Fprintf(out, "Error:    %s: %s\n", run.ErrorKind, run.ErrorMessage)
			}
			if run.LogPath != "" {
				fmt.Fprintf(out, "Log:      %s\n", run.LogPath)
			}
			return nil
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove finished operations older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			n, err := store.Prune(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d operations\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Keep operations newer than this many days")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.historyStore(cmd.Context())
			if err != nil {
				return err
			}
			n, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d operations\n", n)
			return nil
		},
	}
}

func buildHistoryRows(runs []*history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			run.Kind,
			run.Target,
			humanize.Time(run.StartedAt),
			run.Duration().Round(time.Second).String(),
			describeResult(run),
			humanize.IBytes(uint64(max(run.BytesWritten, 0))),
		})
	}
	return rows
}

func describeResult(run *history.Run) string {
	if run.Result == history.ResultFailed && run.ErrorKind != "" {
		return string(run.Result) + " (" + run.ErrorKind + ")"
	}
	return string(run.Result)
}

func describeRun(run *history.Run) string {
	return fmt.Sprintf("%s %s %s, %s", run.Kind, run.Target, describeResult(run), humanize.Time(run.StartedAt))
}

type runJSON struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Target       string `json:"target,omitempty"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	Result       string `json:"result"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	BytesWritten int64  `json:"bytes_written"`
	LogPath      string `json:"log_path,omitempty"`
}

func runsJSON(runs []*history.Run) []runJSON {
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		item := runJSON{
			ID:           run.ID,
			Kind:         run.Kind,
			Target:       run.Target,
			StartedAt:    run.StartedAt.Format(time.RFC3339),
			Result:       string(run.Result),
			ErrorKind:    run.ErrorKind,
			ErrorMessage: run.ErrorMessage,
			BytesWritten: run.BytesWritten,
			LogPath:      run.LogPath,
		}
		if run.FinishedAt != nil {
			item.FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return out
}
