package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"discburn/internal/history"
	"discburn/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tool, directory and drive readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Tools", colorize)...)
			for _, st := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				kind := statusOK
				detail := st.Command
				if !st.Available {
					kind = statusError
					if st.Optional {
						kind = statusWarn
					}
					detail = st.Detail
				}
				lines = append(lines, renderStatusLine(st.Name, kind, detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Directories", colorize)...)
			checks := []preflight.Result{
				preflight.CheckDirectoryAccess("Temporary directory", cfg.Paths.TmpDir),
				preflight.CheckFreeSpace("Temporary space", cfg.Paths.TmpDir, preflight.MinTmpSpace),
				preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
				preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
			}
			for _, r := range checks {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					if r.Name == "Temporary space" && cfg.Burn.NoTmpFiles {
						kind = statusWarn
					}
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Drive", colorize)...)
			probe := preflight.ProbeDrive(cmd.Context(), ctx.exec, cfg)
			driveKind := statusOK
			switch {
			case !probe.Found:
				driveKind = statusError
			case probe.Medium == nil:
				driveKind = statusInfo
			}
			lines = append(lines, renderStatusLine("Recorder", driveKind, probe.Detail(), colorize))

			if store, err := ctx.historyStore(cmd.Context()); err == nil {
				if runs, err := store.List(cmd.Context(), history.Filter{Limit: 1}); err == nil && len(runs) > 0 {
					run := runs[0]
					kind := statusOK
					switch run.Result {
					case history.ResultFailed, history.ResultInterrupted:
						kind = statusError
					case history.ResultCancelled, history.ResultRunning:
						kind = statusWarn
					}
					lines = append(lines, renderStatusLine("Last operation", kind, describeRun(run), colorize))
				}
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}
