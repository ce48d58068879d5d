package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"discburn/internal/media"
)

func newDrivesCommand(ctx *commandContext) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List optical drives and the discs they hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			infos, err := media.Discover(cmd.Context(), ctx.exec, cfg.Tools.Lsblk)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No optical drives found")
				return nil
			}

			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				row := []string{info.Device, info.DisplayName(), info.MountPoint, "", "", ""}
				if probe {
					drive, err := ctx.drive(cmd.Context(), info.Device)
					if err == nil {
						row[3], row[4], row[5] = describeMedium(drive.Medium())
					}
				}
				if info.Device == cfg.Drive.Device {
					row[0] += " *"
				}
				rows = append(rows, row)
			}
			fmt.Fprint(out, renderTable(
				[]string{"Device", "Model", "Mounted", "Medium", "Status", "Free"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", true, "Read the medium in each drive")
	return cmd
}

func describeMedium(m *media.Medium) (kind, status, free string) {
	if m == nil {
		return "none", "", ""
	}
	return m.Type, m.Status.String(), humanize.IBytes(uint64(max(m.FreeSpace, 0)))
}
