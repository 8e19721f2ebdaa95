package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/microsoft/trident/internal/rollback"
)

var getHistory bool

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current Host Status, or the full servicing history",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := buildEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		if !getHistory {
			hs, err := e.Datastore.HostStatus()
			if err != nil {
				return err
			}
			printStatus(hs, "")
			return nil
		}

		all, err := e.Datastore.GetHostStatuses()
		if err != nil {
			return err
		}
		fmt.Printf("%s %d record(s)\n", color.CyanString("servicing history:"), len(all))
		for i, hs := range all {
			fmt.Printf("  [%d] %-28s type=%-12s volume=%s\n", i, stateColor(hs.ServicingState), hs.ServicingType, hs.AbActiveVolume)
		}

		if ctx, err := rollback.NewContext(all); err == nil {
			if idx, volume, ok := ctx.GetFirstRollback(); ok {
				reboot := ""
				if ctx.RequiresReboot() {
					reboot = " (requires reboot)"
				}
				fmt.Printf("%s record [%d], volume %s%s\n", color.YellowString("best rollback candidate:"), idx, volume, reboot)
			}
		}
		return nil
	},
}

func init() {
	getCmd.Flags().BoolVar(&getHistory, "history", false, "Print the full append-only servicing history instead of the current status")
}
