package main

import (
	"github.com/spf13/cobra"

	"github.com/microsoft/trident/internal/engine"
)

var (
	rollbackStage         bool
	rollbackFinalize      bool
	rollbackExpectRuntime bool
	rollbackExpectAb      bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back to the best available prior Host Status",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := buildEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		exit, err := e.Rollback(cmd.Context(), rollbackExpectRuntime, rollbackExpectAb,
			engine.AllowedOps{Stage: rollbackStage, Finalize: rollbackFinalize})
		if err != nil {
			return err
		}
		hs, statusErr := e.Datastore.HostStatus()
		if statusErr != nil {
			return statusErr
		}
		printStatus(hs, exit)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackStage, "stage", true, "Run the staging half of rollback")
	rollbackCmd.Flags().BoolVar(&rollbackFinalize, "finalize", true, "Run the finalizing half of rollback")
	rollbackCmd.Flags().BoolVar(&rollbackExpectRuntime, "expect-runtime-update", false, "Fail unless the best candidate is a runtime-only update")
	rollbackCmd.Flags().BoolVar(&rollbackExpectAb, "expect-ab-update", false, "Fail unless the best candidate is an A/B update")
}
