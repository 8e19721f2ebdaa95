package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/engine"
)

var (
	updateStage    bool
	updateFinalize bool
	updateFile     string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Stage and/or finalize an A/B update from a Host Configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(updateFile)
		if err != nil {
			return fmt.Errorf("read host configuration %s: %w", updateFile, err)
		}
		hc, err := config.LoadYAML(data)
		if err != nil {
			return fmt.Errorf("parse host configuration: %w", err)
		}

		e, closeFn, err := buildEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		exit, err := e.Update(cmd.Context(), hc, engine.AllowedOps{Stage: updateStage, Finalize: updateFinalize})
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
	updateCmd.Flags().StringVarP(&updateFile, "file", "f", "", "Path to the Host Configuration YAML document")
	updateCmd.Flags().BoolVar(&updateStage, "stage", true, "Run the staging half of update")
	updateCmd.Flags().BoolVar(&updateFinalize, "finalize", true, "Run the finalizing half of update")
	updateCmd.MarkFlagRequired("file")
}
