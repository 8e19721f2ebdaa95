package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/trident/internal/config"
	"github.com/microsoft/trident/internal/engine"
)

var (
	installStage    bool
	installFinalize bool
	installFile     string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Stage and/or finalize a clean install from a Host Configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(installFile)
		if err != nil {
			return fmt.Errorf("read host configuration %s: %w", installFile, err)
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

		exit, err := e.Install(cmd.Context(), hc, engine.AllowedOps{Stage: installStage, Finalize: installFinalize}, multiboot)
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
	installCmd.Flags().StringVarP(&installFile, "file", "f", "", "Path to the Host Configuration YAML document")
	installCmd.Flags().BoolVar(&installStage, "stage", true, "Run the staging half of install")
	installCmd.Flags().BoolVar(&installFinalize, "finalize", true, "Run the finalizing half of install")
	installCmd.MarkFlagRequired("file")
}
