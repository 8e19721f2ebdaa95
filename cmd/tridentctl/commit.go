package main

import "github.com/spf13/cobra"

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Run boot validation and the configured health check against the staged update",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := buildEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		exit, err := e.Commit(cmd.Context())
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
