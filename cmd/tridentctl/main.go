// Command tridentctl is the CLI front-end for the servicing core: it loads a
// Host Configuration document, drives the engine's Install/Update/Commit/
// Rollback operations against the real on-disk datastore and the real
// system-utility adapters, and prints the resulting HostStatus.
package main

import (
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	datastorePath string
	multiboot     bool
	isUKI         bool
	espRoot       string
	logLevel      string
	forceColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "tridentctl",
	Short: "Drive host servicing: install, update, commit, and roll back",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		if forceColor {
			color.NoColor = false
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&datastorePath, "datastore", "d", "/var/lib/trident/datastore.db", "Path to the servicing datastore")
	rootCmd.PersistentFlags().BoolVar(&multiboot, "multiboot", false, "Open the datastore in multiboot mode")
	rootCmd.PersistentFlags().BoolVar(&isUKI, "uki", false, "Treat the running host as a Unified Kernel Image boot")
	rootCmd.PersistentFlags().StringVar(&espRoot, "esp-root", "/boot/efi", "Mount point of the EFI system partition")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&forceColor, "force-color", false, "Force colored output even when stdout isn't a terminal")

	viper.SetEnvPrefix("TRIDENTCTL")
	viper.AutomaticEnv()

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
