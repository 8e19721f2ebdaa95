package main

import (
	"fmt"
	"os"

	"github.com/Jeffail/gabs/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or patch a Host Configuration document without its full schema",
}

var configGetCmd = &cobra.Command{
	Use:   "get <file> <path>",
	Short: "Print the value at a dot-separated path (e.g. storage.disks.0.device)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfigDocument(args[0])
		if err != nil {
			return err
		}
		value := doc.Path(args[1])
		if value == nil {
			return fmt.Errorf("path %q not found", args[1])
		}
		fmt.Println(value.String())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <file> <path> <json-value>",
	Short: "Set the value at a dot-separated path to a raw JSON value and rewrite the file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfigDocument(args[0])
		if err != nil {
			return err
		}
		parsed, err := gabs.ParseJSON([]byte(args[2]))
		if err != nil {
			return fmt.Errorf("parse value as JSON: %w", err)
		}
		if _, err := doc.SetP(parsed.Data(), args[1]); err != nil {
			return fmt.Errorf("set %q: %w", args[1], err)
		}
		return writeConfigDocument(args[0], doc)
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfigDocument reads a Host Configuration YAML file into a gabs
// container for path-based inspection and patching, relying on yaml.v3
// decoding maps as map[string]any rather than yaml.v2's
// map[interface{}]interface{}.
func loadConfigDocument(path string) (*gabs.Container, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse %s as YAML: %w", path, err)
	}
	return gabs.Wrap(data), nil
}

// writeConfigDocument serializes doc back to YAML and overwrites path.
func writeConfigDocument(path string, doc *gabs.Container) error {
	out, err := yaml.Marshal(doc.Data())
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}
