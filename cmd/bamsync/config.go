package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ipamtools/bamsync/internal/config"
	"github.com/ipamtools/bamsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write bamsync configuration",
	Long: `Config reads and writes settings. Policy keys (update_mode, safe_mode,
orphan_detection) go to the nearest .bamsync/policy.yaml; everything else to
the global config file. Environment variables (BAMSYNC_*) override both.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.GetValue(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]string{args[0]: value})
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the file that owns it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.SetValue(args[0], args[1])
		if err != nil {
			return err
		}
		ui.Successf("set %s in %s", args[0], path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every effective setting",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.AllSettings()
		if jsonOutput {
			outputJSON(settings)
			return nil
		}
		out, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}
