package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marcus/arcsync/internal/config"
	"github.com/marcus/arcsync/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Show or initialize the configuration",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.DeviceAPI.Token != "" {
			shown.DeviceAPI.Token = "********"
		}
		if shown.PushAPI.Token != "" {
			shown.PushAPI.Token = "********"
		}
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath(cmd)

		if _, err := os.Stat(path); err == nil && !force {
			err := fmt.Errorf("%s already exists", path)
			output.Error("%v (use --force to overwrite)", err)
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Wrote %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
