package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(app.cfg)
		if err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "encoding config")
		}
		for _, p := range app.manager.GetPaths() {
			fmt.Fprintf(cmd.OutOrStdout(), "# loaded %s\n", p)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to ~/.rpaflow/config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := app.manager.Save()
		if err != nil {
			return err
		}
		printer().Done("Config written to " + path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
