package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to config.yaml",
	Long:  "Renders the merged configuration (defaults, config file, environment) to ./config.yaml as a starting point for local tuning.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat("config.yaml"); err == nil && !initForce {
			return eris.New("config.yaml already exists, use --force to overwrite")
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		if err := os.WriteFile("config.yaml", data, 0o644); err != nil {
			return eris.Wrap(err, "write config.yaml")
		}
		cmd.Println("wrote config.yaml")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}
