package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/survey"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create a new cluster config file",
	Long: `Create a new cluster config file at the configured location by
answering a short survey. The chosen backend offers its defaults for every
setting.

An existing file is only replaced after confirmation (or with --force).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, err := a.configPath()
		if err != nil {
			return err
		}

		if config.Exists(path) && !configForce {
			ok, err := a.prompt.Confirm(ctx, fmt.Sprintf("A config file at %s already exists. Do you want to re-create it?", path))
			if err != nil {
				return err
			}
			if !ok {
				return &exitError{code: exitDeclined, err: fmt.Errorf("kept existing config %s", path)}
			}
		}

		reg, err := a.registry()
		if err != nil {
			return err
		}
		s := &survey.Survey{Registry: reg, Accessible: a.prompt.Accessible}
		cfg, err := s.Run(ctx)
		if err != nil {
			return err
		}

		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Config written to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configForce, "force", false, "replace an existing config without asking")
}
