package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/logging"
	"github.com/jbweber/k93s/internal/output"
)

var (
	strict       bool
	teardownYes  bool
	planFormat   string
	planNoHeader bool
)

var spinupCmd = &cobra.Command{
	Use:   "spinup",
	Short: "Create the cluster VMs without provisioning them",
	Long: `Create and start every VM of the cluster. VMs that already exist are
only started. Missing distro images are fetched first.

Failures of individual VMs are reported but do not fail the command
unless --strict is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFleetAction(cmd, backend.ActionSpinup)
	},
}

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Remove the cluster VMs",
	Long: `Shut down, undefine and delete the storage of every VM of the cluster.

Asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !teardownYes {
			ok, err := a.prompt.Confirm(cmd.Context(),
				fmt.Sprintf("Do you really want to tear down the k93s cluster set up with config %s?", a.settings.ConfigFile))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Teardown cancelled")
				return nil
			}
		}
		return runFleetAction(cmd, backend.ActionTeardown)
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Print the Ansible inventory of the running cluster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := a.begin()
		if err != nil {
			return err
		}
		defer s.finish()

		outcomes, err := s.run(cmd.Context(), backend.ActionInventory)
		if err != nil {
			return err
		}
		fmt.Print(outcomes[0].Inventory)
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the VMs the config describes",
	Long: `Compute the cluster's VMs (names, roles, addresses, resources) from the
config without touching libvirt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(planFormat); err != nil {
			return err
		}
		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(planFormat),
			NoHeaders: planNoHeader,
			Styled:    logging.IsTerminal(os.Stdout),
		})
		if err != nil {
			return err
		}

		s, err := a.begin()
		if err != nil {
			return err
		}
		defer s.finish()

		outcomes, err := s.run(cmd.Context())
		if err != nil {
			return err
		}

		text, err := formatter.FormatFleet(outcomes[0].Fleet)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{spinupCmd, teardownCmd, kubernetesCmd} {
		cmd.Flags().BoolVar(&strict, "strict", false, "exit with code 3 when any VM fails")
	}
	teardownCmd.Flags().BoolVarP(&teardownYes, "yes", "y", false, "do not ask for confirmation")
	planCmd.Flags().StringVarP(&planFormat, "output", "o", "table", "output format (table, yaml, json)")
	planCmd.Flags().BoolVar(&planNoHeader, "no-headers", false, "omit the table header")
}

func runFleetAction(cmd *cobra.Command, action backend.Action) error {
	s, err := a.begin()
	if err != nil {
		return err
	}
	defer s.finish()

	outcomes, err := s.run(cmd.Context(), action)
	if err != nil {
		return err
	}

	report := outcomes[0].Report
	if err := checkReport(a.log, report, strict); err != nil {
		return err
	}
	fmt.Printf("✓ %s finished: %d VM(s) ok, %d failed\n", action, report.Succeeded(), len(report.Failed()))
	return nil
}
