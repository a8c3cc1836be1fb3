package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/k93s/internal/backend"
	"github.com/jbweber/k93s/internal/lightning"
	"github.com/jbweber/k93s/internal/provision"
)

var (
	kubectlSwitch bool
	kubectlYes    bool
)

var kubernetesCmd = &cobra.Command{
	Use:   "kubernetes",
	Short: "Make sure the VMs are up and install Kubernetes with Ansible",
	Long: `Spin up the cluster VMs, read the inventory of what is running and run
the Kubernetes playbook against it.

The playbooks directory is copied into the working directory for the run
and removed afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := a.begin()
		if err != nil {
			return err
		}
		defer s.finish()

		// new hosts may have been created, so the inventory is read after spinup
		outcomes, err := s.run(ctx, backend.ActionSpinup, backend.ActionInventory)
		if err != nil {
			return err
		}
		if err := checkReport(a.log, outcomes[0].Report, strict); err != nil {
			return err
		}

		ansible := provision.NewAnsible(a.settings.PlaybooksDir, a.log)
		if err := ansible.Run(ctx, s.workDir, outcomes[1].Inventory, s.cfg); err != nil {
			return err
		}

		fmt.Println("✓ Kubernetes provisioned; run k93s kubectl to fetch the kubeconfig")
		return nil
	},
}

var kubectlCmd = &cobra.Command{
	Use:   "kubectl",
	Short: "Configure kubectl for the cluster",
	Long: `Fetch the kubeconfig from the first master, point it at the master's
address and save it in the working directory.

With --switch (or after confirmation) the current ~/.kube/config is backed
up as ~/.kube/config-old.k93s.<timestamp> and replaced.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := a.begin()
		if err != nil {
			return err
		}
		defer s.finish()

		outcomes, err := s.run(ctx, backend.ActionInventory)
		if err != nil {
			return err
		}

		kc, err := provision.NewKubeconfig(s.cfg.BackendConfig[lightning.KeySSHKeyFile], a.log)
		if err != nil {
			return err
		}
		path, err := kc.Fetch(ctx, s.workDir, outcomes[0].Inventory)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Kubeconfig saved to %s\n", path)

		doSwitch := kubectlSwitch
		if !doSwitch && !kubectlYes {
			doSwitch, err = a.prompt.Confirm(ctx, "Rewrite ~/.kube/config?")
			if err != nil {
				return err
			}
		}
		if !doSwitch {
			if a.settings.RemoveWorkDir && s.temp {
				a.log.Warn().Msg("the working directory is removed on exit; use --switch to keep the kubeconfig")
			}
			return nil
		}

		backup, err := kc.Switch(path)
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Printf("✓ Previous kubeconfig saved as %s\n", backup)
		}
		fmt.Println("✓ ~/.kube/config now points at the cluster")
		return nil
	},
}

func init() {
	kubectlCmd.Flags().BoolVar(&kubectlSwitch, "switch", false, "replace ~/.kube/config without asking")
	kubectlCmd.Flags().BoolVarP(&kubectlYes, "yes", "y", false, "do not ask; keep ~/.kube/config unless --switch is given")
}
