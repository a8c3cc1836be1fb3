package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jbweber/k93s/internal/config"
	"github.com/jbweber/k93s/internal/logging"
)

var (
	settingsViper = viper.New()
	// a is set up before any subcommand runs.
	a *app
)

var rootCmd = &cobra.Command{
	Use:   "k93s",
	Short: "k93s - k3s lab clusters on libvirt",
	Long: `k93s spins up a small Kubernetes lab cluster out of libvirt virtual
machines, hands the machine inventory to Ansible to install Kubernetes,
and installs the resulting kubeconfig locally.

Settings can also be given as K93S_<SETTING> environment variables,
e.g. K93S_CONFIG or K93S_LOG_LEVEL.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings(settingsViper)
		if err != nil {
			return err
		}
		log := logging.New(os.Stderr, logging.Options{Level: s.LogLevel})
		a = newApp(s, log)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config-file", "f", config.DefaultConfigFile, "cluster config file")
	flags.String("workdir", "", "working directory (default: a fresh temporary directory)")
	flags.Bool("remove-workdir", false, "remove the working directory contents when done")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.Duration("settle-delay", time.Second, "wait after dispatching per-VM actions")
	flags.Int("concurrency", 0, "maximum concurrent per-VM actions (0 = unbounded)")
	flags.String("playbooks-dir", "ansible", "directory holding the Kubernetes playbooks")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	flags.String("image-base-url", config.DefaultImageBaseURL, "where missing distro images are fetched from")

	bindings := map[string]string{
		config.SettingConfig:        "config-file",
		config.SettingWorkDir:       "workdir",
		config.SettingRemoveWorkDir: "remove-workdir",
		config.SettingLogLevel:      "log-level",
		config.SettingSettleDelay:   "settle-delay",
		config.SettingConcurrency:   "concurrency",
		config.SettingPlaybooksDir:  "playbooks-dir",
		config.SettingMetricsFile:   "metrics-file",
		config.SettingImageBaseURL:  "image-base-url",
	}
	for key, flag := range bindings {
		if err := settingsViper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(spinupCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(kubernetesCmd)
	rootCmd.AddCommand(kubectlCmd)
	rootCmd.AddCommand(imageCmd)
}
