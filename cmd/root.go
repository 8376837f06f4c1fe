// Package cmd wires syncvirtd's command-line surface: cobra for the CLI
// shape, viper for layered configuration (flags > SYNCVIRT_* env > config
// file > defaults), following the same pattern the teacher's own
// cmd/root.go established for its cobra+viper entrypoint.
package cmd

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/projecteru2/syncvirtd/config"
)

var (
	cfgFile string
	conf    *config.Config
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncvirtd",
		Short: "syncvirtd - libvirt/systemd bidirectional reconciliation daemon",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(commandContext(cmd))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.PersistentFlags().String("template-prefix", "", "systemd template unit prefix")
	cmd.PersistentFlags().String("libvirt-uri", "", "hypervisor connection URI")
	cmd.PersistentFlags().String("run-dir", "", "runtime directory for the singleton-instance lock")
	cmd.PersistentFlags().String("health-addr", "", "address the /healthz probe listens on")

	_ = viper.BindPFlag("template_prefix", cmd.PersistentFlags().Lookup("template-prefix"))
	_ = viper.BindPFlag("libvirt_uri", cmd.PersistentFlags().Lookup("libvirt-uri"))
	_ = viper.BindPFlag("run_dir", cmd.PersistentFlags().Lookup("run-dir"))
	_ = viper.BindPFlag("health_addr", cmd.PersistentFlags().Lookup("health-addr"))

	viper.SetEnvPrefix("SYNCVIRT")
	viper.AutomaticEnv()

	cmd.AddCommand(runCmd)
	cmd.AddCommand(versionCmd)

	return cmd
}()

func initConfig(ctx context.Context) error {
	conf = config.DefaultConfig()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	_ = viper.ReadInConfig() // optional; a missing file is fine, defaults + flags + env still apply

	if err := viper.Unmarshal(conf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	conf.ApplyDefaults()

	return log.SetupLog(ctx, &conf.Log, "")
}

// commandContext returns cmd's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// Execute is the main entry point called from main.go.
func Execute() error {
	ctx, cancel := newCommandContext()
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}
