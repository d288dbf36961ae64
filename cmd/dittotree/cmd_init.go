package main

import (
	"fmt"

	"github.com/marmos91/dittotree/pkg/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a commented default configuration file.

Examples:
  dittotree init                          # Write $XDG_CONFIG_HOME/dittotree/config.yaml
  dittotree init --config ./config.yaml   # Write to a specific path
  dittotree init --force                  # Overwrite an existing file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = config.GetDefaultConfigPath()
			}

			if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration file")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and check the backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				if err := rt.engine.Healthcheck(cmd.Context()); err != nil {
					return fmt.Errorf("tree store unhealthy: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Tree store:  %s (ok)\n", rt.cfg.Store.Type)
				fmt.Fprintf(out, "Audit log:   %s\n", rt.cfg.Audit.Type)
				fmt.Fprintf(out, "Archive:     %s\n", enabled(rt.cfg.Audit.Archive.Enabled))
				fmt.Fprintf(out, "Metrics:     %s\n", enabled(rt.cfg.Metrics.Enabled))
				fmt.Fprintf(out, "Tracing:     %s\n", enabled(rt.cfg.Tracing.Enabled))
				return nil
			})
		},
	}
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
