// ABOUTME: Root cobra command for warden
// ABOUTME: Attaches every subcommand and the shared --config flag

package main

import (
	"github.com/spf13/cobra"
)

// rootOptions carries persistent flags shared by subcommands.
type rootOptions struct {
	configPath string
}

// resolveConfigPath prefers --config over the environment defaults.
func (o *rootOptions) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return getConfigPath()
}

// newRootCmd creates the root warden command with all subcommands attached.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "warden",
		Short:         "Minecraft server dashboard with crash recovery",
		Long:          "warden supervises a systemd-managed Minecraft server, restarts it with\nmod-disabling crash recovery, and relays dashboard commands to the in-game agent.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("warden {{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $WARDEN_CONFIG or ~/.config/warden/warden.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newInitCmd(),
		newBootstrapCmd(opts),
		newHealthCmd(opts),
		newRecoverCmd(opts),
		newModsCmd(opts),
	)

	return cmd
}
