// ABOUTME: The serve subcommand that runs the dashboard gateway
// ABOUTME: Prints the startup banner, configures logging, and blocks until signaled

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/gateway"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts.resolveConfigPath())
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	if cfg.Server.HTTPAddr != "" && !cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Unit:      %s\n", cfg.Service.Unit)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Mods:      %s\n", cfg.Plugins.EnabledDir)

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Fprint(out, " [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}

	if cfg.Auth.JWTSecret == "" {
		yellow.Fprintln(out, "    ! API auth disabled (no auth.jwt_secret)")
	}

	fmt.Fprintln(out)

	logger.Info("starting warden",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"unit", cfg.Service.Unit,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(cmd.Context())
}
