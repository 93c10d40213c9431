// ABOUTME: The init subcommand that writes a config file interactively
// ABOUTME: Prompts for each setting with a sensible default

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/warden/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	ask := func(question, defaultVal string) string {
		return prompt(reader, out, question, defaultVal)
	}

	fmt.Fprintln(out, "warden configuration setup")
	fmt.Fprintln(out, "==========================")
	fmt.Fprintln(out)

	defaultDBPath := filepath.Join(getDataPath(), "warden.db")

	outputFile := ask("Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(ask("File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	httpAddr := ask("HTTP address", config.DefaultHTTPAddr)

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	dbPath := ask("SQLite database path", defaultDBPath)

	fmt.Fprintln(out, "\n--- API Authentication ---")
	var jwtSecret string
	if isYes(ask("Require tokens for the API (generates a JWT secret)?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		jwtSecret = secret
	}

	fmt.Fprintln(out, "\n--- Minecraft Server ---")
	unit := ask("systemd unit", config.DefaultServiceUnit)
	minecraftDir := ask("Server directory", config.DefaultMinecraftDir)
	owner := ask("Mod file owner (empty to skip chown)", "")

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(ask("Enable Tailscale?", "no"))

	var tsHostname, tsAuthKey string
	var tsEphemeral, tsHTTPS bool
	if tailscaleEnabled {
		tsHostname = ask("Tailscale hostname", "warden")
		tsAuthKey = ask("Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = isYes(ask("Ephemeral node?", "no"))
		tsHTTPS = isYes(ask("Serve HTTPS with tailnet certificates?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	logLevel := ask("Log level (debug/info/warn/error)", "info")
	logFormat := ask("Log format (text/json)", "text")

	fmt.Fprintln(out, "\n--- Metrics ---")
	metricsEnabled := isYes(ask("Enable Prometheus metrics?", "no"))

	var cfg strings.Builder
	cfg.WriteString("# warden configuration\n")
	cfg.WriteString("# Generated by warden init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: \"%s\"\n\n", httpAddr)

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: \"%s\"\n\n", dbPath)

	if jwtSecret != "" {
		cfg.WriteString("auth:\n")
		fmt.Fprintf(&cfg, "  jwt_secret: \"%s\"\n\n", jwtSecret)
	}

	cfg.WriteString("service:\n")
	fmt.Fprintf(&cfg, "  unit: \"%s\"\n\n", unit)

	cfg.WriteString("plugins:\n")
	fmt.Fprintf(&cfg, "  minecraft_dir: \"%s\"\n", minecraftDir)
	if owner != "" {
		fmt.Fprintf(&cfg, "  owner: \"%s\"\n", owner)
	}
	cfg.WriteString("  watch: true\n\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: \"%s\"\n", tsHostname)
		if tsAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: \"%s\"\n", tsAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", tsEphemeral)
		fmt.Fprintf(&cfg, "  https: %t\n", tsHTTPS)
	}
	cfg.WriteString("\n")

	cfg.WriteString("recovery:\n")
	fmt.Fprintf(&cfg, "  max_attempts: %d\n", config.DefaultMaxAttempts)
	fmt.Fprintf(&cfg, "  stability_window: \"%s\"\n\n", config.DefaultStabilityWindow)

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: \"%s\"\n", logLevel)
	fmt.Fprintf(&cfg, "  format: \"%s\"\n\n", logFormat)

	cfg.WriteString("metrics:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", metricsEnabled)
	fmt.Fprintf(&cfg, "  path: \"%s\"\n", config.DefaultMetricsPath)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Data directory: %s\n", dataDir)
	fmt.Fprintln(out, "\nNext steps:")
	if jwtSecret != "" {
		fmt.Fprintln(out, "  warden bootstrap --name \"Your Name\"   # create the owner token")
	}
	fmt.Fprintln(out, "  warden serve")

	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// EOF falls back to the default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
