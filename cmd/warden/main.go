// ABOUTME: Entry point for the warden server dashboard
// ABOUTME: Resolves config and data paths and runs the cobra command tree

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                        _
 __      ____ _ _ __ __| | ___ _ __
 \ \ /\ / / _' | '__/ _' |/ _ \ '_ \
  \ V  V / (_| | | | (_| |  __/ | | |
   \_/\_/ \__,_|_|  \__,_|\___|_| |_|
`

// getConfigPath returns the path to the warden config file.
// Priority: WARDEN_CONFIG env var > XDG_CONFIG_HOME/warden/warden.yaml > ~/.config/warden/warden.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WARDEN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "warden.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "warden", "warden.yaml")
}

// getDataPath returns the path to the warden data directory.
// Priority: XDG_DATA_HOME/warden > ~/.local/share/warden
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "warden")
}

// tokenPath is where bootstrap saves the owner token for the client commands.
func tokenPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "token")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
