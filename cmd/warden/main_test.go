// ABOUTME: Tests for the warden command tree and path resolution
// ABOUTME: Runs the root command in-process with captured output

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and stdin, returning stdout and the error.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	noColor(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// noColor disables escape codes for the duration of the test.
func noColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

// isolateHome points every config and data lookup at temp dirs.
func isolateHome(t *testing.T) (configHome, dataHome string) {
	t.Helper()
	configHome = t.TempDir()
	dataHome = t.TempDir()
	t.Setenv("WARDEN_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_DATA_HOME", dataHome)
	return configHome, dataHome
}

func TestGetConfigPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("WARDEN_CONFIG", "/etc/warden/custom.yaml")
		assert.Equal(t, "/etc/warden/custom.yaml", getConfigPath())
	})

	t.Run("xdg config home", func(t *testing.T) {
		configHome, _ := isolateHome(t)
		assert.Equal(t, filepath.Join(configHome, "warden", "warden.yaml"), getConfigPath())
	})

	t.Run("home fallback", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("WARDEN_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", home)
		assert.Equal(t, filepath.Join(home, ".config", "warden", "warden.yaml"), getConfigPath())
	})
}

func TestGetDataPath(t *testing.T) {
	_, dataHome := isolateHome(t)
	assert.Equal(t, filepath.Join(dataHome, "warden"), getDataPath())

	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".local", "share", "warden"), getDataPath())
}

func TestTokenPath(t *testing.T) {
	assert.Equal(t, "/etc/warden/token", tokenPath("/etc/warden/warden.yaml"))
}

func TestRootHelpListsCommands(t *testing.T) {
	out, err := executeCommand(t, "", "--help")
	require.NoError(t, err)
	for _, name := range []string{"serve", "init", "bootstrap", "health", "recover", "mods"} {
		assert.Contains(t, out, name)
	}
}

func TestRootVersion(t *testing.T) {
	out, err := executeCommand(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "warden dev\n", out)
}

func TestResolveConfigPath_FlagWins(t *testing.T) {
	t.Setenv("WARDEN_CONFIG", "/from/env.yaml")

	opts := &rootOptions{}
	assert.Equal(t, "/from/env.yaml", opts.resolveConfigPath())

	opts.configPath = "/from/flag.yaml"
	assert.Equal(t, "/from/flag.yaml", opts.resolveConfigPath())
}

func TestServe_MissingConfig(t *testing.T) {
	isolateHome(t)

	_, err := executeCommand(t, "", "serve", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
