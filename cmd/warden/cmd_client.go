// ABOUTME: Client subcommands that talk to a running warden server
// ABOUTME: health, recover, and mods call the HTTP API with the saved owner token

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/plugins"
	"github.com/2389/warden/internal/recovery"
)

// apiClient calls the dashboard API of a running server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// apiError is the JSON error envelope returned by the server.
type apiError struct {
	Error string `json:"error"`
}

// newAPIClient resolves the server address from the config at configPath.
// The token is read from the file bootstrap writes; a missing file means
// requests go out unauthenticated.
func newAPIClient(configPath, serverURL string) (*apiClient, error) {
	c := &apiClient{baseURL: strings.TrimRight(serverURL, "/"), http: http.DefaultClient}

	if c.baseURL == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		if cfg.Server.HTTPAddr == "" {
			return nil, errors.New("server.http_addr is not set; pass --server")
		}
		c.baseURL = "http://" + cfg.Server.HTTPAddr
	}

	data, err := os.ReadFile(tokenPath(configPath))
	switch {
	case err == nil:
		c.token = strings.TrimSpace(string(data))
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	return c, nil
}

// do sends a request and decodes the JSON body into out. It returns the
// status code; non-2xx statuses other than those listed in accept become errors.
func (c *apiClient) do(ctx context.Context, method, path string, out any, accept ...int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, code := range accept {
		if resp.StatusCode == code {
			ok = true
		}
	}
	if !ok {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// clientCmd builds a subcommand that needs an apiClient.
func clientCmd(opts *rootOptions, use, short string, run func(cmd *cobra.Command, c *apiClient) error) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(opts.resolveConfigPath(), serverURL)
			if err != nil {
				return err
			}
			return run(cmd, c)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL (default http://<server.http_addr>)")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return clientCmd(opts, "health", "Check server health", func(cmd *cobra.Command, c *apiClient) error {
		var body map[string]any
		if _, err := c.do(cmd.Context(), http.MethodGet, "/health", &body); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "healthy")
		return nil
	})
}

func newRecoverCmd(opts *rootOptions) *cobra.Command {
	return clientCmd(opts, "recover", "Restart the server with crash recovery", func(cmd *cobra.Command, c *apiClient) error {
		var res recovery.Result
		if _, err := c.do(cmd.Context(), http.MethodPost, "/api/server/recover", &res, http.StatusInternalServerError); err != nil {
			return err
		}
		return printRecovery(cmd.OutOrStdout(), &res)
	})
}

func printRecovery(out io.Writer, res *recovery.Result) error {
	gray := color.New(color.FgHiBlack)
	for _, line := range res.Log {
		gray.Fprint(out, "  | ")
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if len(res.Disabled) > 0 {
		color.New(color.FgYellow).Fprintf(out, "  Disabled: %s\n", strings.Join(res.Disabled, ", "))
	}

	if !res.Succeeded {
		color.New(color.FgRed, color.Bold).Fprintf(out, "  ✗ %s (%d attempts)\n", res.Message, res.Attempts)
		return fmt.Errorf("recovery failed: %s", res.Reason)
	}
	color.New(color.FgGreen).Fprintf(out, "  ✓ %s (%d attempts)\n", res.Message, res.Attempts)
	return nil
}

func newModsCmd(opts *rootOptions) *cobra.Command {
	return clientCmd(opts, "mods", "List enabled and disabled mods", func(cmd *cobra.Command, c *apiClient) error {
		var st plugins.Status
		if _, err := c.do(cmd.Context(), http.MethodGet, "/api/mods", &st); err != nil {
			return err
		}
		printMods(cmd.OutOrStdout(), &st)
		return nil
	})
}

func printMods(out io.Writer, st *plugins.Status) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	section := func(title string, mods []plugins.Artifact) {
		cyan.Fprintf(out, "%s (%d)\n", title, len(mods))
		for _, m := range mods {
			fmt.Fprintf(out, "  %s", m.Name)
			gray.Fprintf(out, "  %d bytes  %s\n", m.Size, m.ModTime.Local().Format("2006-01-02 15:04"))
		}
	}

	section("Enabled", st.Enabled)
	fmt.Fprintln(out)
	section("Disabled", st.Disabled)

	if !st.FabricAPIInstalled {
		fmt.Fprintln(out)
		color.New(color.FgYellow).Fprintln(out, "  ! Fabric API is not installed")
	}
}
