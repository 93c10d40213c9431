// ABOUTME: The bootstrap subcommand for first-time setup
// ABOUTME: Writes a config with a random JWT secret, creates the owner principal, and saves its token

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/warden/internal/admin"
	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/store"
)

const maxDisplayNameLength = 100

// generateSecret returns a random base64 JWT secret.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "bootstrap --name NAME",
		Short: "Create the config, database, owner principal, and token",
		Long: "bootstrap performs first-time setup:\n" +
			"  1. creates the config file with a random JWT secret (if missing)\n" +
			"  2. creates the database and the owner principal\n" +
			"  3. saves a 30 day owner token next to the config file",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), cmd.OutOrStdout(), opts.resolveConfigPath(), getDataPath(), name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "display name for the owner principal")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func validateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("display name cannot be empty or whitespace only")
	}
	if len(name) > maxDisplayNameLength {
		return "", fmt.Errorf("display name exceeds maximum length of %d characters", maxDisplayNameLength)
	}
	return name, nil
}

// bootstrapConfig renders the initial config file.
func bootstrapConfig(dbPath, jwtSecret string) string {
	return fmt.Sprintf(`# warden configuration
# Generated by warden bootstrap

server:
  http_addr: "%s"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

service:
  unit: "%s"

plugins:
  minecraft_dir: "%s"

logging:
  level: "info"
  format: "text"
`, config.DefaultHTTPAddr, dbPath, jwtSecret, config.DefaultServiceUnit, config.DefaultMinecraftDir)
}

// loadOrCreateConfig returns the config at configPath, writing a fresh one
// with a random secret when none exists.
func loadOrCreateConfig(out io.Writer, configPath, dataPath string) (*config.Config, error) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		jwtSecret, err := generateSecret()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}

		content := bootstrapConfig(filepath.Join(dataPath, "warden.db"), jwtSecret)
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("writing config file: %w", err)
		}
		green.Fprintf(out, "  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Fprintf(out, "  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret not configured in %s (required for bootstrap)", configPath)
	}
	return cfg, nil
}

func runBootstrap(ctx context.Context, out io.Writer, configPath, dataPath, name string) error {
	displayName, err := validateDisplayName(name)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cfg, err := loadOrCreateConfig(out, configPath, dataPath)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Fprintf(out, "  ✓ Database: %s\n", cfg.Database.Path)

	count, err := s.CountPrincipals(ctx, store.PrincipalFilter{})
	if err != nil {
		return fmt.Errorf("checking principals: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d principal(s) exist", count)
	}

	principalID := uuid.New().String()
	principal := &store.Principal{
		ID:          principalID,
		Type:        store.PrincipalTypeOperator,
		DisplayName: displayName,
		Status:      store.PrincipalStatusApproved,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreatePrincipal(ctx, principal); err != nil {
		return fmt.Errorf("creating principal: %w", err)
	}

	// Leave nothing half-bootstrapped if the role cannot be granted.
	if err := s.AddRole(ctx, store.RoleSubjectPrincipal, principalID, store.RoleOwner); err != nil {
		_ = s.DeletePrincipal(ctx, principalID)
		return fmt.Errorf("granting owner role: %w", err)
	}

	if err := s.AppendAuditLog(ctx, &store.AuditEntry{
		ActorPrincipalID: principalID,
		Action:           store.AuditCreatePrincipal,
		TargetType:       store.TargetPrincipal,
		TargetID:         principalID,
		Detail:           map[string]any{"display_name": displayName, "roles": []string{string(store.RoleOwner)}, "via": "bootstrap"},
	}); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}

	green.Fprintf(out, "  ✓ Created owner principal: %s\n", displayName)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	expiresAt := time.Now().Add(admin.DefaultTokenTTL).UTC()
	token, err := verifier.Generate(principalID, admin.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenFile := tokenPath(configPath)
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Fprintf(out, "  ✓ Saved token: %s\n", tokenFile)

	fmt.Fprintln(out)
	green.Fprintln(out, "  Bootstrap complete!")
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Owner Principal")
	cyan.Fprintln(out, "  ---------------")
	fmt.Fprintf(out, "  ID:           %s\n", principalID)
	fmt.Fprintf(out, "  Display Name: %s\n", displayName)
	fmt.Fprintf(out, "  Type:         %s\n", store.PrincipalTypeOperator)
	fmt.Fprintf(out, "  Status:       %s\n", store.PrincipalStatusApproved)
	fmt.Fprintf(out, "  Roles:        %s\n", store.RoleOwner)
	fmt.Fprintf(out, "  Token:        %s (expires %s)\n", tokenFile, expiresAt.Format("Jan 02, 2006"))
	fmt.Fprintln(out)

	yellow.Fprintln(out, "  Ready to go:")
	fmt.Fprintln(out, "    warden serve      # start the dashboard")
	fmt.Fprintln(out, "    warden mods       # list installed mods")
	fmt.Fprintln(out)

	return nil
}
