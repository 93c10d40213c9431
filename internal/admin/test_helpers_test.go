// ABOUTME: Shared test helpers for admin package tests
// ABOUTME: Provides a temp SQLite store, an admin context, and a token secret

package admin

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/store"
)

// testSecret is a 32-byte secret that meets MinSecretLength requirement.
var testSecret = []byte("admin-token-test-secret-32bytes!")

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createAdminContext(principalID string) context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{
		PrincipalID:   principalID,
		PrincipalType: "operator",
		Roles:         []string{"admin"},
	})
}

func createService(t *testing.T, s *store.SQLiteStore) (*Service, *auth.JWTVerifier) {
	t.Helper()
	verifier, err := auth.NewJWTVerifier(testSecret)
	require.NoError(t, err)
	return NewService(s, verifier, slog.New(slog.NewTextHandler(io.Discard, nil))), verifier
}
