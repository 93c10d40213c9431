// ABOUTME: Store interfaces the auth middleware depends on
// ABOUTME: Satisfied by store.SQLiteStore and by in-memory fakes in tests

package auth

import (
	"context"
	"time"

	"github.com/2389/warden/internal/store"
)

// PrincipalStore looks up principals and records when they were last seen.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, id string) (*store.Principal, error)
	UpdatePrincipalLastSeen(ctx context.Context, id string, ts time.Time) error
}

// RoleStore defines the interface for retrieving roles.
type RoleStore interface {
	ListRoles(ctx context.Context, subjectType store.RoleSubjectType, subjectID string) ([]store.RoleName, error)
}
