// ABOUTME: Store interface and shared errors for warden persistence
// ABOUTME: Groups the recovery history, principal, role, and audit operations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/warden/internal/recovery"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the gateway
type Store interface {
	// Recovery history
	RecordRun(ctx context.Context, res *recovery.Result) error
	GetRecoveryRun(ctx context.Context, id string) (*recovery.Result, error)
	ListRecoveryRuns(ctx context.Context, limit int) ([]*recovery.Result, error)

	// Principals
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	UpdatePrincipalStatus(ctx context.Context, id string, status PrincipalStatus) error
	UpdatePrincipalLastSeen(ctx context.Context, id string, ts time.Time) error
	ListPrincipals(ctx context.Context, f PrincipalFilter) ([]Principal, error)
	CountPrincipals(ctx context.Context, f PrincipalFilter) (int, error)
	DeletePrincipal(ctx context.Context, id string) error

	// Roles
	AddRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) error
	RemoveRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) error
	HasRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) (bool, error)
	ListRoles(ctx context.Context, subjectType RoleSubjectType, subjectID string) ([]RoleName, error)

	// Audit
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)

	Close() error
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// Ensure SQLiteStore can record recovery runs
var _ recovery.RunRecorder = (*SQLiteStore)(nil)
