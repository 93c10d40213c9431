// ABOUTME: Role entity and store methods for authorization
// ABOUTME: Owner and admin roles gate the mutating dashboard endpoints

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidRole is returned for role names other than owner, admin, and member.
var ErrInvalidRole = errors.New("invalid role")

// RoleSubjectType is what a role is attached to. Only principals hold roles.
type RoleSubjectType string

const RoleSubjectPrincipal RoleSubjectType = "principal"

// RoleName is a dashboard permission level.
type RoleName string

const (
	RoleOwner  RoleName = "owner"  // created by bootstrap; everything
	RoleAdmin  RoleName = "admin"  // recover, toggle mods, talk to players
	RoleMember RoleName = "member" // read-only
)

// ParseRoleName validates s as a role name.
func ParseRoleName(s string) (RoleName, error) {
	switch r := RoleName(s); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// CanMutate reports whether r may restart the server or change mods.
func (r RoleName) CanMutate() bool {
	return r == RoleOwner || r == RoleAdmin
}

// rank orders roles from most to least privileged.
func (r RoleName) rank() int {
	switch r {
	case RoleOwner:
		return 0
	case RoleAdmin:
		return 1
	case RoleMember:
		return 2
	}
	return 3
}

// AddRole grants role to a subject. Granting a role the subject already has
// is a no-op.
func (s *SQLiteStore) AddRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) error {
	if _, err := ParseRoleName(string(role)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (subject_type, subject_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_type, subject_id, role) DO NOTHING
	`, subjectType, subjectID, role, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("granting %s role: %w", role, err)
	}

	s.logger.Debug("role granted", "subject_id", subjectID, "role", role)
	return nil
}

// RemoveRole revokes role from a subject. Revoking a missing role is a no-op.
func (s *SQLiteStore) RemoveRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM roles WHERE subject_type = ? AND subject_id = ? AND role = ?`,
		subjectType, subjectID, role)
	if err != nil {
		return fmt.Errorf("revoking %s role: %w", role, err)
	}

	s.logger.Debug("role revoked", "subject_id", subjectID, "role", role)
	return nil
}

// HasRole reports whether a subject holds role. Unknown subjects hold nothing.
func (s *SQLiteStore) HasRole(ctx context.Context, subjectType RoleSubjectType, subjectID string, role RoleName) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles WHERE subject_type = ? AND subject_id = ? AND role = ?
		)
	`, subjectType, subjectID, role).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return has, nil
}

// ListRoles returns a subject's roles, most privileged first. A subject with
// no roles gets an empty, non-nil slice.
func (s *SQLiteStore) ListRoles(ctx context.Context, subjectType RoleSubjectType, subjectID string) ([]RoleName, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role FROM roles WHERE subject_type = ? AND subject_id = ?`,
		subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleName{}
	for rows.Next() {
		var role RoleName
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	slices.SortFunc(roles, func(a, b RoleName) int { return a.rank() - b.rank() })
	return roles, nil
}
