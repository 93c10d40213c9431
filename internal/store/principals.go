// ABOUTME: Principal entity and store methods for dashboard identities
// ABOUTME: Principals are the operators and service accounts that hold API tokens

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Principal errors
var (
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrDuplicatePrincipal = errors.New("principal already exists")
	ErrInvalidStatus      = errors.New("invalid principal status")
)

// PrincipalType identifies what kind of identity a principal is
type PrincipalType string

const (
	PrincipalTypeOperator PrincipalType = "operator"
	PrincipalTypeService  PrincipalType = "service"
)

// PrincipalStatus is the lifecycle state of a principal
type PrincipalStatus string

const (
	PrincipalStatusPending  PrincipalStatus = "pending"
	PrincipalStatusApproved PrincipalStatus = "approved"
	PrincipalStatusRevoked  PrincipalStatus = "revoked"
)

// Valid reports whether s is a known status.
func (s PrincipalStatus) Valid() bool {
	switch s {
	case PrincipalStatusPending, PrincipalStatusApproved, PrincipalStatusRevoked:
		return true
	}
	return false
}

// Principal is an identity that can authenticate against the dashboard API
type Principal struct {
	ID          string
	Type        PrincipalType
	DisplayName string
	Status      PrincipalStatus
	CreatedAt   time.Time
	LastSeen    *time.Time
	Metadata    map[string]any
}

// PrincipalFilter narrows ListPrincipals and CountPrincipals
type PrincipalFilter struct {
	Type   *PrincipalType
	Status *PrincipalStatus
	Limit  int // default 100
	Offset int
}

// CreatePrincipal inserts a new principal.
// Returns ErrDuplicatePrincipal if the ID is already taken.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var metadataJSON *string
	if p.Metadata != nil {
		data, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		str := string(data)
		metadataJSON = &str
	}

	query := `
		INSERT INTO principals (principal_id, type, display_name, status, created_at, last_seen, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Type,
		p.DisplayName,
		p.Status,
		p.CreatedAt.UTC().Format(time.RFC3339),
		formatOptionalTime(p.LastSeen),
		metadataJSON,
	)
	if err != nil {
		if isConstraintViolation(err) && isPrimaryKeyViolation(ctx, s.db, p.ID) {
			return ErrDuplicatePrincipal
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Debug("created principal", "id", p.ID, "type", p.Type, "name", p.DisplayName)
	return nil
}

// isPrimaryKeyViolation separates a duplicate ID from a CHECK failure.
func isPrimaryKeyViolation(ctx context.Context, db *sql.DB, id string) bool {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM principals WHERE principal_id = ?`, id).Scan(&one)
	return err == nil
}

const principalColumns = `principal_id, type, display_name, status, created_at, last_seen, metadata_json`

// GetPrincipal retrieves a principal by ID.
// Returns ErrPrincipalNotFound if it doesn't exist.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE principal_id = ?`, id)

	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePrincipalStatus changes the status of a principal.
func (s *SQLiteStore) UpdatePrincipalStatus(ctx context.Context, id string, status PrincipalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET status = ? WHERE principal_id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating principal status: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	s.logger.Debug("updated principal status", "id", id, "status", status)
	return nil
}

// UpdatePrincipalLastSeen records the last time a principal authenticated.
func (s *SQLiteStore) UpdatePrincipalLastSeen(ctx context.Context, id string, ts time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE principals SET last_seen = ? WHERE principal_id = ?`,
		ts.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating principal last_seen: %w", err)
	}
	return requireOneRow(result)
}

// ListPrincipals returns principals matching the filter, oldest first.
func (s *SQLiteStore) ListPrincipals(ctx context.Context, f PrincipalFilter) ([]Principal, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + principalColumns + ` FROM principals
		WHERE (? IS NULL OR type = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at ASC, principal_id ASC
		LIMIT ? OFFSET ?`

	typ, status := principalFilterArgs(f)
	rows, err := s.db.QueryContext(ctx, query, typ, typ, status, status, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	principals := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return principals, nil
}

// CountPrincipals returns the number of principals matching the filter.
// Limit and Offset are ignored.
func (s *SQLiteStore) CountPrincipals(ctx context.Context, f PrincipalFilter) (int, error) {
	query := `SELECT COUNT(*) FROM principals
		WHERE (? IS NULL OR type = ?)
		  AND (? IS NULL OR status = ?)`

	typ, status := principalFilterArgs(f)
	var count int
	if err := s.db.QueryRowContext(ctx, query, typ, typ, status, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// DeletePrincipal removes a principal and its role assignments.
func (s *SQLiteStore) DeletePrincipal(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM roles WHERE subject_type = ? AND subject_id = ?`, RoleSubjectPrincipal, id); err != nil {
		return fmt.Errorf("deleting principal roles: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM principals WHERE principal_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing principal delete: %w", err)
	}

	s.logger.Debug("deleted principal", "id", id)
	return nil
}

func principalFilterArgs(f PrincipalFilter) (typ, status *string) {
	if f.Type != nil {
		v := string(*f.Type)
		typ = &v
	}
	if f.Status != nil {
		v := string(*f.Status)
		status = &v
	}
	return typ, status
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// scanPrincipal scans a row into a Principal.
func scanPrincipal(scanner interface{ Scan(dest ...any) error }) (Principal, error) {
	var p Principal
	var typ, status, createdAt string
	var lastSeen, metadataJSON sql.NullString

	if err := scanner.Scan(&p.ID, &typ, &p.DisplayName, &status, &createdAt, &lastSeen, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scanning principal: %w", err)
	}

	p.Type = PrincipalType(typ)
	p.Status = PrincipalStatus(status)

	var err error
	p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return p, fmt.Errorf("parsing created_at: %w", err)
	}

	if lastSeen.Valid {
		ts, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return p, fmt.Errorf("parsing last_seen: %w", err)
		}
		p.LastSeen = &ts
	}

	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &p.Metadata); err != nil {
			return p, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return p, nil
}
