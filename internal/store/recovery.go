// ABOUTME: Recovery run history persisted for the dashboard and CLI
// ABOUTME: Each finished supervisor run is stored with its full log and attempt records

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/warden/internal/recovery"
)

// Recovery history limits
const (
	DefaultRecoveryRunLimit = 20
	MaxRecoveryRunLimit     = 500
)

// runTimeFormat is fixed width so started_at sorts lexically.
const runTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// RecordRun stores a finished recovery run. Recording the same run twice is
// an error.
func (s *SQLiteStore) RecordRun(ctx context.Context, res *recovery.Result) error {
	disabled, err := json.Marshal(res.Disabled)
	if err != nil {
		return fmt.Errorf("marshaling disabled list: %w", err)
	}
	logLines, err := json.Marshal(res.Log)
	if err != nil {
		return fmt.Errorf("marshaling recovery log: %w", err)
	}
	records, err := json.Marshal(res.AttemptRecords)
	if err != nil {
		return fmt.Errorf("marshaling attempt records: %w", err)
	}

	query := `
		INSERT INTO recovery_runs (run_id, success, reason, message, attempts, disabled_json, log_json, records_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		res.ID,
		res.Succeeded,
		string(res.Reason),
		res.Message,
		res.Attempts,
		string(disabled),
		string(logLines),
		string(records),
		res.StartedAt.UTC().Format(runTimeFormat),
		res.FinishedAt.UTC().Format(runTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting recovery run: %w", err)
	}

	s.logger.Debug("recorded recovery run", "id", res.ID, "success", res.Succeeded, "attempts", res.Attempts)
	return nil
}

const recoveryRunColumns = `run_id, success, reason, message, attempts, disabled_json, log_json, records_json, started_at, finished_at`

// GetRecoveryRun retrieves one recovery run by ID.
func (s *SQLiteStore) GetRecoveryRun(ctx context.Context, id string) (*recovery.Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recoveryRunColumns+` FROM recovery_runs WHERE run_id = ?`, id)

	res, err := scanRecoveryRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListRecoveryRuns returns the most recent runs, newest first.
// The limit defaults to DefaultRecoveryRunLimit and is capped at MaxRecoveryRunLimit.
func (s *SQLiteStore) ListRecoveryRuns(ctx context.Context, limit int) ([]*recovery.Result, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecoveryRunLimit
	case limit > MaxRecoveryRunLimit:
		limit = MaxRecoveryRunLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recoveryRunColumns+` FROM recovery_runs ORDER BY started_at DESC, run_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recovery runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []*recovery.Result{}
	for rows.Next() {
		res, err := scanRecoveryRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recovery runs: %w", err)
	}
	return runs, nil
}

func scanRecoveryRun(scanner interface{ Scan(dest ...any) error }) (*recovery.Result, error) {
	var res recovery.Result
	var reason, disabled, logLines, records, startedAt, finishedAt string

	if err := scanner.Scan(
		&res.ID,
		&res.Succeeded,
		&reason,
		&res.Message,
		&res.Attempts,
		&disabled,
		&logLines,
		&records,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning recovery run: %w", err)
	}

	res.Reason = recovery.Reason(reason)

	if err := json.Unmarshal([]byte(disabled), &res.Disabled); err != nil {
		return nil, fmt.Errorf("unmarshaling disabled list: %w", err)
	}
	if err := json.Unmarshal([]byte(logLines), &res.Log); err != nil {
		return nil, fmt.Errorf("unmarshaling recovery log: %w", err)
	}
	if err := json.Unmarshal([]byte(records), &res.AttemptRecords); err != nil {
		return nil, fmt.Errorf("unmarshaling attempt records: %w", err)
	}

	var err error
	if res.StartedAt, err = time.Parse(runTimeFormat, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if res.FinishedAt, err = time.Parse(runTimeFormat, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at: %w", err)
	}
	return &res, nil
}
