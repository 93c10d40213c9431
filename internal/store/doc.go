// Package store provides persistent storage for warden using SQLite.
//
// # Architecture
//
// A single Store interface covers everything the gateway persists.
// SQLiteStore implements it and also satisfies recovery.RunRecorder, so the
// supervisor can hand finished runs straight to the database.
//
// # Data Models
//
//   - recovery.Result: One recovery run with its operator log, attempt
//     records, disabled mods, and failure reason
//   - Principal: An operator or service identity that holds an API token
//   - Role: owner, admin, or member assigned to a principal
//   - AuditEntry: Who restarted the server, toggled a mod, or talked to
//     players, and when
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Database file locations:
//
//   - Production: /var/lib/warden/warden.db
//   - Development: ~/.local/share/warden/warden.db
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested recovery run does not exist
//   - ErrPrincipalNotFound: Requested principal does not exist
//   - ErrDuplicatePrincipal: Principal ID already taken
//   - ErrInvalidStatus: Unknown principal status
//
// All methods accept context.Context for cancellation support.
package store
