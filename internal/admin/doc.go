// Package admin manages the identities allowed to use the dashboard API.
//
// # Overview
//
// Service wraps the store with the rules the HTTP layer relies on. The
// gateway mounts it under /api/principals when auth.jwt_secret is set:
//
//   - GET /api/principals - List principals with roles
//   - POST /api/principals - Create an operator or service principal
//   - POST /api/principals/{id}/revoke - Revoke a principal and strip its roles (never the owner)
//   - POST /api/principals/{id}/token - Issue a bearer token
//
// # Principal Types
//
//   - operator: A person using the dashboard or the warden CLI
//   - service: Automation that calls the API (cron jobs, chat bots)
//
// # Status
//
//   - pending: Created but not yet usable
//   - approved: Tokens are accepted
//   - revoked: Tokens are rejected on the next request
//
// The first owner is created by `warden bootstrap`; the API never grants owner.
//
// # Errors
//
// Operations return ErrInvalidArgument, ErrNotFound, ErrFailedPrecondition,
// or ErrUnauthenticated (wrapped), which the gateway maps to 400, 404, 409,
// and 401.
package admin
