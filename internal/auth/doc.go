// Package auth provides authentication and authorization for the warden API.
//
// # Authentication
//
// Operators and automation authenticate with JWT bearer tokens. Tokens are
// signed with HS256 using auth.jwt_secret, which must be at least
// MinSecretLength bytes. The "sub" claim carries the principal ID. Tokens
// must name Issuer as "iss" and Audience in "aud" and must carry "exp";
// anything else signed with the same secret is refused.
//
//	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	token, err := verifier.Generate(principalID, 30*24*time.Hour)
//
// # Principals and Roles
//
// Every token maps to a store.Principal. Only approved principals are let
// through; pending and revoked principals get 403. Roles come from the roles
// table and are copied into the request's AuthContext:
//
//   - owner: created by `warden bootstrap`, full access
//   - admin: may restart the server, toggle mods, and talk to players
//   - member: read-only access to status and history
//
// # HTTP Middleware
//
//	HTTPAuthMiddleware(principals, roles, verifier, logger) // requires a valid token
//	RequireAdminHTTP(logger)                                // requires owner or admin
//
// Handlers read the identity with FromContext; Actor names the caller in
// audit entries and falls back to AnonymousActor when auth is disabled. Rejections are logged with a
// machine-readable reason attribute and answered with the JSON error envelope
// {"success":false,"error":"..."}.
package auth
