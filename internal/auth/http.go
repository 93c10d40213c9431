// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds principal to context

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/warden/internal/store"
)

// lastSeenInterval limits last_seen writes to one per principal per interval.
const lastSeenInterval = time.Minute

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// checkPrincipalStatus validates that a principal has an allowed status.
// Returns an error message (empty if allowed).
func checkPrincipalStatus(status store.PrincipalStatus) string {
	switch status {
	case store.PrincipalStatusApproved:
		return ""
	case store.PrincipalStatusPending:
		return "principal status is pending"
	case store.PrincipalStatusRevoked:
		return "principal has been revoked"
	default:
		return "unknown principal status"
	}
}

// buildAuthContext creates an AuthContext from a principal and role list.
func buildAuthContext(principalID string, principalType store.PrincipalType, roleNames []store.RoleName) *AuthContext {
	roleStrings := make([]string, len(roleNames))
	for i, rn := range roleNames {
		roleStrings[i] = string(rn)
	}
	return &AuthContext{
		PrincipalID:   principalID,
		PrincipalType: string(principalType),
		Roles:         roleStrings,
	}
}

// logFailure records a rejected request. A nil logger is allowed.
func logFailure(logger *slog.Logger, r *http.Request, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	args := append([]any{"reason", reason, "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr}, attrs...)
	logger.Warn("http auth failure", args...)
}

// touchLastSeen stamps last_seen unless it was written within lastSeenInterval.
// Failures are logged and never reject the request.
func touchLastSeen(ctx context.Context, principals PrincipalStore, id string, last *time.Time, logger *slog.Logger) {
	now := time.Now().UTC()
	if last != nil && now.Sub(*last) < lastSeenInterval {
		return
	}
	if err := principals.UpdatePrincipalLastSeen(ctx, id, now); err != nil && logger != nil {
		logger.Debug("updating last_seen", "principal_id", id, "error", err)
	}
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// It looks up the principal and adds AuthContext to the request context.
func HTTPAuthMiddleware(principals PrincipalStore, roles RoleStore, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logFailure(logger, r, "token_extraction_failed", "detail", errMsg)
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			principalID, err := verifier.Verify(token)
			if err != nil {
				logFailure(logger, r, "token_verification_failed", "error", err)
				writeAuthError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			principal, err := principals.GetPrincipal(r.Context(), principalID)
			if err != nil {
				logFailure(logger, r, "principal_not_found", "principal_id", principalID)
				writeAuthError(w, "principal not found", http.StatusUnauthorized)
				return
			}

			if errMsg = checkPrincipalStatus(principal.Status); errMsg != "" {
				logFailure(logger, r, "principal_status_invalid", "principal_id", principalID, "status", principal.Status)
				status := http.StatusForbidden
				if errMsg == "unknown principal status" {
					status = http.StatusInternalServerError
				}
				writeAuthError(w, errMsg, status)
				return
			}

			touchLastSeen(r.Context(), principals, principalID, principal.LastSeen, logger)

			roleNames, _ := roles.ListRoles(r.Context(), store.RoleSubjectPrincipal, principalID)
			authCtx := buildAuthContext(principalID, principal.Type, roleNames)
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires admin or owner role.
// Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				logFailure(logger, r, "not_authenticated")
				writeAuthError(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			if !authCtx.IsAdmin() {
				logFailure(logger, r, "admin_required", "principal_id", authCtx.PrincipalID)
				writeAuthError(w, "admin role required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError writes the dashboard's JSON error envelope.
func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
