// ABOUTME: Token issuance for approved principals
// ABOUTME: Generates bearer tokens with bounded TTL and records an audit entry

package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/store"
)

// DefaultTokenTTL is used when no TTL is requested: 30 days.
const DefaultTokenTTL = 30 * 24 * time.Hour

// MaxTokenTTL bounds requested TTLs: 365 days.
const MaxTokenTTL = 365 * 24 * time.Hour

// TokenGenerator generates bearer tokens.
type TokenGenerator interface {
	Generate(principalID string, ttl time.Duration) (string, error)
}

// Token is a freshly issued bearer token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateToken issues a token for an approved principal. A zero ttl selects
// DefaultTokenTTL.
func (s *Service) CreateToken(ctx context.Context, principalID string, ttl time.Duration) (*Token, error) {
	authCtx := auth.FromContext(ctx)
	if authCtx == nil {
		return nil, ErrUnauthenticated
	}
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal_id required", ErrInvalidArgument)
	}
	if s.tokenGen == nil {
		return nil, fmt.Errorf("%w: token generation not configured (no jwt_secret)", ErrFailedPrecondition)
	}

	p, err := s.lookup(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.Status != store.PrincipalStatusApproved {
		return nil, fmt.Errorf("%w: principal status is %s, must be approved", ErrFailedPrecondition, p.Status)
	}

	switch {
	case ttl < 0:
		return nil, fmt.Errorf("%w: ttl must not be negative", ErrInvalidArgument)
	case ttl == 0:
		ttl = DefaultTokenTTL
	case ttl > MaxTokenTTL:
		return nil, fmt.Errorf("%w: ttl exceeds maximum of %d seconds", ErrInvalidArgument, int64(MaxTokenTTL.Seconds()))
	}

	token, err := s.tokenGen.Generate(principalID, ttl)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	expiresAt := time.Now().Add(ttl).UTC()

	s.audit(ctx, &store.AuditEntry{
		ActorPrincipalID: authCtx.PrincipalID,
		Action:           store.AuditCreateToken,
		TargetType:       store.TargetPrincipal,
		TargetID:         principalID,
		Detail: map[string]any{
			"ttl_seconds": int64(ttl.Seconds()),
			"expires_at":  expiresAt.Format(time.RFC3339),
		},
	})

	return &Token{Token: token, ExpiresAt: expiresAt}, nil
}
