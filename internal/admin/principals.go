// ABOUTME: Principal management for dashboard operators and service accounts
// ABOUTME: Implements list, create, and revoke with audit logging

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/store"
)

// Errors returned by Service operations
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("principal not found")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrUnauthenticated    = errors.New("not authenticated")
)

const maxDisplayNameLength = 100

// Store is the persistence the admin service needs.
type Store interface {
	GetPrincipal(ctx context.Context, id string) (*store.Principal, error)
	CreatePrincipal(ctx context.Context, p *store.Principal) error
	UpdatePrincipalStatus(ctx context.Context, id string, status store.PrincipalStatus) error
	ListPrincipals(ctx context.Context, filter store.PrincipalFilter) ([]store.Principal, error)
	AddRole(ctx context.Context, subjectType store.RoleSubjectType, subjectID string, role store.RoleName) error
	RemoveRole(ctx context.Context, subjectType store.RoleSubjectType, subjectID string, role store.RoleName) error
	HasRole(ctx context.Context, subjectType store.RoleSubjectType, subjectID string, role store.RoleName) (bool, error)
	ListRoles(ctx context.Context, subjectType store.RoleSubjectType, subjectID string) ([]store.RoleName, error)
	AppendAuditLog(ctx context.Context, entry *store.AuditEntry) error
}

// Principal is the API view of a principal and its roles.
type Principal struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	DisplayName string     `json:"display_name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	Roles       []string   `json:"roles"`
}

// CreatePrincipalRequest is the body of a create call.
type CreatePrincipalRequest struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}

// Service manages principals and their tokens.
type Service struct {
	store    Store
	tokenGen TokenGenerator
	logger   *slog.Logger
}

// NewService creates a Service. tokenGen may be nil, in which case CreateToken
// fails with ErrFailedPrecondition.
func NewService(s Store, tokenGen TokenGenerator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    s,
		tokenGen: tokenGen,
		logger:   logger.With("component", "admin"),
	}
}

// ListPrincipals returns principals matching filter along with their roles.
func (s *Service) ListPrincipals(ctx context.Context, filter store.PrincipalFilter) ([]Principal, error) {
	principals, err := s.store.ListPrincipals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}

	result := make([]Principal, len(principals))
	for i := range principals {
		result[i] = s.view(ctx, &principals[i])
	}
	return result, nil
}

// CreatePrincipal creates an approved principal and assigns the requested
// roles. Unknown roles and owner are skipped.
func (s *Service) CreatePrincipal(ctx context.Context, req CreatePrincipalRequest) (*Principal, error) {
	authCtx := auth.FromContext(ctx)
	if authCtx == nil {
		return nil, ErrUnauthenticated
	}

	if err := validateCreatePrincipalRequest(req); err != nil {
		return nil, err
	}
	pType, err := parsePrincipalType(req.Type)
	if err != nil {
		return nil, err
	}

	p := &store.Principal{
		ID:          generatePrincipalID(pType),
		Type:        pType,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Status:      store.PrincipalStatusApproved,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreatePrincipal(ctx, p); err != nil {
		return nil, fmt.Errorf("creating principal: %w", err)
	}

	assigned := s.assignRoles(ctx, p.ID, req.Roles)

	s.audit(ctx, &store.AuditEntry{
		ActorPrincipalID: authCtx.PrincipalID,
		Action:           store.AuditCreatePrincipal,
		TargetType:       store.TargetPrincipal,
		TargetID:         p.ID,
		Detail: map[string]any{
			"type":         req.Type,
			"display_name": p.DisplayName,
			"roles":        assigned,
		},
	})

	out := s.view(ctx, p)
	return &out, nil
}

// RevokePrincipal marks a principal revoked and strips its roles. Its
// existing tokens stop working on the next request because the auth
// middleware only admits approved principals. The owner cannot be revoked.
func (s *Service) RevokePrincipal(ctx context.Context, id string) (*Principal, error) {
	authCtx := auth.FromContext(ctx)
	if authCtx == nil {
		return nil, ErrUnauthenticated
	}
	if id == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidArgument)
	}
	if id == authCtx.PrincipalID {
		return nil, fmt.Errorf("%w: cannot revoke yourself", ErrInvalidArgument)
	}

	p, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	isOwner, err := s.store.HasRole(ctx, store.RoleSubjectPrincipal, id, store.RoleOwner)
	if err != nil {
		return nil, fmt.Errorf("checking owner role: %w", err)
	}
	if isOwner {
		return nil, fmt.Errorf("%w: cannot revoke the owner", ErrFailedPrecondition)
	}

	if err := s.store.UpdatePrincipalStatus(ctx, id, store.PrincipalStatusRevoked); err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("revoking principal: %w", err)
	}
	p.Status = store.PrincipalStatusRevoked

	roles, err := s.store.ListRoles(ctx, store.RoleSubjectPrincipal, id)
	if err != nil {
		s.logger.Warn("listing roles of revoked principal", "principal_id", id, "error", err)
	}
	for _, role := range roles {
		if err := s.store.RemoveRole(ctx, store.RoleSubjectPrincipal, id, role); err != nil {
			s.logger.Warn("removing role", "principal_id", id, "role", role, "error", err)
		}
	}

	s.audit(ctx, &store.AuditEntry{
		ActorPrincipalID: authCtx.PrincipalID,
		Action:           store.AuditRevokePrincipal,
		TargetType:       store.TargetPrincipal,
		TargetID:         id,
	})

	out := s.view(ctx, p)
	return &out, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*store.Principal, error) {
	p, err := s.store.GetPrincipal(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up principal: %w", err)
	}
	return p, nil
}

func (s *Service) view(ctx context.Context, p *store.Principal) Principal {
	roles, err := s.store.ListRoles(ctx, store.RoleSubjectPrincipal, p.ID)
	if err != nil {
		s.logger.Warn("listing roles", "principal_id", p.ID, "error", err)
	}
	roleStrings := make([]string, len(roles))
	for i, r := range roles {
		roleStrings[i] = string(r)
	}
	return Principal{
		ID:          p.ID,
		Type:        string(p.Type),
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		LastSeen:    p.LastSeen,
		Roles:       roleStrings,
	}
}

// assignRoles adds each role, skipping ones the store rejects. Owner is
// reserved for bootstrap.
func (s *Service) assignRoles(ctx context.Context, principalID string, roles []string) []string {
	assigned := []string{}
	for _, roleStr := range roles {
		role, err := store.ParseRoleName(roleStr)
		if err != nil {
			s.logger.Warn("skipping role", "principal_id", principalID, "error", err)
			continue
		}
		if role == store.RoleOwner {
			s.logger.Warn("skipping owner role on created principal", "principal_id", principalID)
			continue
		}
		if err := s.store.AddRole(ctx, store.RoleSubjectPrincipal, principalID, role); err != nil {
			s.logger.Warn("skipping role", "principal_id", principalID, "role", roleStr, "error", err)
			continue
		}
		assigned = append(assigned, roleStr)
	}
	return assigned
}

// audit writes e, logging rather than failing the caller on error.
func (s *Service) audit(ctx context.Context, e *store.AuditEntry) {
	if err := s.store.AppendAuditLog(ctx, e); err != nil {
		s.logger.Warn("writing audit entry", "action", e.Action, "target_id", e.TargetID, "error", err)
	}
}

func validateCreatePrincipalRequest(req CreatePrincipalRequest) error {
	name := strings.TrimSpace(req.DisplayName)
	switch {
	case req.Type == "":
		return fmt.Errorf("%w: type required", ErrInvalidArgument)
	case name == "":
		return fmt.Errorf("%w: display_name required", ErrInvalidArgument)
	case len(name) > maxDisplayNameLength:
		return fmt.Errorf("%w: display_name exceeds %d characters", ErrInvalidArgument, maxDisplayNameLength)
	}
	return nil
}

func parsePrincipalType(s string) (store.PrincipalType, error) {
	switch t := store.PrincipalType(s); t {
	case store.PrincipalTypeOperator, store.PrincipalTypeService:
		return t, nil
	}
	return "", fmt.Errorf("%w: invalid type %q (use 'operator' or 'service')", ErrInvalidArgument, s)
}

// generatePrincipalID returns {type}-{base36 millis}-{hex4}.
func generatePrincipalID(pType store.PrincipalType) string {
	id := uuid.New()
	suffix := uint16(id[0])<<8 | uint16(id[1])
	return string(pType) + "-" + formatBase36(time.Now().UnixMilli()) + "-" + formatHex4(suffix)
}

func formatBase36(n int64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	result := ""
	for n > 0 {
		result = string(digits[n%36]) + result
		n /= 36
	}
	return result
}

func formatHex4(n uint16) string {
	return fmt.Sprintf("%04x", n)
}
