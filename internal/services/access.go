package services

import (
	"context"
	"errors"

	"tenantgate/internal/domains"
	"tenantgate/internal/entitlement"
	"tenantgate/internal/session"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

// Snapshot is everything a request needs to know about its caller's tenant.
// All fields come from one session view.
type Snapshot struct {
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id"`
	Tenant        *models.Tenant      `json:"tenant"`
	Role          models.Role         `json:"role,omitempty"`
	Memberships   []models.Membership `json:"memberships"`
	Entitlements  entitlement.Set     `json:"entitlements"`
	Theme         theme.Effective     `json:"theme"`
	TenantVersion int64               `json:"tenant_version"`
}

// HasTenant reports whether the caller has an active tenant.
func (s *Snapshot) HasTenant() bool {
	return s.Tenant != nil
}

// TenantReader loads tenants.
type TenantReader interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// AccessService joins sessions, entitlements and themes for request handlers.
type AccessService struct {
	sessions SessionManager
	domains  DomainLookup
	tenants  TenantReader
	themes   *theme.Resolver
}

// NewAccessService creates an AccessService.
func NewAccessService(sessions SessionManager, domains DomainLookup, tenants TenantReader, themes *theme.Resolver) *AccessService {
	return &AccessService{sessions: sessions, domains: domains, tenants: tenants, themes: themes}
}

// Snapshot returns the caller's current view, starting the session if needed.
func (s *AccessService) Snapshot(ctx context.Context, sessionID, userID string) (*Snapshot, error) {
	sess, err := s.sessions.Start(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(sess), nil
}

// Switch changes the caller's active tenant and returns the new view.
func (s *AccessService) Switch(ctx context.Context, sessionID, userID, tenantID string) (*Snapshot, error) {
	sess, err := s.sessions.Start(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := sess.Switch(ctx, tenantID); err != nil {
		return nil, err
	}
	return snapshotOf(sess), nil
}

// EndSession tears down the caller's session.
func (s *AccessService) EndSession(sessionID string) {
	s.sessions.End(sessionID)
}

func snapshotOf(sess *session.Session) *Snapshot {
	v := sess.View()
	snap := &Snapshot{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		Tenant:       v.Tenant.Clone(),
		Role:         v.Role,
		Memberships:  sess.Memberships(),
		Entitlements: v.Entitlements,
		Theme:        v.Theme,
	}
	if v.Tenant != nil {
		snap.TenantVersion = v.Tenant.Version
	}
	return snap
}

// ThemeForHost returns the theme of the tenant owning a live custom domain,
// or the platform defaults for any other host.
func (s *AccessService) ThemeForHost(ctx context.Context, host string) (theme.Effective, error) {
	d, err := s.domains.DomainForHost(ctx, host)
	if errors.Is(err, domains.ErrDomainNotFound) {
		return s.themes.Defaults(), nil
	}
	if err != nil {
		return theme.Effective{}, err
	}
	tenant, err := s.tenants.GetTenant(ctx, d.TenantID)
	if err != nil {
		return theme.Effective{}, err
	}
	if !tenant.IsActive {
		return s.themes.Defaults(), nil
	}
	return s.themes.Resolve(tenant), nil
}

// PreviewTheme renders overrides against a tenant without saving them.
func (s *AccessService) PreviewTheme(tenant *models.Tenant, cfg *models.ThemeConfig) (theme.Effective, error) {
	if err := theme.Validate(cfg); err != nil {
		return theme.Effective{}, err
	}
	t := tenant.Clone()
	t.Theme = cfg
	return s.themes.Resolve(t), nil
}
