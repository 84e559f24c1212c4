package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"tenantgate/internal/entitlement"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

// Directory is the subset of the tenant directory sessions read from.
type Directory interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetMembershipsForUser(ctx context.Context, userID string) ([]models.Membership, error)
}

// EntitlementResolver computes the feature set for a tenant and role.
type EntitlementResolver interface {
	Resolve(tenant *models.Tenant, role models.Role) entitlement.Set
}

// ThemeResolver computes the effective theme of a tenant.
type ThemeResolver interface {
	Resolve(tenant *models.Tenant) theme.Effective
}

// Logger is the logging surface the manager needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Manager owns the live sessions of the process.
type Manager struct {
	dir    Directory
	prefs  PreferenceStore
	ents   EntitlementResolver
	themes ThemeResolver
	logger Logger

	starts   singleflight.Group
	degraded metric.Int64Counter

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(dir Directory, prefs PreferenceStore, ents EntitlementResolver, themes ThemeResolver, logger Logger) *Manager {
	counter, err := otel.Meter("tenantgate/session").Int64Counter(
		"session.degraded_resolutions",
		metric.WithDescription("Session resolutions that continued without the durable preference store"),
	)
	if err != nil {
		counter = nil
	}
	return &Manager{
		dir:      dir,
		prefs:    prefs,
		ents:     ents,
		themes:   themes,
		logger:   logger,
		degraded: counter,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) degrade(ctx context.Context, reason string) {
	if m.degraded != nil {
		m.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// Start returns the session with the given id, creating it on first use.
// Concurrent starts of the same id share one directory round trip.
func (m *Manager) Start(ctx context.Context, sessionID, userID string) (*Session, error) {
	if s, ok := m.Get(sessionID); ok {
		if s.UserID != userID {
			return nil, fmt.Errorf("session %s belongs to another user", sessionID)
		}
		return s, nil
	}

	v, err, _ := m.starts.Do(sessionID, func() (interface{}, error) {
		if s, ok := m.Get(sessionID); ok {
			return s, nil
		}
		s, err := m.create(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.sessions[sessionID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s := v.(*Session)
	if s.UserID != userID {
		return nil, fmt.Errorf("session %s belongs to another user", sessionID)
	}
	return s, nil
}

func (m *Manager) create(ctx context.Context, sessionID, userID string) (*Session, error) {
	memberships, err := m.dir.GetMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading memberships: %w", err)
	}
	preferred, err := m.prefs.Get(ctx, userID)
	if err != nil {
		m.logger.Warn("Failed to read active tenant preference", "user_id", userID, "error", err)
		m.degrade(ctx, "preference_read")
		preferred = ""
	}
	view, err := m.resolve(ctx, userID, preferred, memberships)
	if err != nil {
		return nil, err
	}
	s := &Session{ID: sessionID, UserID: userID, m: m}
	s.view.Store(view)

	tenantID := ""
	if view.Tenant != nil {
		tenantID = view.Tenant.ID
	}
	m.logger.Info("Session started", "session_id", sessionID, "user_id", userID, "tenant_id", tenantID)
	return s, nil
}

// resolve builds a view on the default tenant for the memberships, writing
// the choice back to the preference store when it changed.
func (m *Manager) resolve(ctx context.Context, userID, preferred string, memberships []models.Membership) (*View, error) {
	membership, ok := defaultTenant(memberships, preferred)
	if !ok {
		return m.buildView(nil, "", memberships), nil
	}
	tenant, err := m.dir.GetTenant(ctx, membership.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading tenant %s: %w", membership.TenantID, err)
	}
	if membership.TenantID != preferred {
		if err := m.prefs.Set(ctx, userID, membership.TenantID); err != nil {
			m.logger.Warn("Failed to save active tenant preference", "user_id", userID, "error", err)
			m.degrade(ctx, "preference_write")
		}
	}
	return m.buildView(tenant, membership.Role, memberships), nil
}

func (m *Manager) buildView(tenant *models.Tenant, role models.Role, memberships []models.Membership) *View {
	v := &View{
		Tenant:      tenant,
		Role:        role,
		Memberships: memberships,
		Theme:       m.themes.Resolve(tenant),
	}
	if tenant == nil {
		v.Entitlements = entitlement.Empty()
	} else {
		v.Entitlements = m.ents.Resolve(tenant, role)
	}
	return v
}

// Get returns a live session.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// End tears a session down. Ending an unknown session is a no-op.
func (m *Manager) End(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// InvalidateTenant refreshes every live session whose active tenant is
// tenantID. Sessions whose tenant was disabled move to their default tenant.
func (m *Manager) InvalidateTenant(ctx context.Context, tenantID string) error {
	m.mu.RLock()
	var affected []*Session
	for _, s := range m.sessions {
		if t := s.View().Tenant; t != nil && t.ID == tenantID {
			affected = append(affected, s)
		}
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range affected {
		if err := s.refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	if len(affected) > 0 {
		m.logger.Info("Refreshed sessions after tenant change", "tenant_id", tenantID, "sessions", len(affected))
	}
	return errors.Join(errs...)
}

// InvalidateUser refreshes every live session of userID, picking up
// membership changes.
func (m *Manager) InvalidateUser(ctx context.Context, userID string) error {
	m.mu.RLock()
	var affected []*Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			affected = append(affected, s)
		}
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range affected {
		if err := s.refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}
