package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"tenantgate/internal/entitlement"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

var (
	// ErrNotAMember is returned when switching to a tenant the user does not
	// belong to.
	ErrNotAMember = errors.New("user is not a member of the tenant")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSuperseded is returned by a switch that a later switch on the same
	// session overtook before it ran. The later request decides the active tenant.
	ErrSuperseded = errors.New("switch superseded by a later request")
)

// View is the resolved state of a session. A View is never mutated after it
// is published; readers may hold on to it freely.
type View struct {
	Tenant       *models.Tenant
	Role         models.Role
	Memberships  []models.Membership
	Entitlements entitlement.Set
	Theme        theme.Effective
}

// Session tracks the active tenant of one logged-in user.
type Session struct {
	ID     string
	UserID string

	m    *Manager
	view atomic.Pointer[View]

	// mu serializes view transitions; seq is the number of the most recently
	// requested switch.
	mu  sync.Mutex
	seq atomic.Uint64
}

// View returns the current resolved view.
func (s *Session) View() *View {
	return s.view.Load()
}

// ActiveTenant returns a copy of the active tenant, or nil when the user has
// no memberships.
func (s *Session) ActiveTenant() *models.Tenant {
	return s.View().Tenant.Clone()
}

// Memberships returns the user's memberships in creation order.
func (s *Session) Memberships() []models.Membership {
	v := s.View()
	out := make([]models.Membership, len(v.Memberships))
	copy(out, v.Memberships)
	return out
}

// Switch makes tenantID the active tenant. Concurrent switches on one session
// converge on the last requested tenant; superseded requests return nil
// without touching the view.
func (s *Session) Switch(ctx context.Context, tenantID string) error {
	memberships, err := s.m.dir.GetMembershipsForUser(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("loading memberships: %w", err)
	}
	membership, ok := findMembership(memberships, tenantID)
	if !ok {
		return ErrNotAMember
	}
	ticket := s.seq.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq.Load() != ticket {
		return ErrSuperseded
	}

	tenant, err := s.m.dir.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}
	if !tenant.IsActive {
		return ErrNotAMember
	}
	if err := s.m.prefs.Set(ctx, s.UserID, tenantID); err != nil {
		return fmt.Errorf("saving active tenant preference: %w", err)
	}

	s.view.Store(s.m.buildView(tenant, membership.Role, memberships))
	s.m.logger.Info("Switched active tenant", "session_id", s.ID, "user_id", s.UserID, "tenant_id", tenantID)
	return nil
}

// refresh reloads memberships and the active tenant from the directory,
// falling back to the default tenant when the active one is gone.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	memberships, err := s.m.dir.GetMembershipsForUser(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("loading memberships: %w", err)
	}
	current := ""
	if t := s.View().Tenant; t != nil {
		current = t.ID
	}
	view, err := s.m.resolve(ctx, s.UserID, current, memberships)
	if err != nil {
		return err
	}
	s.view.Store(view)
	return nil
}

func findMembership(ms []models.Membership, tenantID string) (models.Membership, bool) {
	for _, m := range ms {
		if m.TenantID == tenantID {
			return m, true
		}
	}
	return models.Membership{}, false
}

// defaultTenant picks the tenant a new session starts on: the preferred
// tenant if the user is still a member, else the primary membership, else
// the earliest created one.
func defaultTenant(ms []models.Membership, preferred string) (models.Membership, bool) {
	if len(ms) == 0 {
		return models.Membership{}, false
	}
	if preferred != "" {
		if m, ok := findMembership(ms, preferred); ok {
			return m, true
		}
	}
	for _, m := range ms {
		if m.IsPrimary {
			return m, true
		}
	}
	sorted := make([]models.Membership, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })
	return sorted[0], true
}
