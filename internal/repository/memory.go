package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantgate/pkg/models"
)

// MemoryStore is an in-process Repository used for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*models.Tenant
	memberships map[string][]models.Membership
	domains     map[string]*models.CustomDomain
	now         func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*models.Tenant),
		memberships: make(map[string][]models.Membership),
		domains:     make(map[string]*models.CustomDomain),
		now:         time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) GetMembershipsForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Membership
	for _, m := range s.memberships[userID] {
		if t, ok := s.tenants[m.TenantID]; ok && t.IsActive {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	if _, ok := s.tenants[tenant.ID]; ok {
		return ErrDuplicate
	}
	for _, t := range s.tenants {
		if t.Slug == tenant.Slug {
			return ErrDuplicate
		}
	}
	now := s.now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	if tenant.Version == 0 {
		tenant.Version = 1
	}
	if tenant.Features == nil {
		tenant.Features = map[string]bool{}
	}
	s.tenants[tenant.ID] = tenant.Clone()
	return nil
}

func (s *MemoryStore) UpdateTenantFeatures(ctx context.Context, id string, features map[string]bool) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Features == nil {
		t.Features = map[string]bool{}
	}
	for k, v := range features {
		t.Features[k] = v
	}
	t.Version++
	t.UpdatedAt = s.now()
	return t.Clone(), nil
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if tenant.Version != t.Version {
		return nil, ErrConflict
	}
	next := tenant.Clone()
	next.CreatedAt = t.CreatedAt
	next.IsActive = t.IsActive
	next.Slug = t.Slug
	next.Version = t.Version + 1
	next.UpdatedAt = s.now()
	s.tenants[tenant.ID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) DisableTenant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	t.IsActive = false
	t.Version++
	t.UpdatedAt = now
	for _, d := range s.domains {
		if d.TenantID == id && d.IsActive {
			d.IsActive = false
			d.UpdatedAt = now
		}
	}
	return nil
}

func (s *MemoryStore) AddMembership(ctx context.Context, m models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[m.TenantID]; !ok {
		return ErrNotFound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	list := s.memberships[m.UserID]
	replaced := false
	for i := range list {
		if m.IsPrimary {
			list[i].IsPrimary = false
		}
		if list[i].TenantID == m.TenantID {
			m.CreatedAt = list[i].CreatedAt
			list[i] = m
			replaced = true
		}
	}
	if !replaced {
		list = append(list, m)
	}
	s.memberships[m.UserID] = list
	return nil
}

func (s *MemoryStore) CreateDomain(ctx context.Context, d *models.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.domains {
		if existing.Domain == d.Domain {
			return ErrDuplicate
		}
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	c := *d
	s.domains[d.ID] = &c
	return nil
}

func (s *MemoryStore) GetDomain(ctx context.Context, id string) (*models.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *d
	return &c, nil
}

func (s *MemoryStore) GetDomainByName(ctx context.Context, name string) (*models.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.domains {
		if d.Domain == name {
			c := *d
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListDomains(ctx context.Context, tenantID string) ([]*models.CustomDomain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.CustomDomain
	for _, d := range s.domains {
		if d.TenantID == tenantID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Domain < out[j].Domain
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateDomain(ctx context.Context, d *models.CustomDomain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.domains[d.ID]
	if !ok {
		return ErrNotFound
	}
	c := *d
	c.TenantID = existing.TenantID
	c.Domain = existing.Domain
	c.IsPrimary = existing.IsPrimary
	c.CreatedAt = existing.CreatedAt
	s.domains[d.ID] = &c
	return nil
}

func (s *MemoryStore) SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.domains[domainID]
	if !ok || target.TenantID != tenantID {
		return ErrNotFound
	}
	now := s.now()
	for _, d := range s.domains {
		if d.TenantID == tenantID && d.IsPrimary && d.ID != domainID {
			d.IsPrimary = false
			d.UpdatedAt = now
		}
	}
	if !target.IsPrimary {
		target.IsPrimary = true
		target.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) DeleteDomain(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[id]; !ok {
		return ErrNotFound
	}
	delete(s.domains, id)
	return nil
}
