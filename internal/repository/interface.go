package repository

import (
	"context"
	"errors"

	"tenantgate/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate key")
	// ErrConflict is returned when a write was based on a stale version.
	ErrConflict = errors.New("version conflict")
)

// TenantDirectory is the authoritative store of tenants and memberships.
// Reads after writes within one process are strongly consistent.
type TenantDirectory interface {
	// GetTenant returns a tenant by id, including soft-disabled tenants.
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	// GetMembershipsForUser returns the user's memberships of active tenants
	// ordered by creation time.
	GetMembershipsForUser(ctx context.Context, userID string) ([]models.Membership, error)
	// UpdateTenantFeatures overwrites the given feature keys and bumps the
	// tenant version.
	UpdateTenantFeatures(ctx context.Context, id string, features map[string]bool) (*models.Tenant, error)
	// CreateTenant inserts a tenant; an empty ID is assigned.
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	// UpdateTenant persists name, tier, white-label flag, features and theme
	// and bumps the version. tenant.Version must be the stored version,
	// otherwise nothing is written and ErrConflict is returned.
	UpdateTenant(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error)
	// DisableTenant soft-disables a tenant and deactivates its domains.
	DisableTenant(ctx context.Context, id string) error
	// AddMembership inserts or replaces a membership. A primary membership
	// clears the user's other primary flags.
	AddMembership(ctx context.Context, m models.Membership) error
}

// DomainStore persists custom domains.
type DomainStore interface {
	// CreateDomain inserts a domain; ErrDuplicate if the name is taken by any
	// tenant.
	CreateDomain(ctx context.Context, d *models.CustomDomain) error
	GetDomain(ctx context.Context, id string) (*models.CustomDomain, error)
	GetDomainByName(ctx context.Context, name string) (*models.CustomDomain, error)
	ListDomains(ctx context.Context, tenantID string) ([]*models.CustomDomain, error)
	// UpdateDomain persists status fields of an existing domain.
	UpdateDomain(ctx context.Context, d *models.CustomDomain) error
	// SetPrimaryDomain marks one domain primary and clears the tenant's
	// previous primary in the same transaction.
	SetPrimaryDomain(ctx context.Context, tenantID, domainID string) error
	DeleteDomain(ctx context.Context, id string) error
}

// Repository is the full persistence surface of the service.
type Repository interface {
	TenantDirectory
	DomainStore
	Ping(ctx context.Context) error
}
