package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"tenantgate/internal/entitlement"
	"tenantgate/internal/events"
	"tenantgate/internal/repository"
	"tenantgate/internal/session"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

var (
	// ErrUnknownFeature is returned when an admin toggles a feature key that
	// does not exist.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrInvalidTier is returned for tiers outside free..tier3.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrInvalidTenant is returned for tenants missing a name or slug.
	ErrInvalidTenant = errors.New("invalid tenant")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// TenantService performs admin changes on tenants and announces them.
type TenantService struct {
	dir    repository.TenantDirectory
	pub    events.Publisher
	logger Logger

	// OnDisable, when set, runs after a tenant is disabled. It stops
	// background work on the tenant's domains.
	OnDisable func(ctx context.Context, tenantID string)
}

// NewTenantService creates a TenantService.
func NewTenantService(dir repository.TenantDirectory, pub events.Publisher, logger Logger) *TenantService {
	return &TenantService{dir: dir, pub: pub, logger: logger}
}

// CreateTenant creates a tenant with its tier's default features and makes
// ownerUserID its owner.
func (s *TenantService) CreateTenant(ctx context.Context, name, slug string, tier models.Tier, ownerUserID string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" || !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: name and a lower-case slug are required", ErrInvalidTenant)
	}
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	t := &models.Tenant{
		Name:     name,
		Slug:     slug,
		Tier:     tier,
		Features: entitlement.DefaultFeatures(tier),
		IsActive: true,
	}
	if err := s.dir.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	if ownerUserID != "" {
		existing, err := s.dir.GetMembershipsForUser(ctx, ownerUserID)
		if err != nil {
			return nil, err
		}
		m := models.Membership{UserID: ownerUserID, TenantID: t.ID, Role: models.RoleOwner, IsPrimary: len(existing) == 0}
		if err := s.dir.AddMembership(ctx, m); err != nil {
			return nil, err
		}
	}
	s.logger.Info("Tenant created", "tenant_id", t.ID, "slug", slug, "tier", string(tier))
	s.publish(ctx, t, "created", ownerUserID)
	return t, nil
}

// GetTenant loads a tenant.
func (s *TenantService) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	return s.dir.GetTenant(ctx, tenantID)
}

// RoleOf returns the role userID holds in an active tenant, read from the
// directory rather than any session.
func (s *TenantService) RoleOf(ctx context.Context, userID, tenantID string) (models.Role, error) {
	ms, err := s.dir.GetMembershipsForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, m := range ms {
		if m.TenantID == tenantID {
			return m.Role, nil
		}
	}
	return "", session.ErrNotAMember
}

// AddMember grants a user a role in a tenant.
func (s *TenantService) AddMember(ctx context.Context, tenantID, userID string, role models.Role, primary bool) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTenant, role)
	}
	if err := s.dir.AddMembership(ctx, models.Membership{UserID: userID, TenantID: tenantID, Role: role, IsPrimary: primary}); err != nil {
		return err
	}
	t, err := s.dir.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	s.publish(ctx, t, "membership", userID)
	return nil
}

// SetFeatures toggles feature keys. Unknown keys are rejected.
func (s *TenantService) SetFeatures(ctx context.Context, tenantID string, features map[string]bool) (*models.Tenant, error) {
	for k := range features {
		if _, ok := entitlement.ParseFeatureKey(k); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, k)
		}
	}
	t, err := s.dir.UpdateTenantFeatures(ctx, tenantID, features)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, t, "features", "")
	return t, nil
}

// ChangeTier moves a tenant to another tier and resets its features to the
// tier defaults.
func (s *TenantService) ChangeTier(ctx context.Context, tenantID string, tier models.Tier) (*models.Tenant, error) {
	if !tier.Valid() {
		return nil, ErrInvalidTier
	}
	return s.update(ctx, tenantID, "tier", func(t *models.Tenant) error {
		t.Tier = tier
		t.Features = entitlement.DefaultFeatures(tier)
		return nil
	})
}

// SetWhiteLabel turns white-labelling on or off.
func (s *TenantService) SetWhiteLabel(ctx context.Context, tenantID string, on bool) (*models.Tenant, error) {
	return s.update(ctx, tenantID, "white_label", func(t *models.Tenant) error {
		t.IsWhiteLabel = on
		return nil
	})
}

// UpdateTheme replaces the tenant's theme overrides. A nil theme clears them.
func (s *TenantService) UpdateTheme(ctx context.Context, tenantID string, cfg *models.ThemeConfig) (*models.Tenant, error) {
	if err := theme.Validate(cfg); err != nil {
		return nil, err
	}
	return s.update(ctx, tenantID, "theme", func(t *models.Tenant) error {
		t.Theme = cfg
		return nil
	})
}

// Disable soft-disables a tenant. Its domains stop serving.
func (s *TenantService) Disable(ctx context.Context, tenantID string) error {
	if err := s.dir.DisableTenant(ctx, tenantID); err != nil {
		return err
	}
	if s.OnDisable != nil {
		s.OnDisable(ctx, tenantID)
	}
	t, err := s.dir.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	s.publish(ctx, t, "disabled", "")
	return nil
}

// update applies mutate to a fresh read of the tenant. A write that raced
// another change is re-read and applied once more before giving up with
// repository.ErrConflict.
func (s *TenantService) update(ctx context.Context, tenantID, reason string, mutate func(t *models.Tenant) error) (*models.Tenant, error) {
	for attempt := 1; ; attempt++ {
		t, err := s.dir.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if err := mutate(t); err != nil {
			return nil, err
		}
		updated, err := s.dir.UpdateTenant(ctx, t)
		if errors.Is(err, repository.ErrConflict) && attempt < 2 {
			s.logger.Warn("Tenant changed during update, retrying", "tenant_id", tenantID, "reason", reason)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.publish(ctx, updated, reason, "")
		return updated, nil
	}
}

func (s *TenantService) publish(ctx context.Context, t *models.Tenant, reason, userID string) {
	ev := events.TenantChanged{TenantID: t.ID, UserID: userID, Version: t.Version, Reason: reason}
	if err := s.pub.PublishTenantChanged(ctx, ev); err != nil {
		s.logger.Error("Failed to publish tenant change", "tenant_id", t.ID, "reason", reason, "error", err)
	}
}
