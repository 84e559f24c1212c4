package entitlement

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tenantgate/pkg/models"
)

// Logger is the subset of the application logger the resolver needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// LockedFeature is a known feature the tenant does not have, with the tier
// that would unlock it.
type LockedFeature struct {
	Feature      FeatureKey  `json:"feature"`
	Name         string      `json:"name"`
	RequiredTier models.Tier `json:"required_tier,omitempty"`
}

// Set is the computed entitlement of one user within one tenant.
type Set struct {
	TenantID     string          `json:"tenant_id,omitempty"`
	Role         models.Role     `json:"role,omitempty"`
	Features     []FeatureKey    `json:"features"`
	IsAdmin      bool            `json:"is_admin"`
	IsWhiteLabel bool            `json:"is_white_label"`
	VisibleNav   []NavItem       `json:"visible_nav"`
	Locked       []LockedFeature `json:"locked,omitempty"`

	enabled map[FeatureKey]bool
}

// Empty is the entitlement of a session without an active tenant: nothing
// privileged is visible.
func Empty() Set {
	return Set{Features: []FeatureKey{}, VisibleNav: []NavItem{}}
}

// Has reports whether the feature is enabled. Unknown keys are disabled.
func (s Set) Has(k FeatureKey) bool {
	return s.enabled[k]
}

// Resolver evaluates tenants against a navigation catalog. It performs no
// I/O and is safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	logger  Logger
	unknown metric.Int64Counter
}

// NewResolver creates a Resolver. A nil catalog uses the built-in one.
func NewResolver(catalog *Catalog, logger Logger) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	counter, err := otel.Meter("tenantgate/entitlement").Int64Counter(
		"entitlement.unknown_feature_keys",
		metric.WithDescription("Feature keys that did not match a known feature and resolved as disabled"),
	)
	if err != nil {
		counter = nil
	}
	return &Resolver{catalog: catalog, logger: logger, unknown: counter}
}

// Catalog returns the catalog the resolver renders.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve computes the entitlement set. A nil tenant yields Empty().
func (r *Resolver) Resolve(tenant *models.Tenant, role models.Role) Set {
	if tenant == nil {
		return Empty()
	}

	set := Set{
		TenantID:     tenant.ID,
		Role:         role,
		IsAdmin:      role.IsAdmin(),
		IsWhiteLabel: tenant.IsWhiteLabel,
		Features:     []FeatureKey{},
		VisibleNav:   []NavItem{},
		enabled:      make(map[FeatureKey]bool),
	}
	if !role.Valid() {
		r.warn("unknown membership role resolved without admin rights", "tenant_id", tenant.ID, "role", string(role))
	}

	for raw, on := range tenant.Features {
		k, ok := ParseFeatureKey(raw)
		if !ok {
			r.unknownKey(tenant.ID, raw)
			continue
		}
		if on {
			set.enabled[k] = true
			set.Features = append(set.Features, k)
		}
	}
	sortFeatures(set.Features)

	for _, k := range allFeatures {
		if set.enabled[k] {
			continue
		}
		lf := LockedFeature{Feature: k, Name: k.Name()}
		if t, ok := RequiredTier(k); ok && !tenant.Tier.AtLeast(t) {
			lf.RequiredTier = t
		}
		set.Locked = append(set.Locked, lf)
	}

	for _, item := range r.catalog.Items {
		if item.RequiredFeature != "" && !set.enabled[item.RequiredFeature] {
			continue
		}
		if item.AdminOnly && !set.IsAdmin {
			continue
		}
		if item.WhiteLabelOnly && !set.IsWhiteLabel {
			continue
		}
		set.VisibleNav = append(set.VisibleNav, item)
	}
	return set
}

// HasFeature checks a raw feature key against a resolved set. Unknown keys
// are reported and resolve as disabled.
func (r *Resolver) HasFeature(set Set, raw string) bool {
	k, ok := ParseFeatureKey(raw)
	if !ok {
		r.unknownKey(set.TenantID, raw)
		return false
	}
	return set.Has(k)
}

func (r *Resolver) unknownKey(tenantID, key string) {
	r.warn("unknown feature key resolved as disabled", "tenant_id", tenantID, "feature", key)
	if r.unknown != nil {
		r.unknown.Add(context.Background(), 1, metric.WithAttributes(attribute.String("feature", key)))
	}
}

func (r *Resolver) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
