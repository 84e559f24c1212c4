package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/pkg/models"
)

// runRepositorySuite exercises the behaviour every Repository must share.
func runRepositorySuite(t *testing.T, repo Repository) {
	ctx := context.Background()

	acme := &models.Tenant{Name: "Acme", Slug: "acme", Tier: models.Tier2, IsActive: true,
		Features: map[string]bool{"crm": true}}
	require.NoError(t, repo.CreateTenant(ctx, acme))
	require.NotEmpty(t, acme.ID)
	globex := &models.Tenant{Name: "Globex", Slug: "globex", Tier: models.TierFree, IsActive: true}
	require.NoError(t, repo.CreateTenant(ctx, globex))

	t.Run("Duplicate slug", func(t *testing.T) {
		err := repo.CreateTenant(ctx, &models.Tenant{Name: "Acme 2", Slug: "acme", Tier: models.TierFree, IsActive: true})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("Empty slug is still unique", func(t *testing.T) {
		require.NoError(t, repo.CreateTenant(ctx, &models.Tenant{Name: "Nameless", Tier: models.TierFree, IsActive: true}))
		err := repo.CreateTenant(ctx, &models.Tenant{Name: "Nameless 2", Tier: models.TierFree, IsActive: true})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("Get tenant", func(t *testing.T) {
		got, err := repo.GetTenant(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Name)
		assert.Equal(t, models.Tier2, got.Tier)
		assert.True(t, got.Features["crm"])
		assert.Nil(t, got.Theme)

		_, err = repo.GetTenant(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update features bumps version", func(t *testing.T) {
		before, err := repo.GetTenant(ctx, acme.ID)
		require.NoError(t, err)
		after, err := repo.UpdateTenantFeatures(ctx, acme.ID, map[string]bool{"sms": true, "crm": false})
		require.NoError(t, err)
		assert.Equal(t, before.Version+1, after.Version)
		assert.True(t, after.Features["sms"])
		assert.False(t, after.Features["crm"])

		_, err = repo.UpdateTenantFeatures(ctx, "missing", map[string]bool{"sms": true})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update tenant theme", func(t *testing.T) {
		cur, err := repo.GetTenant(ctx, acme.ID)
		require.NoError(t, err)
		name := "Acme Corp"
		cur.IsWhiteLabel = true
		cur.Theme = &models.ThemeConfig{CompanyName: &name}
		updated, err := repo.UpdateTenant(ctx, cur)
		require.NoError(t, err)
		assert.Equal(t, cur.Version+1, updated.Version)
		require.NotNil(t, updated.Theme)
		assert.Equal(t, "Acme Corp", *updated.Theme.CompanyName)
		assert.True(t, updated.IsWhiteLabel)
	})

	t.Run("Stale update conflicts", func(t *testing.T) {
		stale, err := repo.GetTenant(ctx, acme.ID)
		require.NoError(t, err)
		_, err = repo.UpdateTenantFeatures(ctx, acme.ID, map[string]bool{"sms": true})
		require.NoError(t, err)

		stale.Name = "Stale Acme"
		_, err = repo.UpdateTenant(ctx, stale)
		assert.ErrorIs(t, err, ErrConflict)

		cur, err := repo.GetTenant(ctx, acme.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "Stale Acme", cur.Name)
		assert.Equal(t, stale.Version+1, cur.Version)

		_, err = repo.UpdateTenant(ctx, &models.Tenant{ID: "missing", Version: 1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Memberships ordered and primary exclusive", func(t *testing.T) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, repo.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: globex.ID, Role: models.RoleStaff, CreatedAt: base.Add(time.Hour)}))
		require.NoError(t, repo.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: acme.ID, Role: models.RoleOwner, IsPrimary: true, CreatedAt: base}))
		require.NoError(t, repo.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: globex.ID, Role: models.RoleAdmin, IsPrimary: true, CreatedAt: base.Add(time.Hour)}))

		ms, err := repo.GetMembershipsForUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, ms, 2)
		assert.Equal(t, acme.ID, ms[0].TenantID)
		assert.False(t, ms[0].IsPrimary)
		assert.Equal(t, globex.ID, ms[1].TenantID)
		assert.True(t, ms[1].IsPrimary)
		assert.Equal(t, models.RoleAdmin, ms[1].Role)

		err = repo.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: "missing", Role: models.RoleStaff})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Domains", func(t *testing.T) {
		a := &models.CustomDomain{TenantID: acme.ID, Domain: "app.acme.com", VerificationStatus: models.VerificationPending,
			SSLStatus: models.SSLPending, CNAMETarget: "app.tenantgate.io", VerificationToken: "tg-verify-1"}
		require.NoError(t, repo.CreateDomain(ctx, a))
		b := &models.CustomDomain{TenantID: acme.ID, Domain: "portal.acme.com", VerificationStatus: models.VerificationPending,
			SSLStatus: models.SSLPending, CNAMETarget: "app.tenantgate.io", VerificationToken: "tg-verify-2"}
		require.NoError(t, repo.CreateDomain(ctx, b))

		dup := &models.CustomDomain{TenantID: globex.ID, Domain: "app.acme.com", VerificationStatus: models.VerificationPending,
			SSLStatus: models.SSLPending, CNAMETarget: "app.tenantgate.io", VerificationToken: "tg-verify-3"}
		assert.ErrorIs(t, repo.CreateDomain(ctx, dup), ErrDuplicate)

		byName, err := repo.GetDomainByName(ctx, "portal.acme.com")
		require.NoError(t, err)
		assert.Equal(t, b.ID, byName.ID)

		now := time.Now().UTC().Truncate(time.Microsecond)
		a.VerificationStatus = models.VerificationVerified
		a.VerifiedAt = &now
		a.UpdatedAt = now
		require.NoError(t, repo.UpdateDomain(ctx, a))
		got, err := repo.GetDomain(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VerificationVerified, got.VerificationStatus)
		require.NotNil(t, got.VerifiedAt)

		require.NoError(t, repo.SetPrimaryDomain(ctx, acme.ID, a.ID))
		require.NoError(t, repo.SetPrimaryDomain(ctx, acme.ID, b.ID))
		list, err := repo.ListDomains(ctx, acme.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		primaries := 0
		for _, d := range list {
			if d.IsPrimary {
				primaries++
				assert.Equal(t, b.ID, d.ID)
			}
		}
		assert.Equal(t, 1, primaries)

		assert.ErrorIs(t, repo.SetPrimaryDomain(ctx, globex.ID, a.ID), ErrNotFound)

		require.NoError(t, repo.DeleteDomain(ctx, b.ID))
		assert.ErrorIs(t, repo.DeleteDomain(ctx, b.ID), ErrNotFound)
		list, err = repo.ListDomains(ctx, acme.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.False(t, list[0].IsPrimary)
	})

	t.Run("Disable tenant hides memberships and deactivates domains", func(t *testing.T) {
		d := &models.CustomDomain{TenantID: globex.ID, Domain: "globex.example", VerificationStatus: models.VerificationVerified,
			SSLStatus: models.SSLActive, CNAMETarget: "app.tenantgate.io", VerificationToken: "tg-verify-4", IsActive: true}
		require.NoError(t, repo.CreateDomain(ctx, d))

		require.NoError(t, repo.DisableTenant(ctx, globex.ID))

		ms, err := repo.GetMembershipsForUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, ms, 1)
		assert.Equal(t, acme.ID, ms[0].TenantID)

		got, err := repo.GetDomain(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)

		tenant, err := repo.GetTenant(ctx, globex.ID)
		require.NoError(t, err)
		assert.False(t, tenant.IsActive)

		assert.ErrorIs(t, repo.DisableTenant(ctx, "missing"), ErrNotFound)
	})
}
