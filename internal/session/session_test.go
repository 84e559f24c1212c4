package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/entitlement"
	"tenantgate/internal/logging"
	"tenantgate/internal/repository"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

type fixture struct {
	store *repository.MemoryStore
	prefs *MemoryPreferenceStore
	mgr   *Manager
	a, b  *models.Tenant
}

// newFixture seeds tenant A (tier1) and tenant B (tier3, white-label) with
// user u1 a member of both; A was joined first.
func newFixture(t *testing.T, primary string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	a := &models.Tenant{Name: "A", Slug: "a", Tier: models.Tier1, IsActive: true,
		Features: entitlement.DefaultFeatures(models.Tier1)}
	b := &models.Tenant{Name: "B", Slug: "b", Tier: models.Tier3, IsWhiteLabel: true, IsActive: true,
		Features: entitlement.DefaultFeatures(models.Tier3)}
	require.NoError(t, store.CreateTenant(ctx, a))
	require.NoError(t, store.CreateTenant(ctx, b))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: a.ID, Role: models.RoleStaff,
		IsPrimary: primary == "a", CreatedAt: base}))
	require.NoError(t, store.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: b.ID, Role: models.RoleOwner,
		IsPrimary: primary == "b", CreatedAt: base.Add(time.Hour)}))

	prefs := NewMemoryPreferenceStore()
	logger := logging.NewNop()
	ents := entitlement.NewResolver(entitlement.DefaultCatalog(), logger)
	mgr := NewManager(store, prefs, ents, theme.NewResolver(theme.Platform{}), logger)
	return &fixture{store: store, prefs: prefs, mgr: mgr, a: a, b: b}
}

func TestStart_DefaultTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("Primary membership wins without preference", func(t *testing.T) {
		f := newFixture(t, "b")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		assert.Equal(t, f.b.ID, s.ActiveTenant().ID)
		assert.Equal(t, models.RoleOwner, s.View().Role)
		assert.True(t, s.View().Entitlements.IsWhiteLabel)

		pref, _ := f.prefs.Get(ctx, "u1")
		assert.Equal(t, f.b.ID, pref)
	})

	t.Run("Earliest membership without primary", func(t *testing.T) {
		f := newFixture(t, "")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		assert.Equal(t, f.a.ID, s.ActiveTenant().ID)
		assert.False(t, s.View().Entitlements.IsAdmin)
	})

	t.Run("Stored preference honoured while still a member", func(t *testing.T) {
		f := newFixture(t, "b")
		require.NoError(t, f.prefs.Set(ctx, "u1", f.a.ID))
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		assert.Equal(t, f.a.ID, s.ActiveTenant().ID)
	})

	t.Run("Stale preference is ignored", func(t *testing.T) {
		f := newFixture(t, "b")
		require.NoError(t, f.prefs.Set(ctx, "u1", "someone-elses-tenant"))
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		assert.Equal(t, f.b.ID, s.ActiveTenant().ID)
		pref, _ := f.prefs.Get(ctx, "u1")
		assert.Equal(t, f.b.ID, pref)
	})

	t.Run("No memberships", func(t *testing.T) {
		f := newFixture(t, "")
		s, err := f.mgr.Start(ctx, "s2", "nobody")
		require.NoError(t, err)
		assert.Nil(t, s.ActiveTenant())
		assert.Empty(t, s.View().Entitlements.Features)
		assert.Empty(t, s.View().Entitlements.VisibleNav)
		assert.Equal(t, theme.Defaults().PrimaryColor, s.View().Theme.PrimaryColor)
	})
}

func TestStart_ReturnsExistingSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s1, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)
	s2, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	_, err = f.mgr.Start(ctx, "s1", "u2")
	assert.Error(t, err)
}

type countingDirectory struct {
	Directory
	calls atomic.Int32
	gate  chan struct{}
}

func (d *countingDirectory) GetMembershipsForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	d.calls.Add(1)
	<-d.gate
	return d.Directory.GetMembershipsForUser(ctx, userID)
}

func TestStart_ConcurrentStartsShareOneLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	dir := &countingDirectory{Directory: f.store, gate: make(chan struct{})}
	logger := logging.NewNop()
	mgr := NewManager(dir, f.prefs, entitlement.NewResolver(entitlement.DefaultCatalog(), logger),
		theme.NewResolver(theme.Platform{}), logger)

	var wg sync.WaitGroup
	results := make([]*Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := mgr.Start(ctx, "s1", "u1")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	// Let the goroutines pile up on the in-flight start before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(dir.gate)
	wg.Wait()

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, 1, mgr.Len())
	assert.LessOrEqual(t, dir.calls.Load(), int32(8))
	assert.GreaterOrEqual(t, dir.calls.Load(), int32(1))
}

func TestSwitch(t *testing.T) {
	ctx := context.Background()

	t.Run("Member tenant", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)

		require.NoError(t, s.Switch(ctx, f.b.ID))
		v := s.View()
		assert.Equal(t, f.b.ID, v.Tenant.ID)
		assert.Equal(t, models.RoleOwner, v.Role)
		assert.True(t, v.Entitlements.IsAdmin)
		assert.Equal(t, f.b.ID, v.Entitlements.TenantID)

		pref, _ := f.prefs.Get(ctx, "u1")
		assert.Equal(t, f.b.ID, pref)
	})

	t.Run("Non-member tenant leaves state unchanged", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		before := s.View()

		err = s.Switch(ctx, "not-mine")
		assert.ErrorIs(t, err, ErrNotAMember)
		assert.Same(t, before, s.View())
		pref, _ := f.prefs.Get(ctx, "u1")
		assert.Equal(t, f.a.ID, pref)
	})

	t.Run("Membership granted after start", func(t *testing.T) {
		f := newFixture(t, "a")
		c := &models.Tenant{Name: "C", Slug: "c", Tier: models.TierFree, IsActive: true}
		require.NoError(t, f.store.CreateTenant(ctx, c))
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)

		require.NoError(t, f.store.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: c.ID, Role: models.RoleViewer}))
		require.NoError(t, s.Switch(ctx, c.ID))
		assert.Equal(t, c.ID, s.ActiveTenant().ID)
		assert.Len(t, s.Memberships(), 3)
	})

	t.Run("Disabled tenant is refused", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		require.NoError(t, f.store.DisableTenant(ctx, f.b.ID))

		err = s.Switch(ctx, f.b.ID)
		assert.ErrorIs(t, err, ErrNotAMember)
		assert.Equal(t, f.a.ID, s.ActiveTenant().ID)
	})

	t.Run("Preference failure leaves state unchanged", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		s.m.prefs = failingPrefs{}

		err = s.Switch(ctx, f.b.ID)
		assert.Error(t, err)
		assert.Equal(t, f.a.ID, s.ActiveTenant().ID)
	})
}

type failingPrefs struct{}

func (failingPrefs) Get(ctx context.Context, userID string) (string, error) {
	return "", errors.New("unavailable")
}

func (failingPrefs) Set(ctx context.Context, userID, tenantID string) error {
	return errors.New("unavailable")
}

func TestSwitch_ConcurrentConvergesOnLastRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			target := f.a.ID
			if i%2 == 1 {
				target = f.b.ID
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Switch(ctx, target); err != nil {
					assert.ErrorIs(t, err, ErrSuperseded)
				}
			}()
		}
		wg.Wait()

		// A final, sequential switch is always the one that sticks.
		want := f.a.ID
		if round%2 == 1 {
			want = f.b.ID
		}
		require.NoError(t, s.Switch(ctx, want))
		v := s.View()
		assert.Equal(t, want, v.Tenant.ID)
		assert.Equal(t, want, v.Entitlements.TenantID, "view fields must come from one tenant")
		pref, _ := f.prefs.Get(ctx, "u1")
		assert.Equal(t, want, pref)
	}
}

func TestInvalidateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("Feature change is picked up", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		assert.False(t, s.View().Entitlements.Has(entitlement.FeatureCRM))

		_, err = f.store.UpdateTenantFeatures(ctx, f.a.ID, map[string]bool{"crm": true})
		require.NoError(t, err)
		require.NoError(t, f.mgr.InvalidateTenant(ctx, f.a.ID))

		assert.True(t, s.View().Entitlements.Has(entitlement.FeatureCRM))
		assert.Equal(t, int64(2), s.ActiveTenant().Version)
	})

	t.Run("Disabled tenant falls back to default", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)

		require.NoError(t, f.store.DisableTenant(ctx, f.a.ID))
		require.NoError(t, f.mgr.InvalidateTenant(ctx, f.a.ID))

		assert.Equal(t, f.b.ID, s.ActiveTenant().ID)
		assert.Len(t, s.Memberships(), 1)
	})

	t.Run("Other tenants untouched", func(t *testing.T) {
		f := newFixture(t, "a")
		s, err := f.mgr.Start(ctx, "s1", "u1")
		require.NoError(t, err)
		before := s.View()
		require.NoError(t, f.mgr.InvalidateTenant(ctx, f.b.ID))
		assert.Same(t, before, s.View())
	})
}

func TestInvalidateUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)
	other, err := f.mgr.Start(ctx, "s2", "u2")
	require.NoError(t, err)
	require.Nil(t, other.ActiveTenant())

	c := &models.Tenant{Name: "C", Slug: "c", Tier: models.TierFree, IsActive: true}
	require.NoError(t, f.store.CreateTenant(ctx, c))
	require.NoError(t, f.store.AddMembership(ctx, models.Membership{UserID: "u1", TenantID: c.ID, Role: models.RoleViewer}))
	require.NoError(t, f.mgr.InvalidateUser(ctx, "u1"))

	assert.Len(t, s.Memberships(), 3)
	assert.Equal(t, f.a.ID, s.ActiveTenant().ID)
	assert.Nil(t, other.ActiveTenant())
}

func TestEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	_, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)
	f.mgr.End("s1")
	f.mgr.End("s1")
	_, ok := f.mgr.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.mgr.Len())
}

func TestRedisPreferenceStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisPreferenceStore(client, time.Hour)
	ctx := context.Background()

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, store.Set(ctx, "u1", "tenant-a"))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got)
	assert.Equal(t, time.Hour, mr.TTL(preferenceKeyPrefix+"u1"))

	mr.FastForward(2 * time.Hour)
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestRedisPreferenceStore_WithManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	mr := miniredis.RunT(t)
	prefs := NewRedisPreferenceStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	require.NoError(t, prefs.Set(ctx, "u1", f.b.ID))

	logger := logging.NewNop()
	mgr := NewManager(f.store, prefs, entitlement.NewResolver(entitlement.DefaultCatalog(), logger),
		theme.NewResolver(theme.Platform{}), logger)
	for i := 0; i < 3; i++ {
		s, err := mgr.Start(ctx, fmt.Sprintf("s%d", i), "u1")
		require.NoError(t, err)
		assert.Equal(t, f.b.ID, s.ActiveTenant().ID)
	}
}

// gatedDirectory blocks GetTenant until release is closed.
type gatedDirectory struct {
	Directory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *gatedDirectory) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	d.once.Do(func() {
		close(d.entered)
		<-d.release
	})
	return d.Directory.GetTenant(ctx, id)
}

// prefsRejecting fails writes for one tenant.
type prefsRejecting struct {
	PreferenceStore
	tenantID string
}

func (p prefsRejecting) Set(ctx context.Context, userID, tenantID string) error {
	if tenantID == p.tenantID {
		return errors.New("unavailable")
	}
	return p.PreferenceStore.Set(ctx, userID, tenantID)
}

func TestSwitch_SupersededReportsIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "a")
	s, err := f.mgr.Start(ctx, "s1", "u1")
	require.NoError(t, err)

	gate := &gatedDirectory{Directory: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	f.mgr.dir = gate
	f.mgr.prefs = prefsRejecting{PreferenceStore: f.prefs, tenantID: f.b.ID}

	first := make(chan error, 1)
	go func() { first <- s.Switch(ctx, f.a.ID) }()
	<-gate.entered

	overtaken, winner := make(chan error, 1), make(chan error, 1)
	go func() { overtaken <- s.Switch(ctx, f.b.ID) }()
	require.Eventually(t, func() bool { return s.seq.Load() == 2 }, time.Second, time.Millisecond)
	go func() { winner <- s.Switch(ctx, f.b.ID) }()
	require.Eventually(t, func() bool { return s.seq.Load() == 3 }, time.Second, time.Millisecond)
	close(gate.release)

	require.NoError(t, <-first)
	assert.ErrorIs(t, <-overtaken, ErrSuperseded)
	err = <-winner
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, f.a.ID, s.ActiveTenant().ID, "the failed winner leaves the old tenant active")
}
