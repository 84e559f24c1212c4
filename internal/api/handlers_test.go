package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantgate/internal/auth"
	"tenantgate/internal/domains"
	"tenantgate/internal/entitlement"
	"tenantgate/internal/events"
	"tenantgate/internal/ledger"
	"tenantgate/internal/logging"
	"tenantgate/internal/repository"
	"tenantgate/internal/services"
	"tenantgate/internal/session"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

const platformOwner = "owner"

type testDNS struct {
	mu    sync.Mutex
	cname map[string]string
	err   error
}

func (d *testDNS) LookupCNAME(ctx context.Context, host string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	if v, ok := d.cname[host]; ok {
		return v, nil
	}
	return "", domains.ErrRecordNotFound
}

func (d *testDNS) LookupTXT(ctx context.Context, name string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return nil, domains.ErrRecordNotFound
}

func (d *testDNS) point(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cname[host] = "app.tenantgate.io."
}

func (d *testDNS) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

type testCA struct{}

func (testCA) Issue(ctx context.Context, domain string) (*domains.Certificate, error) {
	return &domains.Certificate{Domain: domain, Serial: "42", NotAfter: time.Now().Add(90 * 24 * time.Hour)}, nil
}

type recordingWatcher struct {
	mu      sync.Mutex
	watched map[string]bool
}

func (w *recordingWatcher) Watch(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[id] {
		return false
	}
	w.watched[id] = true
	return true
}

func (w *recordingWatcher) Cancel(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.watched, id)
}

func (w *recordingWatcher) Watching(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watched[id]
}

type apiFixture struct {
	e       *echo.Echo
	srv     *Server
	store   *repository.MemoryStore
	tenants *services.TenantService
	dns     *testDNS
	watcher *recordingWatcher
	ledger  *ledger.Ledger
	acme    *models.Tenant
	globex  *models.Tenant
}

// headerAuth authenticates the user named in X-Test-User.
func headerAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := c.Request().Header.Get("X-Test-User")
		if user == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		ctx := auth.WithIdentity(c.Request().Context(), auth.Identity{Subject: user, SessionID: "sess-" + user})
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// newAPIFixture seeds Acme (tier1, white-label) owned by "owner" with
// "alice" as admin and "bob" as staff, and Globex (free) owned by "carol".
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNop()
	store := repository.NewMemoryStore()
	themes := theme.NewResolver(theme.Platform{Name: "Business OS"})
	ents, err := entitlement.NewCachedResolver(entitlement.NewResolver(entitlement.DefaultCatalog(), logger), 64)
	require.NoError(t, err)
	sessions := session.NewManager(store, session.NewMemoryPreferenceStore(), ents, themes, logger)

	bus := events.NewLocal()
	bus.Subscribe(services.SessionInvalidator(sessions))

	dns := &testDNS{cname: map[string]string{}}
	doms := domains.NewService(store, dns, testCA{}, domains.Config{CNAMETarget: "app.tenantgate.io", TokenPrefix: "tg-verify", MaxAttempts: 3}, logger)
	tenants := services.NewTenantService(store, bus, logger)
	led := ledger.New(ledger.NewMemoryStore(), ledger.DefaultPrices(), platformOwner, logger)
	watcher := &recordingWatcher{watched: map[string]bool{}}

	acme, err := tenants.CreateTenant(ctx, "Acme", "acme", models.Tier1, platformOwner)
	require.NoError(t, err)
	_, err = tenants.SetWhiteLabel(ctx, acme.ID, true)
	require.NoError(t, err)
	require.NoError(t, tenants.AddMember(ctx, acme.ID, "alice", models.RoleAdmin, false))
	require.NoError(t, tenants.AddMember(ctx, acme.ID, "bob", models.RoleStaff, false))
	globex, err := tenants.CreateTenant(ctx, "Globex", "globex", models.TierFree, "carol")
	require.NoError(t, err)

	srv := NewServer(Deps{
		Access:  services.NewAccessService(sessions, doms, store, themes),
		Tenants: tenants,
		Domains: doms,
		Watcher: watcher,
		Ledger:  led,
		Store:   store,
		Logger:  logger,
		Service: "tenantgate",
		Version: "test",
	})
	return &apiFixture{
		e:       NewRouter(srv, headerAuth),
		srv:     srv,
		store:   store,
		tenants: tenants,
		dns:     dns,
		watcher: watcher,
		ledger:  led,
		acme:    acme,
		globex:  globex,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func problem(t *testing.T, rec *httptest.ResponseRecorder, status int) models.ProblemDetails {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	p := decode[models.ProblemDetails](t, rec)
	assert.Equal(t, status, p.Status)
	return p
}

func TestHandleHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[models.HealthStatus](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "ok", h.Checks["store"])
	assert.Equal(t, "tenantgate", h.Service)
}

func TestAPI_RequiresIdentity(t *testing.T) {
	f := newAPIFixture(t)
	problem(t, f.do(t, http.MethodGet, "/api/v1/session", "", ""), http.StatusUnauthorized)
}

func TestSessionEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("Snapshot of the default tenant", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/session", "bob", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		snap := decode[services.Snapshot](t, rec)
		require.NotNil(t, snap.Tenant)
		assert.Equal(t, f.acme.ID, snap.Tenant.ID)
		assert.Equal(t, models.RoleStaff, snap.Role)
		assert.False(t, snap.Entitlements.IsAdmin)
		assert.Equal(t, snap.Tenant.Version, snap.TenantVersion)
	})

	t.Run("Switch to a non-member tenant is forbidden", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/session/switch", "bob", `{"tenant_id":"`+f.globex.ID+`"}`)
		problem(t, rec, http.StatusForbidden)

		rec = f.do(t, http.MethodGet, "/api/v1/session", "bob", "")
		assert.Equal(t, f.acme.ID, decode[services.Snapshot](t, rec).Tenant.ID)
	})

	t.Run("Switch without a tenant id", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, "/api/v1/session/switch", "bob", `{}`), http.StatusBadRequest)
	})

	t.Run("Switch between memberships", func(t *testing.T) {
		require.NoError(t, f.tenants.AddMember(context.Background(), f.globex.ID, "bob", models.RoleViewer, false))
		rec := f.do(t, http.MethodPost, "/api/v1/session/switch", "bob", `{"tenant_id":"`+f.globex.ID+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		snap := decode[services.Snapshot](t, rec)
		assert.Equal(t, f.globex.ID, snap.Tenant.ID)
		assert.Equal(t, models.RoleViewer, snap.Role)
	})

	t.Run("Entitlements and theme follow the session", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/entitlements", "bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, f.globex.ID, decode[entitlement.Set](t, rec).TenantID)

		rec = f.do(t, http.MethodGet, "/api/v1/theme/css", "bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/css")
		assert.Contains(t, rec.Body.String(), ":root")
	})

	t.Run("End session", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/v1/session", "bob", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestTenantEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/tenants/" + f.acme.ID

	t.Run("Staff cannot toggle features", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPut, base+"/features", "bob", `{"features":{"crm":true}}`), http.StatusForbidden)
	})

	t.Run("Non-members cannot read the tenant", func(t *testing.T) {
		problem(t, f.do(t, http.MethodGet, base, "carol", ""), http.StatusForbidden)
	})

	t.Run("Admin toggle reaches live sessions", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/entitlements", "bob", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, decode[entitlement.Set](t, rec).Features, entitlement.FeatureCRM)

		rec = f.do(t, http.MethodPut, base+"/features", "alice", `{"features":{"crm":true}}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[models.Tenant](t, rec).Features["crm"])

		rec = f.do(t, http.MethodGet, "/api/v1/entitlements", "bob", "")
		set := decode[entitlement.Set](t, rec)
		assert.Contains(t, set.Features, entitlement.FeatureCRM)
	})

	t.Run("Unknown feature is rejected", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPut, base+"/features", "alice", `{"features":{"warp":true}}`), http.StatusBadRequest)
	})

	t.Run("Tier changes are owner only", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPut, base+"/tier", "alice", `{"tier":"tier3"}`), http.StatusForbidden)
		rec := f.do(t, http.MethodPut, base+"/tier", platformOwner, `{"tier":"tier3"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, models.Tier3, decode[models.Tenant](t, rec).Tier)
		problem(t, f.do(t, http.MethodPut, base+"/tier", platformOwner, `{"tier":"gold"}`), http.StatusBadRequest)
	})

	t.Run("Theme validation", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPut, base+"/theme", "alice", `{"primary_color":"blue"}`), http.StatusBadRequest)
		rec := f.do(t, http.MethodPut, base+"/theme", "alice", `{"primary_color":"#123456","company_name":"Acme Studio"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, "/api/v1/theme", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		eff := decode[theme.Effective](t, rec)
		assert.Equal(t, "#123456", eff.PrimaryColor)
		assert.Equal(t, "Acme Studio", eff.CompanyName)
	})

	t.Run("Admins cannot add owners", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, base+"/members", "alice", `{"user_id":"dave","role":"owner"}`), http.StatusForbidden)
		rec := f.do(t, http.MethodPost, base+"/members", "alice", `{"user_id":"dave","role":"viewer"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	})

	t.Run("Create tenant makes the caller owner", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/tenants", "erin", `{"name":"Initech","slug":"initech"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decode[models.Tenant](t, rec)
		assert.Equal(t, models.TierFree, created.Tier)

		rec = f.do(t, http.MethodPut, "/api/v1/tenants/"+created.ID+"/features", "erin", `{"features":{"crm":true}}`)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		problem(t, f.do(t, http.MethodPost, "/api/v1/tenants", "erin", `{"name":"Initech","slug":"initech"}`), http.StatusConflict)
	})

	t.Run("Disable is owner only", func(t *testing.T) {
		problem(t, f.do(t, http.MethodDelete, base, "alice", ""), http.StatusForbidden)
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, base, platformOwner, "").Code)
		problem(t, f.do(t, http.MethodGet, base, platformOwner, ""), http.StatusForbidden)
	})
}

func TestDomainEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/tenants/" + f.acme.ID + "/domains"

	rec := f.do(t, http.MethodPost, base, "alice", `{"domain":"  Studio.Acme.TEST "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decode[DomainResponse](t, rec)
	assert.Equal(t, "studio.acme.test", d.Domain)
	assert.Equal(t, models.VerificationPending, d.VerificationStatus)
	assert.Equal(t, "_tg-verify.studio.acme.test", d.VerificationRecord)
	assert.True(t, d.Watching)
	one := base + "/" + d.ID

	t.Run("Duplicate domain conflicts", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, base, "alice", `{"domain":"studio.acme.test"}`), http.StatusConflict)
	})

	t.Run("Non-white-label tenants cannot add domains", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, "/api/v1/tenants/"+f.globex.ID+"/domains", "carol", `{"domain":"globex.test"}`), http.StatusForbidden)
	})

	t.Run("Invalid domain", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, base, "alice", `{"domain":"localhost"}`), http.StatusBadRequest)
	})

	t.Run("Certificate before verification", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, one+"/certificate", "alice", ""), http.StatusUnprocessableEntity)
	})

	t.Run("Pending verification answers 202", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, one+"/verify", "alice", "")
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[DomainResponse](t, rec).VerificationAttempts)
	})

	t.Run("Transient DNS failure answers 503", func(t *testing.T) {
		f.dns.fail(errors.New("i/o timeout"))
		defer f.dns.fail(nil)
		problem(t, f.do(t, http.MethodPost, one+"/verify", "alice", ""), http.StatusServiceUnavailable)

		rec := f.do(t, http.MethodGet, one+"/status", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decode[DomainStatus](t, rec).VerificationAttempts)
	})

	t.Run("Verify then issue", func(t *testing.T) {
		f.dns.point("studio.acme.test")
		rec := f.do(t, http.MethodPost, one+"/verify", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, models.VerificationVerified, decode[DomainResponse](t, rec).VerificationStatus)

		rec = f.do(t, http.MethodPost, one+"/certificate", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, one+"/status", "alice", "")
		status := decode[DomainStatus](t, rec)
		assert.True(t, status.Live)
		assert.Equal(t, models.SSLActive, status.SSLStatus)
	})

	t.Run("Host theme is served on the live domain", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/theme.css", nil)
		req.Host = "studio.acme.test"
		rec := httptest.NewRecorder()
		f.e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), ":root")
	})

	t.Run("Primary and listing", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, one+"/primary", "alice", "").Code)
		rec := f.do(t, http.MethodGet, base, "alice", "")
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]DomainResponse](t, rec)
		require.Len(t, list, 1)
		assert.True(t, list[0].IsPrimary)
	})

	t.Run("Other tenants cannot reach the domain", func(t *testing.T) {
		problem(t, f.do(t, http.MethodGet, "/api/v1/tenants/"+f.globex.ID+"/domains/"+d.ID, "carol", ""), http.StatusNotFound)
		problem(t, f.do(t, http.MethodGet, one, "bob", ""), http.StatusForbidden)
	})

	t.Run("Remove cancels the watcher", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, one, "alice", "").Code)
		assert.False(t, f.watcher.Watching(d.ID))
		problem(t, f.do(t, http.MethodGet, one, "alice", ""), http.StatusNotFound)
	})
}

func TestLedgerEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.ledger.RecordCall(ctx, "/api/blog/ai", nil, 2)
	require.NoError(t, err)
	globexID := f.globex.ID
	_, err = f.ledger.RecordCall(ctx, "/api/blog/ai", &globexID, 1)
	require.NoError(t, err)

	t.Run("Record a priced call for the active tenant", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/ledger/calls", "bob", `{"endpoint":"/api/studio/generate-mockups","quantity":3}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		e := decode[models.CostEntry](t, rec)
		require.NotNil(t, e.TenantID)
		assert.Equal(t, f.acme.ID, *e.TenantID)
		assert.Equal(t, "0.15", e.TotalCost.String())

		problem(t, f.do(t, http.MethodPost, "/api/v1/ledger/calls", "bob", `{"endpoint":"/api/unknown"}`), http.StatusBadRequest)
	})

	t.Run("Admins see only their tenant", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/ledger/entries", "alice", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		entries := decode[[]models.CostEntry](t, rec)
		require.Len(t, entries, 1)
		assert.Equal(t, f.acme.ID, *entries[0].TenantID)

		problem(t, f.do(t, http.MethodGet, "/api/v1/ledger/entries?platform_only=true", "alice", ""), http.StatusForbidden)
		problem(t, f.do(t, http.MethodGet, "/api/v1/ledger/entries", "bob", ""), http.StatusForbidden)
	})

	t.Run("Owner sees everything", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/ledger/total", platformOwner, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		total := decode[TotalResponse](t, rec)
		assert.Equal(t, 3, total.Entries)
		assert.Equal(t, "0.174", total.Total.String())

		rec = f.do(t, http.MethodGet, "/api/v1/ledger/total?platform_only=true", platformOwner, "")
		assert.Equal(t, "0.016", decode[TotalResponse](t, rec).Total.String())

		problem(t, f.do(t, http.MethodGet, "/api/v1/ledger/entries?platform_only=true&tenant_id=x", platformOwner, ""), http.StatusBadRequest)
		problem(t, f.do(t, http.MethodGet, "/api/v1/ledger/entries?from=yesterday", platformOwner, ""), http.StatusBadRequest)
	})

	t.Run("Time window", func(t *testing.T) {
		future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		rec := f.do(t, http.MethodGet, "/api/v1/ledger/entries?from="+future, platformOwner, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, decode[[]models.CostEntry](t, rec))
	})

	t.Run("Export", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/ledger/export", platformOwner, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")
		assert.Equal(t, 4, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1)

		rec = f.do(t, http.MethodGet, "/api/v1/ledger/export?format=xlsx", platformOwner, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotZero(t, rec.Body.Len())

		problem(t, f.do(t, http.MethodGet, "/api/v1/ledger/export?format=pdf", platformOwner, ""), http.StatusBadRequest)
	})

	t.Run("Compensate is owner only", func(t *testing.T) {
		entries, err := f.ledger.Query(ctx, ledger.Filter{PlatformOnly: true})
		require.NoError(t, err)
		path := "/api/v1/ledger/entries/" + entries[0].ID + "/compensate"

		problem(t, f.do(t, http.MethodPost, path, "alice", `{"reason":"refund"}`), http.StatusForbidden)
		rec := f.do(t, http.MethodPost, path, platformOwner, `{"reason":"refund"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.True(t, decode[models.CostEntry](t, rec).TotalCost.IsNegative())
		problem(t, f.do(t, http.MethodPost, path, platformOwner, `{"reason":"refund"}`), http.StatusConflict)

		problem(t, f.do(t, http.MethodPost, "/api/v1/ledger/entries/missing/compensate", platformOwner, `{}`), http.StatusNotFound)
	})

	t.Run("Clear requires the platform owner", func(t *testing.T) {
		problem(t, f.do(t, http.MethodDelete, "/api/v1/ledger/entries", "alice", ""), http.StatusForbidden)
		rec := f.do(t, http.MethodDelete, "/api/v1/ledger/entries", platformOwner, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, int64(4), decode[ClearResponse](t, rec).Removed)
	})
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domains.ErrDuplicateDomain:       http.StatusConflict,
		repository.ErrConflict:           http.StatusConflict,
		session.ErrSuperseded:            http.StatusConflict,
		domains.ErrTenantInactive:        http.StatusUnprocessableEntity,
		session.ErrNotAMember:            http.StatusForbidden,
		ledger.ErrUnauthorizedClear:      http.StatusForbidden,
		domains.ErrVerificationTransient: http.StatusServiceUnavailable,
		domains.ErrVerificationTerminal:  http.StatusUnprocessableEntity,
		repository.ErrNotFound:           http.StatusNotFound,
		theme.ErrInvalidTheme:            http.StatusBadRequest,
		errors.New("boom"):               http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestDocs(t *testing.T) {
	e := echo.New()
	RegisterDocs(e, "https://issuer.example.com/oauth2/default", "swagger-client")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://issuer.example.com/oauth2/default/v1/authorize")
	assert.NotContains(t, rec.Body.String(), "{oktaIssuer}")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientId: "swagger-client"`)
}

func TestThemePreview(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("Hidden outside demo mode", func(t *testing.T) {
		problem(t, f.do(t, http.MethodGet, "/api/v1/theme/presets", "alice", ""), http.StatusNotFound)
		problem(t, f.do(t, http.MethodPost, "/api/v1/theme/preview", "alice", `{"primary_color":"#FF6B35"}`), http.StatusNotFound)
	})

	f.srv.demoMode = true

	t.Run("Presets", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/theme/presets", "bob", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		presets := decode[[]theme.Preset](t, rec)
		require.NotEmpty(t, presets)
		assert.Equal(t, "Platform default", presets[0].Name)
	})

	t.Run("Preview does not save", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/theme/preview", "alice", `{"company_name":"Tampa Bay Bakery","primary_color":"#FF6B35"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		th := decode[theme.Effective](t, rec)
		assert.Equal(t, "Tampa Bay Bakery", th.CompanyName)
		assert.Equal(t, "#FF6B35", th.PrimaryColor)
		assert.Equal(t, f.acme.ID, th.TenantID)

		stored, err := f.store.GetTenant(context.Background(), f.acme.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.Theme)
	})

	t.Run("Admins only", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, "/api/v1/theme/preview", "bob", `{"primary_color":"#FF6B35"}`), http.StatusForbidden)
	})

	t.Run("Invalid color", func(t *testing.T) {
		problem(t, f.do(t, http.MethodPost, "/api/v1/theme/preview", "alice", `{"primary_color":"orange"}`), http.StatusBadRequest)
	})
}
