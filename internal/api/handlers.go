// Package api contains the HTTP handlers for the tenant gateway
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"tenantgate/internal/auth"
	"tenantgate/internal/domains"
	"tenantgate/internal/ledger"
	"tenantgate/internal/services"
	"tenantgate/pkg/models"
)

// Logger is the logging surface of the handlers.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// DomainWatcher runs background verification for domains.
type DomainWatcher interface {
	Watch(domainID string) bool
	Cancel(domainID string)
	Watching(domainID string) bool
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the handlers call into.
type Deps struct {
	Access  *services.AccessService
	Tenants *services.TenantService
	Domains *domains.Service
	Watcher DomainWatcher
	Ledger  *ledger.Ledger
	Store   Pinger
	Logger  Logger
	Service string
	Version string
	// DemoMode serves theme presets and previews.
	DemoMode bool
}

// Server holds the dependencies for the API server.
type Server struct {
	access   *services.AccessService
	tenants  *services.TenantService
	domains  *domains.Service
	watcher  DomainWatcher
	ledger   *ledger.Ledger
	store    Pinger
	logger   Logger
	service  string
	version  string
	demoMode bool
	now      func() time.Time
}

// NewServer creates a new Server.
func NewServer(d Deps) *Server {
	return &Server{
		access:   d.Access,
		tenants:  d.Tenants,
		domains:  d.Domains,
		watcher:  d.Watcher,
		ledger:   d.Ledger,
		store:    d.Store,
		logger:   d.Logger,
		service:  d.Service,
		version:  d.Version,
		demoMode: d.DemoMode,
		now:      time.Now,
	}
}

// RegisterHandlers mounts the authenticated API on g, which must already run
// the auth middleware.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/session", s.GetSession)
	g.POST("/session/switch", s.SwitchTenant)
	g.DELETE("/session", s.EndSession)
	g.GET("/entitlements", s.GetEntitlements)
	g.GET("/theme", s.GetTheme)
	g.GET("/theme/css", s.GetThemeCSS)
	g.GET("/theme/presets", s.ListThemePresets)
	g.POST("/theme/preview", s.PreviewTheme)

	g.POST("/tenants", s.CreateTenant)
	g.GET("/tenants/:tenantId", s.GetTenant)
	g.DELETE("/tenants/:tenantId", s.DisableTenant)
	g.PUT("/tenants/:tenantId/features", s.PutFeatures)
	g.PUT("/tenants/:tenantId/tier", s.PutTier)
	g.PUT("/tenants/:tenantId/theme", s.PutTheme)
	g.PUT("/tenants/:tenantId/white-label", s.PutWhiteLabel)
	g.POST("/tenants/:tenantId/members", s.AddMember)

	g.GET("/tenants/:tenantId/domains", s.ListDomains)
	g.POST("/tenants/:tenantId/domains", s.AddDomain)
	g.GET("/tenants/:tenantId/domains/:domainId", s.GetDomain)
	g.DELETE("/tenants/:tenantId/domains/:domainId", s.RemoveDomain)
	g.GET("/tenants/:tenantId/domains/:domainId/status", s.DomainStatus)
	g.POST("/tenants/:tenantId/domains/:domainId/verify", s.VerifyDomain)
	g.POST("/tenants/:tenantId/domains/:domainId/certificate", s.IssueCertificate)
	g.POST("/tenants/:tenantId/domains/:domainId/primary", s.SetPrimaryDomain)

	g.GET("/ledger/entries", s.ListCosts)
	g.POST("/ledger/entries", s.RecordCost)
	g.DELETE("/ledger/entries", s.ClearCosts)
	g.POST("/ledger/entries/:entryId/compensate", s.CompensateCost)
	g.POST("/ledger/calls", s.RecordCall)
	g.GET("/ledger/total", s.TotalCosts)
	g.GET("/ledger/prices", s.ListPrices)
	g.GET("/ledger/export", s.ExportCosts)
}

// RegisterPublic mounts the routes that need no authentication.
func RegisterPublic(e *echo.Echo, s *Server) {
	e.GET("/healthz", s.HandleHealth)
	e.GET("/theme.css", s.HostThemeCSS)
}

// HandleHealth returns basic health status (always returns 200 OK). A failing
// store ping reports "degraded".
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: s.now(),
		Service:   s.service,
		Version:   s.version,
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status.Checks = map[string]string{"store": "ok"}
		if err := s.store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, status)
}

// identity returns the authenticated caller or a 401.
func identity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFrom(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return id, nil
}

// snapshot loads the caller's session view.
func (s *Server) snapshot(c echo.Context) (*services.Snapshot, error) {
	id, err := identity(c)
	if err != nil {
		return nil, err
	}
	return s.access.Snapshot(c.Request().Context(), id.SessionID, id.Subject)
}
