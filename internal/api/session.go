package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

// SwitchRequest is the body of POST /session/switch.
type SwitchRequest struct {
	TenantID string `json:"tenant_id"`
}

// GetSession returns the caller's snapshot, starting the session if needed
// (GET /api/v1/session)
func (s *Server) GetSession(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// SwitchTenant changes the active tenant
// (POST /api/v1/session/switch)
func (s *Server) SwitchTenant(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req SwitchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.TenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant_id is required")
	}
	snap, err := s.access.Switch(c.Request().Context(), id.SessionID, id.Subject, req.TenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// EndSession tears down the caller's session without touching the login
// (DELETE /api/v1/session)
func (s *Server) EndSession(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	s.access.EndSession(id.SessionID)
	return c.NoContent(http.StatusNoContent)
}

// GetEntitlements returns the active tenant's entitlement set
// (GET /api/v1/entitlements)
func (s *Server) GetEntitlements(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap.Entitlements)
}

// GetTheme returns the effective theme of the active tenant
// (GET /api/v1/theme)
func (s *Server) GetTheme(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap.Theme)
}

// GetThemeCSS renders the active tenant's theme as a stylesheet
// (GET /api/v1/theme/css)
func (s *Server) GetThemeCSS(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, no-cache")
	return c.Blob(http.StatusOK, "text/css; charset=utf-8", []byte(snap.Theme.Stylesheet()))
}

// HostThemeCSS renders the theme of the tenant owning the request host
// (GET /theme.css)
func (s *Server) HostThemeCSS(c echo.Context) error {
	th, err := s.access.ThemeForHost(c.Request().Context(), c.Request().Host)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return c.Blob(http.StatusOK, "text/css; charset=utf-8", []byte(th.Stylesheet()))
}

// ListThemePresets returns the demo rebranding presets. Only served in demo
// mode (GET /api/v1/theme/presets)
func (s *Server) ListThemePresets(c echo.Context) error {
	if !s.demoMode {
		return echo.ErrNotFound
	}
	return c.JSON(http.StatusOK, theme.Presets())
}

// PreviewTheme renders overrides against the active tenant without saving
// them. Only served in demo mode, to admins (POST /api/v1/theme/preview)
func (s *Server) PreviewTheme(c echo.Context) error {
	if !s.demoMode {
		return echo.ErrNotFound
	}
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	if !snap.HasTenant() {
		return errNoActiveTenant
	}
	if !snap.Entitlements.IsAdmin {
		return errForbidden
	}
	var cfg models.ThemeConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	th, err := s.access.PreviewTheme(snap.Tenant, &cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, th)
}
