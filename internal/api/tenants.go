package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"tenantgate/pkg/models"
)

// CreateTenantRequest is the body of POST /tenants.
type CreateTenantRequest struct {
	Name string      `json:"name"`
	Slug string      `json:"slug"`
	Tier models.Tier `json:"tier"`
}

// FeaturesRequest is the body of PUT /tenants/{tenantId}/features.
type FeaturesRequest struct {
	Features map[string]bool `json:"features"`
}

// TierRequest is the body of PUT /tenants/{tenantId}/tier.
type TierRequest struct {
	Tier models.Tier `json:"tier"`
}

// WhiteLabelRequest is the body of PUT /tenants/{tenantId}/white-label.
type WhiteLabelRequest struct {
	Enabled bool `json:"enabled"`
}

// MemberRequest is the body of POST /tenants/{tenantId}/members.
type MemberRequest struct {
	UserID    string      `json:"user_id"`
	Role      models.Role `json:"role"`
	IsPrimary bool        `json:"is_primary"`
}

// authorizeTenant checks that the caller holds an admin role in the path's
// tenant, returning the tenant id and the role. ownerOnly narrows it to
// owners. Roles are read from the directory so revocations apply at once.
func (s *Server) authorizeTenant(c echo.Context, ownerOnly bool) (string, models.Role, error) {
	tenantID, err := pathParam(c, "tenantId")
	if err != nil {
		return "", "", err
	}
	id, err := identity(c)
	if err != nil {
		return "", "", err
	}
	role, err := s.tenants.RoleOf(c.Request().Context(), id.Subject, tenantID)
	switch {
	case err != nil:
		return "", "", err
	case ownerOnly && role != models.RoleOwner:
		return "", "", fmt.Errorf("%w: owner role required", errForbidden)
	case !role.IsAdmin():
		return "", "", fmt.Errorf("%w: admin role required", errForbidden)
	}
	return tenantID, role, nil
}

// CreateTenant creates a tenant owned by the caller
// (POST /api/v1/tenants)
func (s *Server) CreateTenant(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Tier == "" {
		req.Tier = models.TierFree
	}
	t, err := s.tenants.CreateTenant(c.Request().Context(), req.Name, req.Slug, req.Tier, id.Subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

// GetTenant returns a tenant the caller is a member of
// (GET /api/v1/tenants/{tenantId})
func (s *Server) GetTenant(c echo.Context) error {
	tenantID, err := pathParam(c, "tenantId")
	if err != nil {
		return err
	}
	id, err := identity(c)
	if err != nil {
		return err
	}
	if _, err := s.tenants.RoleOf(c.Request().Context(), id.Subject, tenantID); err != nil {
		return err
	}
	t, err := s.tenants.GetTenant(c.Request().Context(), tenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// PutFeatures toggles feature flags
// (PUT /api/v1/tenants/{tenantId}/features)
func (s *Server) PutFeatures(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, false)
	if err != nil {
		return err
	}
	var req FeaturesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	t, err := s.tenants.SetFeatures(c.Request().Context(), tenantID, req.Features)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// PutTier changes the subscription tier
// (PUT /api/v1/tenants/{tenantId}/tier)
func (s *Server) PutTier(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, true)
	if err != nil {
		return err
	}
	var req TierRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	t, err := s.tenants.ChangeTier(c.Request().Context(), tenantID, req.Tier)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// PutTheme replaces the theme overrides. An empty body clears them
// (PUT /api/v1/tenants/{tenantId}/theme)
func (s *Server) PutTheme(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, false)
	if err != nil {
		return err
	}
	var cfg *models.ThemeConfig
	if c.Request().ContentLength != 0 {
		cfg = &models.ThemeConfig{}
		if err := c.Bind(cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}
	t, err := s.tenants.UpdateTheme(c.Request().Context(), tenantID, cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// PutWhiteLabel turns white-labelling on or off
// (PUT /api/v1/tenants/{tenantId}/white-label)
func (s *Server) PutWhiteLabel(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, true)
	if err != nil {
		return err
	}
	var req WhiteLabelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	t, err := s.tenants.SetWhiteLabel(c.Request().Context(), tenantID, req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}

// AddMember grants a user a role in the tenant
// (POST /api/v1/tenants/{tenantId}/members)
func (s *Server) AddMember(c echo.Context) error {
	tenantID, caller, err := s.authorizeTenant(c, false)
	if err != nil {
		return err
	}
	var req MemberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	// admins cannot mint owners
	if req.Role == models.RoleOwner && caller != models.RoleOwner {
		return fmt.Errorf("%w: owner role required to add owners", errForbidden)
	}
	if err := s.tenants.AddMember(c.Request().Context(), tenantID, req.UserID, req.Role, req.IsPrimary); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DisableTenant soft-disables the tenant and deactivates its domains
// (DELETE /api/v1/tenants/{tenantId})
func (s *Server) DisableTenant(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, true)
	if err != nil {
		return err
	}
	if err := s.tenants.Disable(c.Request().Context(), tenantID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
