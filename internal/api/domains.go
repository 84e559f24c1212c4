package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tenantgate/internal/domains"
	"tenantgate/pkg/models"
)

// AddDomainRequest is the body of POST /tenants/{tenantId}/domains.
type AddDomainRequest struct {
	Domain string `json:"domain"`
}

// DomainResponse is a custom domain plus the DNS records the tenant must
// publish.
type DomainResponse struct {
	*models.CustomDomain
	VerificationRecord string `json:"verification_record"`
	Watching           bool   `json:"watching"`
}

// DomainStatus is the pollable progress of a custom domain.
type DomainStatus struct {
	ID                   string                    `json:"id"`
	Domain               string                    `json:"domain"`
	VerificationStatus   models.VerificationStatus `json:"verification_status"`
	SSLStatus            models.SSLStatus          `json:"ssl_status"`
	VerificationAttempts int                       `json:"verification_attempts"`
	LastError            *string                   `json:"last_error,omitempty"`
	Live                 bool                      `json:"live"`
	Watching             bool                      `json:"watching"`
}

func (s *Server) domainResponse(d *models.CustomDomain) DomainResponse {
	return DomainResponse{
		CustomDomain:       d,
		VerificationRecord: s.domains.VerificationRecord(d.Domain),
		Watching:           s.watching(d.ID),
	}
}

func (s *Server) watching(id string) bool {
	return s.watcher != nil && s.watcher.Watching(id)
}

// tenantDomain authorizes the caller for the path's tenant and loads the
// path's domain, which must belong to that tenant.
func (s *Server) tenantDomain(c echo.Context) (*models.CustomDomain, error) {
	tenantID, _, err := s.authorizeTenant(c, false)
	if err != nil {
		return nil, err
	}
	domainID, err := pathParam(c, "domainId")
	if err != nil {
		return nil, err
	}
	return s.domains.GetTenantDomain(c.Request().Context(), tenantID, domainID)
}

// ListDomains lists the tenant's custom domains
// (GET /api/v1/tenants/{tenantId}/domains)
func (s *Server) ListDomains(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, false)
	if err != nil {
		return err
	}
	list, err := s.domains.ListDomains(c.Request().Context(), tenantID)
	if err != nil {
		return err
	}
	out := make([]DomainResponse, 0, len(list))
	for _, d := range list {
		out = append(out, s.domainResponse(d))
	}
	return c.JSON(http.StatusOK, out)
}

// AddDomain registers a custom domain and starts background verification
// (POST /api/v1/tenants/{tenantId}/domains)
func (s *Server) AddDomain(c echo.Context) error {
	tenantID, _, err := s.authorizeTenant(c, false)
	if err != nil {
		return err
	}
	var req AddDomainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	ctx := c.Request().Context()
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !tenant.IsWhiteLabel {
		return errWhiteLabelOnly
	}
	d, err := s.domains.AddDomain(ctx, tenantID, req.Domain)
	if err != nil {
		return err
	}
	if s.watcher != nil {
		s.watcher.Watch(d.ID)
	}
	return c.JSON(http.StatusCreated, s.domainResponse(d))
}

// GetDomain returns one custom domain
// (GET /api/v1/tenants/{tenantId}/domains/{domainId})
func (s *Server) GetDomain(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.domainResponse(d))
}

// DomainStatus reports verification progress for polling pages
// (GET /api/v1/tenants/{tenantId}/domains/{domainId}/status)
func (s *Server) DomainStatus(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DomainStatus{
		ID:                   d.ID,
		Domain:               d.Domain,
		VerificationStatus:   d.VerificationStatus,
		SSLStatus:            d.SSLStatus,
		VerificationAttempts: d.VerificationAttempts,
		LastError:            d.LastError,
		Live:                 d.Live(),
		Watching:             s.watching(d.ID),
	})
}

// VerifyDomain checks DNS now. A still-pending domain answers 202 and is
// handed to the background poller.
// (POST /api/v1/tenants/{tenantId}/domains/{domainId}/verify)
func (s *Server) VerifyDomain(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	return s.transition(c, d.ID, s.domains.CheckVerification)
}

// IssueCertificate requests the certificate of a verified domain
// (POST /api/v1/tenants/{tenantId}/domains/{domainId}/certificate)
func (s *Server) IssueCertificate(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	return s.transition(c, d.ID, s.domains.IssueCertificate)
}

func (s *Server) transition(c echo.Context, id string, step func(context.Context, string) (*models.CustomDomain, error)) error {
	d, err := step(c.Request().Context(), id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, s.domainResponse(d))
	case errors.Is(err, domains.ErrVerificationPending), errors.Is(err, domains.ErrVerificationTransient):
		if s.watcher != nil {
			s.watcher.Watch(id)
		}
		if errors.Is(err, domains.ErrVerificationPending) && d != nil {
			return c.JSON(http.StatusAccepted, s.domainResponse(d))
		}
	}
	return err
}

// SetPrimaryDomain makes the domain the tenant's primary
// (POST /api/v1/tenants/{tenantId}/domains/{domainId}/primary)
func (s *Server) SetPrimaryDomain(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	if err := s.domains.SetPrimary(c.Request().Context(), d.TenantID, d.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveDomain deletes the domain and stops its background job
// (DELETE /api/v1/tenants/{tenantId}/domains/{domainId})
func (s *Server) RemoveDomain(c echo.Context) error {
	d, err := s.tenantDomain(c)
	if err != nil {
		return err
	}
	if s.watcher != nil {
		s.watcher.Cancel(d.ID)
	}
	if err := s.domains.RemoveDomain(c.Request().Context(), d.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
