package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"

	"tenantgate/internal/ledger"
)

// pathParam binds a required simple-style path parameter.
func pathParam(c echo.Context, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, c.Param(name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || v == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s", name))
	}
	return v, nil
}

// LedgerParams are the query parameters of the ledger listing endpoints.
type LedgerParams struct {
	From         *time.Time `form:"from,omitempty" json:"from,omitempty"`
	To           *time.Time `form:"to,omitempty" json:"to,omitempty"`
	TenantID     *string    `form:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	PlatformOnly *bool      `form:"platform_only,omitempty" json:"platform_only,omitempty"`
	Format       *string    `form:"format,omitempty" json:"format,omitempty"`
}

func bindLedgerParams(c echo.Context) (LedgerParams, error) {
	var p LedgerParams
	q := c.QueryParams()
	if err := runtime.BindQueryParameter("form", true, false, "from", q, &p.From); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter from: %s", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "to", q, &p.To); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter to: %s", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "tenant_id", q, &p.TenantID); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter tenant_id: %s", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "platform_only", q, &p.PlatformOnly); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter platform_only: %s", err))
	}
	if err := runtime.BindQueryParameter("form", true, false, "format", q, &p.Format); err != nil {
		return p, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter format: %s", err))
	}
	return p, nil
}

// Filter converts the parameters into a ledger filter.
func (p LedgerParams) Filter() ledger.Filter {
	var f ledger.Filter
	if p.From != nil {
		f.From = *p.From
	}
	if p.To != nil {
		f.To = *p.To
	}
	if p.TenantID != nil {
		f.TenantID = *p.TenantID
	}
	if p.PlatformOnly != nil {
		f.PlatformOnly = *p.PlatformOnly
	}
	return f
}
