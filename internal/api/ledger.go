package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"tenantgate/internal/ledger"
	"tenantgate/internal/services"
	"tenantgate/pkg/models"
)

// RecordCallRequest is the body of POST /ledger/calls.
type RecordCallRequest struct {
	Endpoint string `json:"endpoint"`
	Quantity int64  `json:"quantity"`
}

// CompensateRequest is the body of POST /ledger/entries/{entryId}/compensate.
type CompensateRequest struct {
	Reason string `json:"reason"`
}

// TotalResponse is the sum of the entries matching a filter.
type TotalResponse struct {
	Total   decimal.Decimal `json:"total"`
	Entries int             `json:"entries"`
}

// ClearResponse reports how many entries were removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

func actorOf(snap *services.Snapshot) ledger.Actor {
	return ledger.Actor{UserID: snap.UserID, Role: snap.Role}
}

// ledgerFilter binds the query and narrows it to what the caller may see:
// the platform owner sees everything, an admin only their active tenant.
func (s *Server) ledgerFilter(c echo.Context) (ledger.Filter, LedgerParams, error) {
	params, err := bindLedgerParams(c)
	if err != nil {
		return ledger.Filter{}, params, err
	}
	snap, err := s.snapshot(c)
	if err != nil {
		return ledger.Filter{}, params, err
	}
	f := params.Filter()
	if s.ledger.CanClear(actorOf(snap)) {
		return f, params, nil
	}
	if !snap.HasTenant() || !snap.Role.IsAdmin() {
		return f, params, fmt.Errorf("%w: admin role required", errForbidden)
	}
	if f.PlatformOnly || (f.TenantID != "" && f.TenantID != snap.Tenant.ID) {
		return f, params, fmt.Errorf("%w: costs of other tenants are restricted to the platform owner", errForbidden)
	}
	f.TenantID = snap.Tenant.ID
	return f, params, nil
}

// requireOwner rejects everyone but the platform owner.
func (s *Server) requireOwner(c echo.Context) (*services.Snapshot, error) {
	snap, err := s.snapshot(c)
	if err != nil {
		return nil, err
	}
	if !s.ledger.CanClear(actorOf(snap)) {
		return nil, fmt.Errorf("%w: platform owner required", errForbidden)
	}
	return snap, nil
}

// ListCosts lists ledger entries oldest first
// (GET /api/v1/ledger/entries)
func (s *Server) ListCosts(c echo.Context) error {
	f, _, err := s.ledgerFilter(c)
	if err != nil {
		return err
	}
	entries, err := s.ledger.Query(c.Request().Context(), f)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.CostEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// TotalCosts sums ledger entries
// (GET /api/v1/ledger/total)
func (s *Server) TotalCosts(c echo.Context) error {
	f, _, err := s.ledgerFilter(c)
	if err != nil {
		return err
	}
	entries, err := s.ledger.Query(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TotalResponse{Total: ledger.Sum(entries), Entries: len(entries)})
}

// ExportCosts downloads ledger entries as CSV (default) or XLSX
// (GET /api/v1/ledger/export)
func (s *Server) ExportCosts(c echo.Context) error {
	f, params, err := s.ledgerFilter(c)
	if err != nil {
		return err
	}
	format := "csv"
	if params.Format != nil {
		format = *params.Format
	}
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("%w: %s", errUnsupportedFormat, format)
	}
	entries, err := s.ledger.Query(c.Request().Context(), f)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("api-costs-%s.%s", s.now().UTC().Format("2006-01-02"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	if format == "xlsx" {
		data, err := ledger.XLSX(entries)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return ledger.WriteCSV(c.Response(), entries)
}

// ListPrices returns the configured price table
// (GET /api/v1/ledger/prices)
func (s *Server) ListPrices(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ledger.Prices())
}

// RecordCall meters a call made on behalf of the caller's active tenant
// (POST /api/v1/ledger/calls)
func (s *Server) RecordCall(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	var req RecordCallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	var tenantID *string
	if snap.HasTenant() {
		id := snap.Tenant.ID
		tenantID = &id
	}
	e, err := s.ledger.RecordCall(c.Request().Context(), req.Endpoint, tenantID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// RecordCost appends an arbitrary entry
// (POST /api/v1/ledger/entries)
func (s *Server) RecordCost(c echo.Context) error {
	if _, err := s.requireOwner(c); err != nil {
		return err
	}
	var entry models.CostEntry
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	// ids, timestamps and compensation links are assigned by the ledger
	entry.ID = ""
	entry.Compensates = nil
	e, err := s.ledger.Record(c.Request().Context(), entry)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// CompensateCost appends an entry negating another
// (POST /api/v1/ledger/entries/{entryId}/compensate)
func (s *Server) CompensateCost(c echo.Context) error {
	if _, err := s.requireOwner(c); err != nil {
		return err
	}
	entryID, err := pathParam(c, "entryId")
	if err != nil {
		return err
	}
	var req CompensateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	e, err := s.ledger.Compensate(c.Request().Context(), entryID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// ClearCosts empties the ledger. Only the platform owner acting as an admin
// may do so.
// (DELETE /api/v1/ledger/entries)
func (s *Server) ClearCosts(c echo.Context) error {
	snap, err := s.snapshot(c)
	if err != nil {
		return err
	}
	n, err := s.ledger.Clear(c.Request().Context(), actorOf(snap))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ClearResponse{Removed: n})
}
