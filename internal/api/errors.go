package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"tenantgate/internal/domains"
	"tenantgate/internal/ledger"
	"tenantgate/internal/repository"
	"tenantgate/internal/services"
	"tenantgate/internal/session"
	"tenantgate/internal/theme"
	"tenantgate/pkg/models"
)

var (
	errForbidden         = errors.New("forbidden")
	errNoActiveTenant    = errors.New("no active tenant")
	errWhiteLabelOnly    = errors.New("custom domains require a white-label tenant")
	errUnsupportedFormat = errors.New("unsupported export format")
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domains.ErrDuplicateDomain), errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, session.ErrSuperseded),
		errors.Is(err, ledger.ErrAlreadyCompensated):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotAMember),
		errors.Is(err, ledger.ErrUnauthorizedClear),
		errors.Is(err, errForbidden),
		errors.Is(err, errWhiteLabelOnly):
		return http.StatusForbidden
	case errors.Is(err, domains.ErrVerificationTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, domains.ErrVerificationTerminal), errors.Is(err, domains.ErrNotVerified),
		errors.Is(err, domains.ErrTenantInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domains.ErrVerificationPending):
		return http.StatusAccepted
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, domains.ErrDomainNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, domains.ErrInvalidDomain),
		errors.Is(err, services.ErrUnknownFeature),
		errors.Is(err, services.ErrInvalidTier),
		errors.Is(err, services.ErrInvalidTenant),
		errors.Is(err, theme.ErrInvalidTheme),
		errors.Is(err, ledger.ErrInvalidEntry),
		errors.Is(err, ledger.ErrInvalidFilter),
		errors.Is(err, ledger.ErrUnknownEndpoint),
		errors.Is(err, errNoActiveTenant),
		errors.Is(err, errUnsupportedFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders every handler error as an RFC 7807 Problem Details
// response.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := statusFor(err)
		detail := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			detail = fmt.Sprint(he.Message)
		}
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			if logger != nil {
				logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
			}
			detail = http.StatusText(status)
		}

		problem := models.ProblemDetails{
			Type:     "about:blank",
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: c.Request().URL.Path,
		}
		if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
			problem.TraceID = sc.TraceID().String()
		}
		writeError(c.Response(), problem)
	}
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(w http.ResponseWriter, problem models.ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}
