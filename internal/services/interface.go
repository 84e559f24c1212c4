package services

import (
	"context"
	"errors"

	"tenantgate/internal/events"
	"tenantgate/internal/session"
	"tenantgate/pkg/models"
)

// SessionManager is the part of the session manager requests go through.
type SessionManager interface {
	Start(ctx context.Context, sessionID, userID string) (*session.Session, error)
	Get(sessionID string) (*session.Session, bool)
	End(sessionID string)
	InvalidateTenant(ctx context.Context, tenantID string) error
	InvalidateUser(ctx context.Context, userID string) error
}

// SessionInvalidator returns the event handler that keeps live sessions in
// step with tenant changes.
func SessionInvalidator(sessions SessionManager) events.Handler {
	return func(ctx context.Context, ev events.TenantChanged) error {
		err := sessions.InvalidateTenant(ctx, ev.TenantID)
		if ev.UserID != "" {
			err = errors.Join(err, sessions.InvalidateUser(ctx, ev.UserID))
		}
		return err
	}
}

// DomainLookup resolves a request host to the custom domain serving it.
type DomainLookup interface {
	DomainForHost(ctx context.Context, host string) (*models.CustomDomain, error)
}

// Logger is the logging surface of the services.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
