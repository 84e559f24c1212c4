package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// TenantChanged announces that a tenant's configuration changed. Version is
// the tenant version after the change. UserID is set when a membership of
// that user changed.
type TenantChanged struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id,omitempty"`
	Version  int64     `json:"version"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Handler consumes tenant change events.
type Handler func(ctx context.Context, ev TenantChanged) error

// Publisher announces tenant changes.
type Publisher interface {
	PublishTenantChanged(ctx context.Context, ev TenantChanged) error
}

// Logger is the logging surface of the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	subjectPrefix = "tenants."
	subjectSuffix = ".changed"
	// SubjectAll matches the change subject of every tenant.
	SubjectAll = subjectPrefix + "*" + subjectSuffix
)

// Subject is the NATS subject carrying changes of one tenant.
func Subject(tenantID string) string {
	return subjectPrefix + tenantID + subjectSuffix
}

// Conn is the part of *nats.Conn the package uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// NATSPublisher publishes events as JSON on the tenant's subject.
type NATSPublisher struct {
	nc Conn
}

func NewNATSPublisher(nc Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) PublishTenantChanged(ctx context.Context, ev TenantChanged) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal tenant event: %w", err)
	}
	if err := p.nc.Publish(Subject(ev.TenantID), data); err != nil {
		return fmt.Errorf("publish tenant event: %w", err)
	}
	return nil
}

// NATSSubscriber feeds tenant change events from NATS into a handler.
type NATSSubscriber struct {
	nc      Conn
	handler Handler
	logger  Logger
	timeout time.Duration
}

func NewNATSSubscriber(nc Conn, handler Handler, logger Logger) *NATSSubscriber {
	return &NATSSubscriber{nc: nc, handler: handler, logger: logger, timeout: 30 * time.Second}
}

// Start subscribes and blocks until ctx is cancelled.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(SubjectAll, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe tenant events: %w", err)
	}
	s.logger.Info("NATS subscriber started", "subject", SubjectAll)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.Error("Failed to unsubscribe", "subject", SubjectAll, "error", err)
	}
	return ctx.Err()
}

func (s *NATSSubscriber) handle(ctx context.Context, msg *nats.Msg) {
	s.logger.Debug("Received tenant event", "subject", msg.Subject, "size", len(msg.Data))

	var ev TenantChanged
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.logger.Error("Failed to unmarshal tenant event", "subject", msg.Subject, "error", err)
		return
	}
	if ev.TenantID == "" {
		ev.TenantID = strings.TrimSuffix(strings.TrimPrefix(msg.Subject, subjectPrefix), subjectSuffix)
	}
	hctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.handler(hctx, ev); err != nil {
		s.logger.Error("Failed to handle tenant event", "tenant_id", ev.TenantID, "error", err)
	}
}

// Local delivers events to in-process handlers. It stands in for NATS when
// the service runs as a single instance.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewLocal() *Local {
	return &Local{}
}

// Subscribe registers a handler.
func (l *Local) Subscribe(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

func (l *Local) PublishTenantChanged(ctx context.Context, ev TenantChanged) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	l.mu.RLock()
	handlers := append([]Handler(nil), l.handlers...)
	l.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishTenantChanged(ctx context.Context, ev TenantChanged) error { return nil }
