package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tenantgate/pkg/models"
)

var (
	// ErrUnauthorizedClear is returned when someone other than the platform
	// owner, acting as an admin, tries to clear the ledger.
	ErrUnauthorizedClear = errors.New("only the platform owner may clear the cost ledger")
	// ErrUnknownEndpoint is returned when pricing a call to an endpoint
	// without a configured price.
	ErrUnknownEndpoint = errors.New("no price configured for endpoint")
	// ErrEntryNotFound is returned for unknown entry ids.
	ErrEntryNotFound = errors.New("cost entry not found")
	// ErrInvalidEntry is returned for entries missing required fields.
	ErrInvalidEntry = errors.New("invalid cost entry")
	// ErrInvalidFilter is returned when a filter asks for a tenant and for
	// platform-only entries at once.
	ErrInvalidFilter = errors.New("tenant and platform-only filters are exclusive")
	// ErrAlreadyCompensated is returned when an entry already has a
	// compensating entry.
	ErrAlreadyCompensated = errors.New("cost entry is already compensated")
)

// Filter selects entries. Zero fields do not constrain.
type Filter struct {
	// From is inclusive, To exclusive.
	From     time.Time
	To       time.Time
	TenantID string
	// PlatformOnly selects entries without a tenant.
	PlatformOnly bool
}

// Validate rejects contradictory filters.
func (f Filter) Validate() error {
	if f.PlatformOnly && f.TenantID != "" {
		return ErrInvalidFilter
	}
	return nil
}

// Match reports whether e passes the filter.
func (f Filter) Match(e models.CostEntry) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	if f.PlatformOnly && e.TenantID != nil {
		return false
	}
	if f.TenantID != "" && (e.TenantID == nil || *e.TenantID != f.TenantID) {
		return false
	}
	return true
}

// Store persists entries. Append must be atomic per entry and safe for
// concurrent use. List returns entries oldest first.
type Store interface {
	// Append adds an entry. At most one entry may compensate a given entry;
	// a second one fails with ErrAlreadyCompensated.
	Append(ctx context.Context, e models.CostEntry) error
	Get(ctx context.Context, id string) (*models.CostEntry, error)
	List(ctx context.Context, f Filter) ([]models.CostEntry, error)
	Truncate(ctx context.Context) (int64, error)
}

// Actor identifies who performs a privileged ledger operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// Logger is the logging surface the ledger needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Ledger is the append-only cost-attribution log.
type Ledger struct {
	store   Store
	prices  map[string]Price
	ownerID string
	logger  Logger
	now     func() time.Time
}

// New creates a ledger. ownerID is the only user allowed to clear it.
func New(store Store, prices []Price, ownerID string, logger Logger) *Ledger {
	table := make(map[string]Price, len(prices))
	for _, p := range prices {
		table[p.Endpoint] = p
	}
	return &Ledger{store: store, prices: table, ownerID: ownerID, logger: logger, now: time.Now}
}

// Record appends an entry. ID and timestamp are assigned when empty and a
// zero total is derived from unit cost and quantity.
func (l *Ledger) Record(ctx context.Context, e models.CostEntry) (models.CostEntry, error) {
	if strings.TrimSpace(e.Provider) == "" || strings.TrimSpace(e.Endpoint) == "" {
		return models.CostEntry{}, fmt.Errorf("%w: endpoint and provider are required", ErrInvalidEntry)
	}
	if e.Quantity == 0 {
		return models.CostEntry{}, fmt.Errorf("%w: quantity must not be zero", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.TotalCost.IsZero() {
		e.TotalCost = e.UnitCost.Mul(decimal.NewFromInt(e.Quantity))
	}
	if e.TenantID != nil && *e.TenantID == "" {
		e.TenantID = nil
	}
	if err := l.store.Append(ctx, e); err != nil {
		return models.CostEntry{}, err
	}
	return e, nil
}

// RecordCall prices a metered call from the price table and records it.
func (l *Ledger) RecordCall(ctx context.Context, endpoint string, tenantID *string, quantity int64) (models.CostEntry, error) {
	p, ok := l.prices[endpoint]
	if !ok {
		return models.CostEntry{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	if quantity <= 0 {
		quantity = 1
	}
	return l.Record(ctx, models.CostEntry{
		TenantID:    tenantID,
		Endpoint:    p.Endpoint,
		Provider:    p.Provider,
		Description: p.Description,
		UnitCost:    p.UnitCost,
		Quantity:    quantity,
	})
}

// Compensate appends an entry negating entryID. The compensated entry is
// left untouched. Each entry is compensated at most once, and compensating
// entries themselves cannot be compensated.
func (l *Ledger) Compensate(ctx context.Context, entryID, reason string) (models.CostEntry, error) {
	orig, err := l.store.Get(ctx, entryID)
	if err != nil {
		return models.CostEntry{}, err
	}
	if orig.Compensates != nil {
		return models.CostEntry{}, fmt.Errorf("%w: %s is itself a compensation", ErrInvalidEntry, orig.ID)
	}
	desc := "Compensation for " + orig.ID
	if reason != "" {
		desc += ": " + reason
	}
	return l.Record(ctx, models.CostEntry{
		TenantID:    orig.TenantID,
		Endpoint:    orig.Endpoint,
		Provider:    orig.Provider,
		Description: desc,
		UnitCost:    orig.UnitCost,
		Quantity:    -orig.Quantity,
		TotalCost:   orig.TotalCost.Neg(),
		Compensates: &orig.ID,
	})
}

// Query returns matching entries oldest first.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]models.CostEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return l.store.List(ctx, f)
}

// Total sums the total cost of matching entries.
func (l *Ledger) Total(ctx context.Context, f Filter) (decimal.Decimal, error) {
	entries, err := l.Query(ctx, f)
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(entries), nil
}

// Sum adds up the total cost of entries.
func Sum(entries []models.CostEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.TotalCost)
	}
	return total
}

// CanClear reports whether actor may clear the ledger.
func (l *Ledger) CanClear(actor Actor) bool {
	return l.ownerID != "" && actor.Role.IsAdmin() && actor.UserID == l.ownerID
}

// Clear removes every entry and returns how many were removed.
func (l *Ledger) Clear(ctx context.Context, actor Actor) (int64, error) {
	if !l.CanClear(actor) {
		l.logger.Warn("Refused cost ledger clear", "user_id", actor.UserID, "role", string(actor.Role))
		return 0, ErrUnauthorizedClear
	}
	n, err := l.store.Truncate(ctx)
	if err != nil {
		return 0, err
	}
	l.logger.Info("Cost ledger cleared", "user_id", actor.UserID, "entries", n)
	return n, nil
}

// Prices returns the configured price table.
func (l *Ledger) Prices() []Price {
	out := make([]Price, 0, len(l.prices))
	for _, p := range l.prices {
		out = append(out, p)
	}
	sortPrices(out)
	return out
}
