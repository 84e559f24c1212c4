package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostEntry is an immutable record of a metered API call. A nil TenantID
// marks platform-global usage.
type CostEntry struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	TenantID    *string         `json:"tenant_id,omitempty"`
	Endpoint    string          `json:"endpoint"`
	Provider    string          `json:"provider"`
	Description string          `json:"description"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Quantity    int64           `json:"quantity"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	// Compensates is the id of the entry this one negates.
	Compensates *string `json:"compensates,omitempty"`
}
