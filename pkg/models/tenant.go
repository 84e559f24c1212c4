package models

import (
	"time"
)

// Tier is a subscription tier. Tiers are ordered: free < tier1 < tier2 < tier3.
type Tier string

const (
	TierFree Tier = "free"
	Tier1    Tier = "tier1"
	Tier2    Tier = "tier2"
	Tier3    Tier = "tier3"
)

var tierRank = map[Tier]int{
	TierFree: 0,
	Tier1:    1,
	Tier2:    2,
	Tier3:    3,
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the position of the tier in the ordering. Unknown tiers rank
// below free.
func (t Tier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether t is the same as or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank() && t.Valid()
}

// Tenant is a business account.
type Tenant struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Tier         Tier            `json:"tier"`
	IsWhiteLabel bool            `json:"is_white_label"`
	Features     map[string]bool `json:"features"`
	Theme        *ThemeConfig    `json:"theme,omitempty"`
	IsActive     bool            `json:"is_active"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand tenants to renderers without
// sharing the feature map or theme.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	if t.Features != nil {
		c.Features = make(map[string]bool, len(t.Features))
		for k, v := range t.Features {
			c.Features[k] = v
		}
	}
	if t.Theme != nil {
		th := *t.Theme
		c.Theme = &th
	}
	return &c
}
