package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tenantgate/internal/config"
)

// Price is the cost of one call to a metered endpoint.
type Price struct {
	Endpoint    string          `json:"endpoint"`
	Provider    string          `json:"provider"`
	Description string          `json:"description"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Unit        string          `json:"unit"`
}

// DefaultPrices is the built-in price table of the AI endpoints.
func DefaultPrices() []Price {
	return []Price{
		{Endpoint: "/api/studio/generate-mockups", Provider: "kie.ai (Nano Banana)", Description: "AI Image Generation", UnitCost: decimal.RequireFromString("0.05"), Unit: "per image"},
		{Endpoint: "/api/studio/analyze-product", Provider: "OpenRouter (Gemini 3 Pro)", Description: "AI Product Analysis", UnitCost: decimal.RequireFromString("0.005"), Unit: "per analysis"},
		{Endpoint: "/api/brain/capture", Provider: "OpenRouter (Gemini 3 Pro)", Description: "Thought Classification", UnitCost: decimal.RequireFromString("0.002"), Unit: "per thought"},
		{Endpoint: "/api/content-forge", Provider: "OpenRouter (Gemini 3 Pro)", Description: "AI Content Generation", UnitCost: decimal.RequireFromString("0.01"), Unit: "per generation"},
		{Endpoint: "/api/content-forge-2", Provider: "OpenRouter (Gemini 3 Pro)", Description: "AI Content Generation v2", UnitCost: decimal.RequireFromString("0.01"), Unit: "per generation"},
		{Endpoint: "/api/blog/ai", Provider: "OpenRouter (Gemini 3 Pro)", Description: "Blog AI Assistant", UnitCost: decimal.RequireFromString("0.008"), Unit: "per request"},
		{Endpoint: "/api/blog/analyze", Provider: "OpenRouter (Gemini 3 Pro)", Description: "Blog SEO Analysis", UnitCost: decimal.RequireFromString("0.005"), Unit: "per analysis"},
	}
}

// PricesFromConfig overlays configured prices on the defaults. A configured
// endpoint replaces the default entry with the same endpoint.
func PricesFromConfig(configured []config.EndpointPrice) ([]Price, error) {
	table := map[string]Price{}
	for _, p := range DefaultPrices() {
		table[p.Endpoint] = p
	}
	for _, c := range configured {
		cost, err := decimal.NewFromString(c.UnitCost)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", c.Endpoint, err)
		}
		if cost.IsNegative() {
			return nil, fmt.Errorf("price for %s is negative", c.Endpoint)
		}
		table[c.Endpoint] = Price{Endpoint: c.Endpoint, Provider: c.Provider, Description: c.Description, UnitCost: cost, Unit: c.Unit}
	}
	out := make([]Price, 0, len(table))
	for _, p := range table {
		out = append(out, p)
	}
	sortPrices(out)
	return out, nil
}

func sortPrices(ps []Price) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Endpoint < ps[j].Endpoint })
}
