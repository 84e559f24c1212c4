package entitlement

import "tenantgate/pkg/models"

// TierInfo describes a subscription tier for display and upgrade prompts.
type TierInfo struct {
	Tier         models.Tier  `json:"tier"`
	Name         string       `json:"name"`
	MonthlyPrice int          `json:"monthly_price"`
	Features     []FeatureKey `json:"features"`
}

var tiers = []TierInfo{
	{Tier: models.TierFree, Name: "Free", MonthlyPrice: 0},
	{Tier: models.Tier1, Name: "Starter", MonthlyPrice: 299, Features: []FeatureKey{
		FeatureContentForge, FeatureMockupGenerator, FeatureSocialPosting,
	}},
	{Tier: models.Tier2, Name: "Professional", MonthlyPrice: 599, Features: []FeatureKey{
		FeatureContentForge, FeatureMockupGenerator, FeatureSocialPosting,
		FeatureCRM, FeatureAnalytics, FeatureKnowledgeBase, FeatureBlog,
	}},
	{Tier: models.Tier3, Name: "Enterprise", MonthlyPrice: 999, Features: AllFeatures()},
}

// Tier returns the display information of t. Unknown tiers resolve to free.
func Tier(t models.Tier) TierInfo {
	for _, info := range tiers {
		if info.Tier == t {
			return info
		}
	}
	return tiers[0]
}

// DefaultFeatures returns the feature map a tenant on tier t starts with.
// Every known key is present so the map is explicit about disabled features.
func DefaultFeatures(t models.Tier) map[string]bool {
	out := make(map[string]bool, len(allFeatures))
	for _, k := range allFeatures {
		out[string(k)] = false
	}
	for _, k := range Tier(t).Features {
		out[string(k)] = true
	}
	return out
}

// RequiredTier returns the lowest tier whose defaults include the feature.
func RequiredTier(k FeatureKey) (models.Tier, bool) {
	for _, info := range tiers {
		for _, f := range info.Features {
			if f == k {
				return info.Tier, true
			}
		}
	}
	return "", false
}
