// Package entitlement computes which features, navigation items and
// permission flags a user holds within a tenant.
package entitlement

import "sort"

// FeatureKey is a known, gateable product feature.
type FeatureKey string

const (
	FeatureContentForge    FeatureKey = "content_forge"
	FeatureMockupGenerator FeatureKey = "mockup_generator"
	FeatureSocialPosting   FeatureKey = "social_posting"
	FeatureCRM             FeatureKey = "crm"
	FeatureAnalytics       FeatureKey = "analytics"
	FeatureKnowledgeBase   FeatureKey = "knowledge_base"
	FeatureBlog            FeatureKey = "blog"
	FeatureEmail           FeatureKey = "email"
	FeatureSMS             FeatureKey = "sms"
	FeatureBookings        FeatureKey = "bookings"
	FeatureAIReceptionist  FeatureKey = "ai_receptionist"
	FeatureCalendar        FeatureKey = "calendar"
)

// allFeatures is in display order.
var allFeatures = []FeatureKey{
	FeatureContentForge,
	FeatureMockupGenerator,
	FeatureSocialPosting,
	FeatureCRM,
	FeatureAnalytics,
	FeatureKnowledgeBase,
	FeatureBlog,
	FeatureEmail,
	FeatureSMS,
	FeatureBookings,
	FeatureAIReceptionist,
	FeatureCalendar,
}

var featureNames = map[FeatureKey]string{
	FeatureContentForge:    "Content Forge",
	FeatureMockupGenerator: "Mockup Generator",
	FeatureSocialPosting:   "Social Media Posting",
	FeatureCRM:             "CRM & Lead Management",
	FeatureAnalytics:       "Advanced Analytics",
	FeatureKnowledgeBase:   "Knowledge Base",
	FeatureBlog:            "Blog Management",
	FeatureEmail:           "Email Campaigns",
	FeatureSMS:             "SMS Marketing",
	FeatureBookings:        "Booking System",
	FeatureAIReceptionist:  "AI Receptionist",
	FeatureCalendar:        "Calendar Management",
}

// AllFeatures returns every known feature key in display order.
func AllFeatures() []FeatureKey {
	out := make([]FeatureKey, len(allFeatures))
	copy(out, allFeatures)
	return out
}

// ParseFeatureKey converts a raw string into a known key.
func ParseFeatureKey(raw string) (FeatureKey, bool) {
	k := FeatureKey(raw)
	_, ok := featureNames[k]
	return k, ok
}

// Name returns the human readable feature name.
func (k FeatureKey) Name() string {
	if n, ok := featureNames[k]; ok {
		return n
	}
	return string(k)
}

func sortFeatures(keys []FeatureKey) {
	order := make(map[FeatureKey]int, len(allFeatures))
	for i, k := range allFeatures {
		order[k] = i
	}
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })
}
