package theme

import "tenantgate/pkg/models"

// Preset is a named set of overrides used to demo rebranding.
type Preset struct {
	Name  string             `json:"name"`
	Theme models.ThemeConfig `json:"theme"`
}

func preset(name, company, primary, secondary string) Preset {
	return Preset{Name: name, Theme: models.ThemeConfig{
		CompanyName:    &company,
		PrimaryColor:   &primary,
		SecondaryColor: &secondary,
	}}
}

// Presets returns the demo rebranding presets. The first one restores the
// platform look.
func Presets() []Preset {
	return []Preset{
		{Name: "Platform default"},
		preset("Bakery", "Tampa Bay Bakery", "#FF6B35", "#F7C59F"),
		preset("Auto dealer", "Miami Auto Group", "#00D4FF", "#7B68EE"),
		preset("Med spa", "Orlando Med Spa", "#E91E8C", "#9B59B6"),
		preset("Gym", "Jacksonville Fitness", "#FFD700", "#FF4500"),
	}
}
