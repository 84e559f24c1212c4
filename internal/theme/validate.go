package theme

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tenantgate/pkg/models"
)

// ErrInvalidTheme is returned for theme overrides an admin may not save.
var ErrInvalidTheme = errors.New("invalid theme")

// Validate checks admin-supplied overrides. Resolve tolerates bad values by
// falling back; saving them is refused so the admin sees the mistake.
func Validate(cfg *models.ThemeConfig) error {
	if cfg == nil {
		return nil
	}
	colors := map[string]*string{
		"primary_color":    cfg.PrimaryColor,
		"secondary_color":  cfg.SecondaryColor,
		"background_color": cfg.BackgroundColor,
		"surface_color":    cfg.SurfaceColor,
		"text_primary":     cfg.TextPrimary,
		"text_secondary":   cfg.TextSecondary,
		"text_muted":       cfg.TextMuted,
		"border_color":     cfg.BorderColor,
		"success_color":    cfg.SuccessColor,
		"warning_color":    cfg.WarningColor,
		"error_color":      cfg.ErrorColor,
	}
	var problems []string
	for name, v := range colors {
		if v != nil && *v != "" && !ValidColor(strings.TrimSpace(*v)) {
			problems = append(problems, fmt.Sprintf("%s %q is not a hex color", name, *v))
		}
	}
	for name, v := range map[string]*string{"font_heading": cfg.FontHeading, "font_body": cfg.FontBody} {
		if v != nil && *v != "" && !ValidFont(*v) {
			problems = append(problems, fmt.Sprintf("%s %q is not an allowed font", name, *v))
		}
	}
	if cfg.SupportEmail != nil && *cfg.SupportEmail != "" && !strings.Contains(*cfg.SupportEmail, "@") {
		problems = append(problems, "support_email is not an email address")
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInvalidTheme, strings.Join(problems, "; "))
}
