// Package theme merges a tenant's branding overrides over the platform
// defaults.
package theme

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tenantgate/pkg/models"
)

// Effective is a complete, self-consistent style set. Every field holds a
// usable value.
type Effective struct {
	TenantID     string  `json:"tenant_id,omitempty"`
	IsWhiteLabel bool    `json:"is_white_label"`
	LogoURL      *string `json:"logo_url"`
	LogoDarkURL  *string `json:"logo_dark_url"`
	FaviconURL   *string `json:"favicon_url"`
	CompanyName  string  `json:"company_name"`
	Tagline      string  `json:"tagline"`
	SupportEmail string  `json:"support_email"`

	PrimaryColor    string `json:"primary_color"`
	SecondaryColor  string `json:"secondary_color"`
	BackgroundColor string `json:"background_color"`
	SurfaceColor    string `json:"surface_color"`
	TextPrimary     string `json:"text_primary"`
	TextSecondary   string `json:"text_secondary"`
	TextMuted       string `json:"text_muted"`
	BorderColor     string `json:"border_color"`
	SuccessColor    string `json:"success_color"`
	WarningColor    string `json:"warning_color"`
	ErrorColor      string `json:"error_color"`

	FontHeading string `json:"font_heading"`
	FontBody    string `json:"font_body"`

	FooterText           string `json:"footer_text"`
	CustomCSS            string `json:"custom_css"`
	ShowPlatformBranding bool   `json:"show_platform_branding"`
}

// Fonts lists the typefaces a tenant may choose.
var Fonts = []string{
	"Inter",
	"Roboto",
	"Open Sans",
	"Lato",
	"Montserrat",
	"Poppins",
	"Playfair Display",
	"Merriweather",
	"Source Sans Pro",
	"Raleway",
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// Platform holds the platform identity used when a tenant sets nothing.
type Platform struct {
	Name         string
	Tagline      string
	SupportEmail string
}

// Resolver computes effective themes. It performs no I/O.
type Resolver struct {
	defaults Effective
}

// NewResolver builds a resolver whose defaults carry the platform identity.
func NewResolver(p Platform) *Resolver {
	d := Defaults()
	if p.Name != "" {
		d.CompanyName = p.Name
	}
	if p.Tagline != "" {
		d.Tagline = p.Tagline
	}
	if p.SupportEmail != "" {
		d.SupportEmail = p.SupportEmail
	}
	return &Resolver{defaults: d}
}

// Defaults returns the built-in platform theme.
func Defaults() Effective {
	return Effective{
		CompanyName:          "Business OS",
		Tagline:              "Business OS",
		PrimaryColor:         "#39FF14",
		SecondaryColor:       "#0CE293",
		BackgroundColor:      "#121212",
		SurfaceColor:         "#1A1A1A",
		TextPrimary:          "#FFFFFF",
		TextSecondary:        "#A0AEC0",
		TextMuted:            "#718096",
		BorderColor:          "#2D3748",
		SuccessColor:         "#10B981",
		WarningColor:         "#FFC800",
		ErrorColor:           "#FF3B3B",
		FontHeading:          "Inter",
		FontBody:             "Inter",
		ShowPlatformBranding: true,
	}
}

// Defaults returns the resolver's platform defaults.
func (r *Resolver) Defaults() Effective {
	return r.defaults
}

// Resolve merges the tenant's overrides field by field. A nil tenant or an
// unconfigured theme yields the platform defaults.
func (r *Resolver) Resolve(tenant *models.Tenant) Effective {
	out := r.defaults
	if tenant == nil {
		return out
	}
	out.TenantID = tenant.ID
	out.IsWhiteLabel = tenant.IsWhiteLabel

	cfg := tenant.Theme
	if cfg == nil {
		return out
	}

	out.LogoURL = url(cfg.LogoURL, out.LogoURL)
	out.LogoDarkURL = url(cfg.LogoDarkURL, out.LogoDarkURL)
	out.FaviconURL = url(cfg.FaviconURL, out.FaviconURL)
	out.CompanyName = text(cfg.CompanyName, out.CompanyName)
	out.Tagline = text(cfg.Tagline, out.Tagline)
	out.SupportEmail = text(cfg.SupportEmail, out.SupportEmail)

	out.PrimaryColor = color(cfg.PrimaryColor, out.PrimaryColor)
	out.SecondaryColor = color(cfg.SecondaryColor, out.SecondaryColor)
	out.BackgroundColor = color(cfg.BackgroundColor, out.BackgroundColor)
	out.SurfaceColor = color(cfg.SurfaceColor, out.SurfaceColor)
	out.TextPrimary = color(cfg.TextPrimary, out.TextPrimary)
	out.TextSecondary = color(cfg.TextSecondary, out.TextSecondary)
	out.TextMuted = color(cfg.TextMuted, out.TextMuted)
	out.BorderColor = color(cfg.BorderColor, out.BorderColor)
	out.SuccessColor = color(cfg.SuccessColor, out.SuccessColor)
	out.WarningColor = color(cfg.WarningColor, out.WarningColor)
	out.ErrorColor = color(cfg.ErrorColor, out.ErrorColor)

	out.FontHeading = font(cfg.FontHeading, out.FontHeading)
	out.FontBody = font(cfg.FontBody, out.FontBody)

	out.FooterText = text(cfg.FooterText, out.FooterText)
	out.CustomCSS = text(cfg.CustomCSS, out.CustomCSS)

	// Platform attribution can only be hidden by white-label tenants, even if
	// a stale flag survives a downgrade.
	if tenant.IsWhiteLabel && cfg.HidePlatformBranding != nil && *cfg.HidePlatformBranding {
		out.ShowPlatformBranding = false
	}
	return out
}

func text(v *string, def string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	return strings.TrimSpace(*v)
}

func url(v *string, def *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return def
	}
	s := strings.TrimSpace(*v)
	return &s
}

func color(v *string, def string) string {
	if v == nil || !hexColor.MatchString(strings.TrimSpace(*v)) {
		return def
	}
	return strings.ToUpper(strings.TrimSpace(*v))
}

func font(v *string, def string) string {
	if v == nil {
		return def
	}
	for _, f := range Fonts {
		if strings.EqualFold(f, strings.TrimSpace(*v)) {
			return f
		}
	}
	return def
}

// ValidColor reports whether s is an accepted hex color.
func ValidColor(s string) bool {
	return hexColor.MatchString(s)
}

// ValidFont reports whether s names an allowed typeface.
func ValidFont(s string) bool {
	return font(&s, "") != ""
}

// CSSVariables returns the custom properties renderers inject into :root.
func (e Effective) CSSVariables() map[string]string {
	return map[string]string{
		"--theme-primary":        e.PrimaryColor,
		"--theme-secondary":      e.SecondaryColor,
		"--theme-bg-primary":     e.BackgroundColor,
		"--theme-bg-secondary":   e.SurfaceColor,
		"--theme-bg-glass":       alpha(e.SurfaceColor, "CC"),
		"--theme-text-primary":   e.TextPrimary,
		"--theme-text-secondary": e.TextSecondary,
		"--theme-text-muted":     e.TextMuted,
		"--theme-border":         e.BorderColor,
		"--theme-glass-border":   alpha(e.BorderColor, "80"),
		"--theme-success":        e.SuccessColor,
		"--theme-warning":        e.WarningColor,
		"--theme-error":          e.ErrorColor,
		"--theme-accent":         e.PrimaryColor,
		"--theme-glow":           alpha(e.PrimaryColor, "50"),
		"--theme-shadow":         alpha(e.PrimaryColor, "20"),
		"--theme-info":           "#3B82F6",
		"--theme-font-heading":   e.FontHeading,
		"--theme-font-body":      e.FontBody,
	}
}

// alpha appends an alpha channel to six-digit colors only; shorthand and
// colors that already carry alpha are returned unchanged.
func alpha(c, a string) string {
	if len(c) == 7 {
		return c + a
	}
	return c
}

// Stylesheet renders the variables as a :root block followed by the
// tenant's custom CSS.
func (e Effective) Stylesheet() string {
	vars := e.CSSVariables()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s;\n", k, vars[k])
	}
	b.WriteString("}\n")
	if e.CustomCSS != "" {
		b.WriteString(e.CustomCSS)
		b.WriteString("\n")
	}
	return b.String()
}
