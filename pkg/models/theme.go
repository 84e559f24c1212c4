package models

// ThemeConfig holds a tenant's branding overrides. A nil field means "use the
// platform default".
type ThemeConfig struct {
	LogoURL      *string `json:"logo_url,omitempty"`
	LogoDarkURL  *string `json:"logo_dark_url,omitempty"`
	FaviconURL   *string `json:"favicon_url,omitempty"`
	CompanyName  *string `json:"company_name,omitempty"`
	Tagline      *string `json:"tagline,omitempty"`
	SupportEmail *string `json:"support_email,omitempty"`

	PrimaryColor    *string `json:"primary_color,omitempty"`
	SecondaryColor  *string `json:"secondary_color,omitempty"`
	BackgroundColor *string `json:"background_color,omitempty"`
	SurfaceColor    *string `json:"surface_color,omitempty"`
	TextPrimary     *string `json:"text_primary,omitempty"`
	TextSecondary   *string `json:"text_secondary,omitempty"`
	TextMuted       *string `json:"text_muted,omitempty"`
	BorderColor     *string `json:"border_color,omitempty"`
	SuccessColor    *string `json:"success_color,omitempty"`
	WarningColor    *string `json:"warning_color,omitempty"`
	ErrorColor      *string `json:"error_color,omitempty"`

	FontHeading *string `json:"font_heading,omitempty"`
	FontBody    *string `json:"font_body,omitempty"`

	FooterText           *string `json:"footer_text,omitempty"`
	CustomCSS            *string `json:"custom_css,omitempty"`
	HidePlatformBranding *bool   `json:"hide_platform_branding,omitempty"`
}
