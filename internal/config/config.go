package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr    string `mapstructure:"addr"`
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	NATS struct {
		URL           string `mapstructure:"url"`
		MaxReconnects int    `mapstructure:"max_reconnects"`
	} `mapstructure:"nats"`
	Auth struct {
		OktaDomain      string `mapstructure:"okta_domain"`
		ClientID        string `mapstructure:"client_id"`
		ClientSecret    string `mapstructure:"client_secret"`
		RedirectURL     string `mapstructure:"redirect_url"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Platform struct {
		OwnerUserID  string `mapstructure:"owner_user_id"`
		Name         string `mapstructure:"name"`
		Tagline      string `mapstructure:"tagline"`
		SupportEmail string `mapstructure:"support_email"`
	} `mapstructure:"platform"`
	Session struct {
		CookieName    string        `mapstructure:"cookie_name"`
		PreferenceTTL time.Duration `mapstructure:"preference_ttl"`
	} `mapstructure:"session"`
	Domains struct {
		CNAMETarget  string        `mapstructure:"cname_target"`
		TokenPrefix  string        `mapstructure:"token_prefix"`
		MaxAttempts  int           `mapstructure:"max_attempts"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
		MaxWait      time.Duration `mapstructure:"max_wait"`
		CertRetries  int           `mapstructure:"cert_retries"`
	} `mapstructure:"domains"`
	Certificates struct {
		Provider string        `mapstructure:"provider"`
		URL      string        `mapstructure:"url"`
		APIKey   string        `mapstructure:"api_key"`
		Timeout  time.Duration `mapstructure:"timeout"`
		CertDir  string        `mapstructure:"cert_dir"`
	} `mapstructure:"certificates"`
	Navigation struct {
		CatalogFile string `mapstructure:"catalog_file"`
	} `mapstructure:"navigation"`
	Entitlements struct {
		CacheSize int `mapstructure:"cache_size"`
	} `mapstructure:"entitlements"`
	Ledger struct {
		Prices []EndpointPrice `mapstructure:"prices"`
	} `mapstructure:"ledger"`
	Debug struct {
		DemoMode bool `mapstructure:"demo_mode"`
	} `mapstructure:"debug"`
}

// EndpointPrice is the configured cost of one metered endpoint.
type EndpointPrice struct {
	Endpoint    string `mapstructure:"endpoint"`
	Provider    string `mapstructure:"provider"`
	Description string `mapstructure:"description"`
	UnitCost    string `mapstructure:"unit_cost"`
	Unit        string `mapstructure:"unit"`
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.ToUpper(c.Environment) == "DEV"
}

// DemoModeEnabled reports whether the demo debug flag is on. It is only
// honoured outside production.
func (c *Config) DemoModeEnabled() bool {
	return c.Debug.DemoMode && strings.ToUpper(c.Environment) != "PROD"
}

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in . and ./config; a missing file is not
// an error since every key has a default or an environment override.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("TENANTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.Domains.CNAMETarget = strings.ToLower(strings.TrimSpace(config.Domains.CNAMETarget))

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.name", "tenantgate")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("platform.name", "Business OS")
	v.SetDefault("platform.tagline", "Business OS")
	v.SetDefault("session.cookie_name", "tg_session")
	v.SetDefault("session.preference_ttl", 90*24*time.Hour)
	v.SetDefault("domains.cname_target", "app.tenantgate.io")
	v.SetDefault("domains.token_prefix", "tg-verify")
	v.SetDefault("domains.max_attempts", 10)
	v.SetDefault("domains.poll_interval", 30*time.Second)
	v.SetDefault("domains.max_wait", 48*time.Hour)
	v.SetDefault("domains.cert_retries", 5)
	v.SetDefault("certificates.provider", "self-signed")
	v.SetDefault("certificates.timeout", 30*time.Second)
	v.SetDefault("certificates.cert_dir", "./certs")
	v.SetDefault("entitlements.cache_size", 1024)
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	iss := strings.TrimSpace(input)
	return strings.TrimRight(iss, "/")
}
