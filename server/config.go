package server

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TTLs for the two key families in the ephemeral state store.
const (
	PendingTTL  = 600 * time.Second
	IdentityTTL = 86400 * time.Second
)

// State validation policies for the callback. Both checks are independent;
// "both" consults the HMAC signature and the CSRF cookie.
const (
	StatePolicySignature = "signature"
	StatePolicyCookie    = "cookie"
	StatePolicyBoth      = "both"
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Broker   BrokerConfig   `yaml:"broker"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Backend  BackendConfig  `yaml:"backend"`
	Issuer   IssuerConfig   `yaml:"issuer"`
}

// ServerConfig controls listener, TLS, and HTTP concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains []string `yaml:"domains"`
	Email   string   `yaml:"email"`
}

// BrokerConfig controls the authorization relay itself.
type BrokerConfig struct {
	// AllowedLogin is the single allowlist entry compared case-insensitively
	// against the resolved upstream login. Leaving it empty is a hard
	// misconfiguration, never "allow all".
	AllowedLogin string `yaml:"allowed_login"`

	// StateValidation selects which callback state checks run:
	// "signature", "cookie", or "both" (default).
	StateValidation string `yaml:"state_validation"`

	// ConsentPage, when true, renders an interstitial page on GET /authorize
	// that requires an explicit POST before redirecting upstream.
	ConsentPage bool `yaml:"consent_page"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig selects the Redis-backed state store when Addr is set;
// otherwise the in-memory store is used.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// UpstreamConfig encapsulates the single upstream IdP. Either Issuer (OIDC
// discovery) or the explicit AuthorizeURL/TokenURL pair must be provided,
// plus the profile and emails API endpoints.
type UpstreamConfig struct {
	Issuer       string `yaml:"issuer"`
	AuthorizeURL string `yaml:"authorize_url"`
	TokenURL     string `yaml:"token_url"`
	ProfileURL   string `yaml:"profile_url"`
	EmailsURL    string `yaml:"emails_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// BackendConfig holds the protected read-only API credentials.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// IssuerConfig configures the built-in downstream issuer used for standalone
// deployments. When disabled, an external issuer must be wired in.
type IssuerConfig struct {
	Enabled   bool           `yaml:"enabled"`
	GrantTTL  time.Duration  `yaml:"grant_ttl"`
	AccessTTL time.Duration  `yaml:"access_ttl"`
	Clients   []ClientConfig `yaml:"clients"`
}

// ClientConfig describes one OAuth client known to the built-in issuer.
type ClientConfig struct {
	ClientID     string   `yaml:"client_id"`
	RedirectURIs []string `yaml:"redirect_uris"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
		},
		Broker: BrokerConfig{
			StateValidation: StatePolicyBoth,
		},
		Upstream: UpstreamConfig{
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			ProfileURL:   "https://api.github.com/user",
			EmailsURL:    "https://api.github.com/user/emails",
		},
		Backend: BackendConfig{
			BaseURL: "https://api.ynab.com/v1",
		},
		Issuer: IssuerConfig{
			Enabled:   true,
			GrantTTL:  5 * time.Minute,
			AccessTTL: time.Hour,
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"LEDGERD_SERVER_PUBLIC_URL":      func(v string) { cfg.Server.PublicURL = v },
		"LEDGERD_SERVER_DEV_LISTEN_ADDR": func(v string) { cfg.Server.DevListenAddr = v },
		"LEDGERD_SERVER_DEV_MODE":        func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"LEDGERD_ALLOWED_LOGIN":          func(v string) { cfg.Broker.AllowedLogin = v },
		"LEDGERD_STATE_VALIDATION":       func(v string) { cfg.Broker.StateValidation = v },
		"LEDGERD_REDIS_ADDR":             func(v string) { cfg.Broker.Redis.Addr = v },
		"LEDGERD_REDIS_PASSWORD":         func(v string) { cfg.Broker.Redis.Password = v },
		"LEDGERD_UPSTREAM_CLIENT_ID":     func(v string) { cfg.Upstream.ClientID = v },
		"LEDGERD_UPSTREAM_CLIENT_SECRET": func(v string) { cfg.Upstream.ClientSecret = v },
		"LEDGERD_BACKEND_TOKEN":          func(v string) { cfg.Backend.Token = v },
		"LEDGERD_BACKEND_BASE_URL":       func(v string) { cfg.Backend.BaseURL = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

// Validate performs startup sanity checks. Required-but-absent fields are
// reported here as errors rather than failing deep inside a flow.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}
	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	if strings.TrimSpace(c.Broker.AllowedLogin) == "" {
		return errors.New("broker.allowed_login is required; an empty allowlist never means allow-all")
	}
	switch c.Broker.StateValidation {
	case StatePolicySignature, StatePolicyCookie, StatePolicyBoth:
	default:
		return fmt.Errorf("broker.state_validation must be one of signature, cookie, both; got %q", c.Broker.StateValidation)
	}

	if c.Upstream.ClientID == "" || c.Upstream.ClientSecret == "" {
		return errors.New("upstream.client_id and upstream.client_secret are required")
	}
	if c.Upstream.Issuer == "" && (c.Upstream.AuthorizeURL == "" || c.Upstream.TokenURL == "") {
		return errors.New("upstream requires issuer or explicit authorize_url and token_url")
	}
	if c.Upstream.ProfileURL == "" {
		return errors.New("upstream.profile_url is required")
	}

	if c.Issuer.Enabled {
		for i, client := range c.Issuer.Clients {
			if client.ClientID == "" {
				return fmt.Errorf("issuer.clients[%d]: client_id is required", i)
			}
			for j, uri := range client.RedirectURIs {
				if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
					return fmt.Errorf("issuer.clients[%d] (%s): redirect_uris[%d] must be an http(s) URL", i, client.ClientID, j)
				}
			}
		}
	}

	return nil
}

// CallbackURL is the broker's own redirect_uri registered with the upstream.
func (c Config) CallbackURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + "/callback"
}
