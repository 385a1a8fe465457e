package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/zhouzirui/gchat-relay/internal/auth"
)

// Config aggregates the relay's settings.
type Config struct {
	Server  ServerConfig
	Chat    ChatConfig
	Backend BackendConfig
	Session SessionConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port        string `env:"PORT" envDefault:"5000"`
	WebhookPath string `env:"WEBHOOK_PATH" envDefault:"/webhook"`
}

// ChatConfig describes how inbound Google Chat calls are authenticated.
type ChatConfig struct {
	ProjectNumber string `env:"GCP_PROJECT_NUMBER,required,notEmpty"`
	Issuer        string `env:"CHAT_ISSUER" envDefault:"chat@system.gserviceaccount.com"`
	JWKSURL       string `env:"CHAT_JWKS_URL" envDefault:"https://www.googleapis.com/service_accounts/v1/jwk/chat@system.gserviceaccount.com"`
	BotName       string `env:"BOT_NAME" envDefault:"OpenWebUI"`
}

// BackendConfig describes the OpenWebUI API.
type BackendConfig struct {
	BaseURL string        `env:"OWUI_API_URL" envDefault:"http://localhost:3000/api/v1"`
	APIKey  string        `env:"OWUI_API_KEY,required,notEmpty"`
	Timeout time.Duration `env:"OWUI_TIMEOUT" envDefault:"15s"`
}

// SessionConfig controls the conversation to backend-session mapping.
type SessionConfig struct {
	// IdleTTL of zero keeps sessions until the bot is removed from the space.
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"0s"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Chat.ProjectNumber = strings.TrimSpace(c.Chat.ProjectNumber)
	c.Chat.Issuer = strings.TrimSpace(c.Chat.Issuer)
	c.Chat.BotName = strings.TrimSpace(c.Chat.BotName)
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	c.Backend.APIKey = strings.TrimSpace(c.Backend.APIKey)
	c.Server.WebhookPath = strings.TrimSpace(c.Server.WebhookPath)
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = "/webhook"
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		c.Server.WebhookPath = "/" + c.Server.WebhookPath
	}
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if strings.Contains(c.Server.Port, " ") {
		return fmt.Errorf("invalid PORT value: %q", c.Server.Port)
	}
	if _, err := strconv.ParseUint(c.Chat.ProjectNumber, 10, 64); err != nil {
		return fmt.Errorf("invalid GCP_PROJECT_NUMBER value %q: must be numeric", c.Chat.ProjectNumber)
	}
	if c.Chat.Issuer == "" {
		return fmt.Errorf("CHAT_ISSUER must not be empty")
	}
	if err := validateHTTPURL("CHAT_JWKS_URL", c.Chat.JWKSURL); err != nil {
		return err
	}
	if err := validateHTTPURL("OWUI_API_URL", c.Backend.BaseURL); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid OWUI_TIMEOUT value %s: must be positive", c.Backend.Timeout)
	}
	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("invalid SESSION_IDLE_TTL value %s: must not be negative", c.Session.IdleTTL)
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s value %q: must be an absolute http(s) URL", key, raw)
	}
	return nil
}

// Addr is the listen address. PORT may be a bare port, ":8080" or "host:port".
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

// NewVerifier builds the token verifier for inbound calls.
func (c ChatConfig) NewVerifier() *auth.JWTVerifier {
	keys := auth.NewKeySet(c.JWKSURL, nil)
	return auth.NewJWTVerifier(keys, c.Issuer, c.ProjectNumber, auth.WithLeeway(30*time.Second))
}
