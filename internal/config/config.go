package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Webhook WebhookConfig `yaml:"webhook"`
	N8N     N8NConfig     `yaml:"n8n"`
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	PublicDir string `yaml:"public_dir"`
}

type AuthConfig struct {
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type BridgeConfig struct {
	URL string `yaml:"url"`
}

type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type N8NConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      4000,
			Host:      "0.0.0.0",
			PublicDir: "public",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "data/sessions.db",
		},
		Bridge: BridgeConfig{
			URL: "http://localhost:3000",
		},
		Webhook: WebhookConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads the yaml config at path over the defaults, then applies
// environment overrides. A missing file is not an error: environment and
// defaults alone are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over the loaded values. The names
// match the original deployment's .env contract.
func (c *Config) applyEnv() {
	if v := os.Getenv("DASHBOARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PUBLIC_DIR"); v != "" {
		c.Server.PublicDir = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("CLEVIO_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv("CLEVIO_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Auth.TokenSecret = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		c.Bridge.URL = v
	}
	if v := os.Getenv("N8N_API_URL"); v != "" {
		c.N8N.APIURL = v
	}
	if v := os.Getenv("N8N_API_KEY"); v != "" {
		c.N8N.APIKey = v
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}
