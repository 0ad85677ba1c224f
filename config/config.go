package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// BackendConfig describes the remote document-processing backend
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	RootURL        string `yaml:"root_url"`
	APIKey         string `yaml:"api_key"` // sent as x-functions-key when set
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// AuthConfig holds the Google sign-in credentials and session settings.
// Missing Google credentials are a valid operating mode: the app runs
// with authentication disabled.
type AuthConfig struct {
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	RedirectURL        string `yaml:"redirect_url"`
	JWTSecret          string `yaml:"jwt_secret"`
	SessionExpireHours int    `yaml:"session_expire_hours"`
}

// GoogleConfigured reports whether the identity provider is usable
func (a *AuthConfig) GoogleConfigured() bool {
	return a.GoogleClientID != "" && a.GoogleClientSecret != ""
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from an optional YAML file, applies
// DOCSCANNER_* environment overrides (a .env file is honored when
// present) and fills in defaults. Every option is optional; the backend
// base URL defaults to the local development address.
func Load(path string) (*Config, error) {
	// Best effort; production deployments set real environment variables
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:7071"
	}
	if cfg.Backend.RootURL == "" {
		cfg.Backend.RootURL = cfg.Backend.BaseURL
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 300
	}
	if cfg.Backend.MaxUploadBytes == 0 {
		cfg.Backend.MaxUploadBytes = 50 * 1024 * 1024
	}
	if cfg.Auth.SessionExpireHours == 0 {
		cfg.Auth.SessionExpireHours = 24
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "processing_history.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCSCANNER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCSCANNER_API_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("DOCSCANNER_BACKEND_URL"); v != "" {
		cfg.Backend.RootURL = v
	}
	if v := os.Getenv("DOCSCANNER_FUNCTION_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("DOCSCANNER_GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("DOCSCANNER_GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("DOCSCANNER_REDIRECT_URL"); v != "" {
		cfg.Auth.RedirectURL = v
	}
	if v := os.Getenv("DOCSCANNER_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DOCSCANNER_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}
