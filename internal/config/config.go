package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret    string `yaml:"jwt_secret"`
		JWTSecretEnv string `yaml:"jwt_secret_env"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL      string `yaml:"ttl"`
		SeedFile string `yaml:"seed_file"`
	} `yaml:"catalog"`
	Leaderboard struct {
		CacheTTL    string `yaml:"cache_ttl"`
		PageSize    int    `yaml:"page_size"`
		MaxPageSize int    `yaml:"max_page_size"`
	} `yaml:"leaderboard"`
	Grader struct {
		Provider   string `yaml:"provider"`
		Model      string `yaml:"model"`
		BaseURL    string `yaml:"base_url"`
		APIKeyEnv  string `yaml:"api_key_env"`
		Timeout    string `yaml:"timeout"`
		MaxRetries *int   `yaml:"max_retries"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"grader"`
	Tasks struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"tasks"`
}

// Load reads YAML config from path and applies environment overrides.
// A missing file yields defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case !os.IsNotExist(err):
		return cfg, err
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("LLM_PROVIDER"); ok && v != "" {
		c.Grader.Provider = v
	}
	if v, ok := lookup("LLM_MODEL"); ok && v != "" {
		c.Grader.Model = v
	}
	if v, ok := lookup("LLM_TIMEOUT_S"); ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Grader.Timeout = (time.Duration(secs) * time.Second).String()
		}
	}
	if v, ok := lookup("LLM_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Grader.MaxRetries = &n
		}
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Postgres.URL = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup("JWT_SECRET"); ok && v != "" {
		c.Auth.JWTSecret = v
	}
}

// JWTSecret resolves the signing secret, preferring the configured env variable.
func (c Config) JWTSecret() string {
	if c.Auth.JWTSecretEnv != "" {
		if v := os.Getenv(c.Auth.JWTSecretEnv); v != "" {
			return v
		}
	}
	return c.Auth.JWTSecret
}

// GraderRetries returns the configured retry count, 2 when unset.
func (c Config) GraderRetries() int {
	if c.Grader.MaxRetries == nil {
		return 2
	}
	return *c.Grader.MaxRetries
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
