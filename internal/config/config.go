package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working directory.
const ConfigPath = "config.yaml"

// CorpusConfig selects where devotional documents are read from. When
// Endpoint is set the corpus is served from object storage, otherwise Dir.
type CorpusConfig struct {
	Dir       string `yaml:"dir"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
}

// GenerationConfig points at an OpenAI-compatible completion endpoint.
type GenerationConfig struct {
	BaseURL        string `yaml:"baseURL"`
	APIKey         string `yaml:"apiKey"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// RateLimitConfig bounds submissions per client per window. Redis is
// optional; with no address configured rate limiting is disabled.
type RateLimitConfig struct {
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	Limit         int    `yaml:"limit"`
	WindowSeconds int    `yaml:"windowSeconds"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string           `yaml:"port"`
	LogLevel          string           `yaml:"logLevel"`
	DatabaseURL       string           `yaml:"databaseURL"`
	ConsentSecret     string           `yaml:"consentSecret"`
	SessionSecret     string           `yaml:"sessionSecret"`
	AdminPasswordHash string           `yaml:"adminPasswordHash"`
	TrustProxyHeaders bool             `yaml:"trustProxyHeaders"`
	Corpus            CorpusConfig     `yaml:"corpus"`
	Generation        GenerationConfig `yaml:"generation"`
	RateLimit         RateLimitConfig  `yaml:"rateLimit"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SOUL_AUDIT_TOKEN_SECRET"); v != "" {
		cfg.ConsentSecret = v
	}
	if v := os.Getenv("SOUL_AUDIT_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("SOUL_AUDIT_ADMIN_HASH"); v != "" {
		cfg.AdminPasswordHash = v
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RateLimit.RedisAddr = v
	}
	if v := os.Getenv("CORPUS_ENDPOINT"); v != "" {
		cfg.Corpus.Endpoint = v
	}
	if v := os.Getenv("CORPUS_ACCESS_KEY"); v != "" {
		cfg.Corpus.AccessKey = v
	}
	if v := os.Getenv("CORPUS_SECRET_KEY"); v != "" {
		cfg.Corpus.SecretKey = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.ConsentSecret == "" {
		return errors.New("config: consentSecret is required (set in config.yaml or SOUL_AUDIT_TOKEN_SECRET)")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: sessionSecret is required (set in config.yaml or SOUL_AUDIT_SESSION_SECRET)")
	}
	if cfg.Corpus.Dir == "" && cfg.Corpus.Endpoint == "" {
		return errors.New("config: corpus.dir or corpus.endpoint is required (set in config.yaml)")
	}
	if cfg.Corpus.Endpoint != "" && cfg.Corpus.Bucket == "" {
		return errors.New("config: corpus.bucket is required when corpus.endpoint is set")
	}
	return nil
}
