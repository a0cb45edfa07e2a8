package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered under the environment.
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Port        string `koanf:"port"`
	Environment string `koanf:"environment"`

	DatabaseURL string `koanf:"database_url"`

	RedisURL          string `koanf:"redis_url"`
	WorkerConcurrency int    `koanf:"worker_concurrency"`

	JWTSecret      string        `koanf:"jwt_secret"`
	JWTExpiresIn   time.Duration `koanf:"jwt_expires_in"`
	LoginRateLimit float64       `koanf:"login_rate_limit"`

	CORSAllowOrigins string `koanf:"cors_allow_origins"`
	PageSize         int    `koanf:"page_size"`

	ImageStorage string `koanf:"image_storage"`
	MediaRoot    string `koanf:"media_root"`
	MediaURL     string `koanf:"media_url"`
	S3Bucket     string `koanf:"s3_bucket"`
	S3Region     string `koanf:"s3_region"`
	S3Endpoint   string `koanf:"s3_endpoint"`
	S3AccessKey  string `koanf:"s3_access_key"`
	S3SecretKey  string `koanf:"s3_secret_key"`
	S3PublicURL  string `koanf:"s3_public_url"`

	OTelServiceName string `koanf:"otel_service_name"`
	OTelEndpoint    string `koanf:"otel_endpoint"`
}

func defaults() Config {
	return Config{
		Port:              "8080",
		Environment:       "development",
		RedisURL:          "redis://localhost:6379",
		WorkerConcurrency: 10,
		JWTExpiresIn:      168 * time.Hour,
		LoginRateLimit:    5,
		CORSAllowOrigins:  "*",
		PageSize:          6,
		ImageStorage:      "local",
		MediaRoot:         "media",
		MediaURL:          "/media",
		S3Region:          "us-east-1",
		OTelServiceName:   "go-echo-foodgram-api",
		OTelEndpoint:      "http://localhost:4318",
	}
}

// envKeys maps environment variable names onto config keys.
var envKeys = map[string]string{
	"PORT":                        "port",
	"ENVIRONMENT":                 "environment",
	"DATABASE_URL":                "database_url",
	"REDIS_URL":                   "redis_url",
	"WORKER_CONCURRENCY":          "worker_concurrency",
	"JWT_SECRET":                  "jwt_secret",
	"JWT_EXPIRES_IN":              "jwt_expires_in",
	"LOGIN_RATE_LIMIT":            "login_rate_limit",
	"CORS_ALLOW_ORIGINS":          "cors_allow_origins",
	"PAGE_SIZE":                   "page_size",
	"IMAGE_STORAGE":               "image_storage",
	"MEDIA_ROOT":                  "media_root",
	"MEDIA_URL":                   "media_url",
	"S3_BUCKET":                   "s3_bucket",
	"S3_REGION":                   "s3_region",
	"S3_ENDPOINT":                 "s3_endpoint",
	"S3_ACCESS_KEY":               "s3_access_key",
	"S3_SECRET_KEY":               "s3_secret_key",
	"S3_PUBLIC_URL":               "s3_public_url",
	"OTEL_SERVICE_NAME":           "otel_service_name",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel_endpoint",
}

func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(key string) string {
		return envKeys[key]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTExpiresIn <= 0 {
		return fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}
	switch c.ImageStorage {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when IMAGE_STORAGE=s3")
		}
	default:
		return fmt.Errorf("unknown IMAGE_STORAGE %q", c.ImageStorage)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RedisAddr strips the scheme asynq does not accept.
func (c *Config) RedisAddr() string {
	return strings.TrimPrefix(c.RedisURL, "redis://")
}

func (c *Config) AllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
