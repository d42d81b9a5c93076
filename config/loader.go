package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by RequireAPIKey when no credential was configured.
var ErrMissingAPIKey = errors.New("API key not set in environment variable NANOFETCH_API_KEY")

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are ignored; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the YAML file at path over the defaults, then applies environment overrides.
// An empty path skips the file. Environment variables referenced as ${VAR} in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// firstEnv returns the first non-empty variable among names.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// applyEnv lets the environment override file values.
// Priority for the credential: NANOFETCH_API_KEY > WEATHER_API_KEY > API_KEY.
func applyEnv(cfg *Config) {
	if key := firstEnv("NANOFETCH_API_KEY", "WEATHER_API_KEY", "API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if bucket := firstEnv("NANOFETCH_BUCKET", "S3_BUCKET"); bucket != "" {
		cfg.Storage.Bucket = bucket
	}
	if city := os.Getenv("NANOFETCH_CITY"); city != "" {
		cfg.API.City = city
	}
	if dsn := os.Getenv("NANOFETCH_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if driver := os.Getenv("NANOFETCH_DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}
	if id := os.Getenv("OSS_ACCESS_KEY_ID"); id != "" {
		cfg.Storage.AccessKeyID = id
	}
	if secret := os.Getenv("OSS_ACCESS_KEY_SECRET"); secret != "" {
		cfg.Storage.AccessKeySecret = secret
	}
	if level := os.Getenv("NANOFETCH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if cfg.API.Endpoint == "" {
		return errors.New("api.endpoint is required")
	}
	if cfg.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if cfg.API.MaxAttempts < 1 {
		return errors.New("api.max_attempts must be at least 1")
	}
	if cfg.API.Delay < 0 {
		return errors.New("api.delay cannot be negative")
	}
	if cfg.Output.CSVPath == "" {
		return errors.New("output.csv_path is required")
	}

	switch cfg.Database.Driver {
	case "sqlite3", "postgres", "pgx":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}

	if cfg.Storage.Bucket != "" {
		if cfg.Storage.Region == "" {
			return errors.New("storage.region is required when storage.bucket is set")
		}
		if cfg.Storage.Key == "" {
			return errors.New("storage.key is required when storage.bucket is set")
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", cfg.Logging.Level)
	}

	return nil
}

// RequireAPIKey returns ErrMissingAPIKey if no credential is configured.
func (c *Config) RequireAPIKey() error {
	if c.API.Key == "" {
		return ErrMissingAPIKey
	}
	return nil
}
