// Package config loads nanofetch settings from YAML, .env files and the environment.
package config

import (
	"time"

	"github.com/grafana/nanofetch"
)

// Config is the root configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig describes the upstream endpoint and the retry budget.
type APIConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Key           string        `yaml:"key"`
	City          string        `yaml:"city"`
	Method        string        `yaml:"method"`
	RequiredField string        `yaml:"required_field"`
	Units         string        `yaml:"units"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	Delay         time.Duration `yaml:"delay"`
}

// OutputConfig locates the delimited file records are appended to.
type OutputConfig struct {
	CSVPath string `yaml:"csv_path"`
}

// DatabaseConfig selects the relational store. An empty DSN disables it.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// StorageConfig describes the object storage destination. An empty Bucket disables uploads.
type StorageConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Gzip            bool   `yaml:"gzip"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

// ServerConfig configures the HTTP handler.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig configures periodic runs.
type ScheduleConfig struct {
	Cron   string   `yaml:"cron"`
	Cities []string `yaml:"cities"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Endpoint:      nanofetch.DefaultEndpoint,
			City:          "Bengaluru",
			Method:        "GET",
			RequiredField: nanofetch.DefaultRequiredField,
			Timeout:       nanofetch.DefaultTimeout,
			MaxAttempts:   nanofetch.DefaultMaxAttempts,
			Delay:         nanofetch.DefaultDelay,
		},
		Output: OutputConfig{
			CSVPath: "weather.csv",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "weather_data.db",
		},
		Storage: StorageConfig{
			Key: "weather.csv",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Schedule: ScheduleConfig{
			Cron: "@hourly",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Request builds the fetch request for city, falling back to the configured city.
func (c *Config) Request(city string) nanofetch.FetchRequest {
	if city == "" {
		city = c.API.City
	}
	return nanofetch.FetchRequest{
		Query:       city,
		Credential:  c.API.Key,
		Timeout:     c.API.Timeout,
		MaxAttempts: c.API.MaxAttempts,
		Delay:       c.API.Delay,
	}
}

// FetcherOptions translates the API section into nanofetch options.
func (c *Config) FetcherOptions() []nanofetch.Option {
	opts := []nanofetch.Option{
		nanofetch.WithEndpoint(c.API.Endpoint),
		nanofetch.WithMethod(c.API.Method),
		nanofetch.WithRequiredField(c.API.RequiredField),
	}
	if c.API.Units != "" {
		opts = append(opts, nanofetch.WithQueryParam("units", c.API.Units))
	}
	return opts
}
