package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	defaultSecretsPath = "./secrets.yaml"

	defaultPort          = "0.0.0.0:8080"
	defaultDatabasePath  = "grader.db"
	defaultRedisAddr     = "localhost:6379"
	defaultSessionTTL    = 12 * time.Hour
	defaultSweepInterval = 10 * time.Minute
	defaultUploadLimit   = "32 MiB"
	defaultMaxFiles      = 200
)

// Config is the `grader:` section of config.yaml.
type Config struct {
	Port  string `yaml:"port"`
	Debug bool   `yaml:"debug"`

	DatabaseURL    string `yaml:"database_url"`
	DatabasePath   string `yaml:"db_path"`
	DatabaseDriver string `yaml:"db_driver"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	UploadLimit   string        `yaml:"upload_limit"`
	MaxFiles      int           `yaml:"max_files"`

	CorsOrigins   string `yaml:"cors_origins"`
	AdminKey      string `yaml:"admin_key"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`

	LogSamplingTickMs  int `yaml:"log_sampling_tick_ms"`
	LogSamplingAfterMs int `yaml:"log_sampling_after_ms"`

	OtelEnabled        bool    `yaml:"otel_enabled"`
	OtelEndpoint       string  `yaml:"otel_endpoint"`
	OtelInsecure       bool    `yaml:"otel_insecure"`
	OtelServiceName    string  `yaml:"otel_service_name"`
	OtelServiceVersion string  `yaml:"otel_service_version"`
	OtelSampleRate     float64 `yaml:"otel_sample_rate"`
}

// Defaults fills every unset field.
func (c *Config) Defaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.DatabaseURL == "" && c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
	if c.RedisAddr == "" {
		c.RedisAddr = defaultRedisAddr
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.UploadLimit == "" {
		c.UploadLimit = defaultUploadLimit
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = defaultMaxFiles
	}
	if c.CorsOrigins == "" {
		c.CorsOrigins = "*"
	}
}

// UploadBytes parses UploadLimit, e.g. "32 MiB" or "50MB".
func (c Config) UploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.UploadLimit)
	if err != nil {
		return 0, fmt.Errorf("upload_limit %q: %w", c.UploadLimit, err)
	}
	if n == 0 {
		return 0, errors.New("upload_limit must be positive")
	}
	return int64(n), nil
}

// applyEnv lets deployments override connection settings without editing
// config.yaml.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("GRADER_PORT")); v != "" {
		if !strings.Contains(v, ":") {
			v = "0.0.0.0:" + v
		}
		c.Port = v
	}
	if v := strings.TrimSpace(getenv("GRADER_DATABASE_URL")); v != "" {
		c.DatabaseURL = v
	}
	if v := strings.TrimSpace(getenv("GRADER_REDIS_ADDR")); v != "" {
		c.RedisAddr = v
	}
}

// loadConfig reads the first config file found, merges an optional
// secrets.yaml over it and applies environment overrides. A missing config
// file is not an error: the defaults describe a local setup.
func loadConfig(path string) (Config, string, error) {
	var cfg Config
	configPath := firstExistingPath(path, "./config.yaml", "../config.yaml")
	configMap := map[string]interface{}{}
	if configPath != "" {
		if err := readYAML(configPath, &configMap); err != nil {
			return cfg, configPath, err
		}
	}
	if secretsPath := firstExistingPath(defaultSecretsPath); secretsPath != "" {
		secretsMap := map[string]interface{}{}
		if err := readYAML(secretsPath, &secretsMap); err != nil {
			return cfg, configPath, err
		}
		merged, ok := mergeConfig(configMap, secretsMap).(map[string]interface{})
		if !ok {
			return cfg, configPath, errors.New("merged config is not a map")
		}
		configMap = merged
	}

	section := getMap(configMap, "grader")
	if section != nil {
		raw, err := yaml.Marshal(section)
		if err != nil {
			return cfg, configPath, fmt.Errorf("encode grader config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, configPath, fmt.Errorf("parse grader config: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.Defaults()
	if _, err := cfg.UploadBytes(); err != nil {
		return cfg, configPath, err
	}
	return cfg, configPath, nil
}

func readYAML(path string, dst *map[string]interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if *dst == nil {
		*dst = map[string]interface{}{}
	}
	return nil
}

func firstExistingPath(paths ...string) string {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func mergeConfig(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	switch overrideTyped := override.(type) {
	case map[string]interface{}:
		baseMap, ok := base.(map[string]interface{})
		if !ok {
			baseMap = map[string]interface{}{}
		}
		result := map[string]interface{}{}
		for key, value := range baseMap {
			result[key] = value
		}
		for key, value := range overrideTyped {
			result[key] = mergeConfig(result[key], value)
		}
		return result
	case []interface{}:
		if len(overrideTyped) == 0 {
			return base
		}
		return overrideTyped
	case string:
		if overrideTyped == "" {
			return base
		}
		return overrideTyped
	default:
		return override
	}
}

func getMap(source map[string]interface{}, key string) map[string]interface{} {
	if source == nil {
		return nil
	}
	if typed, ok := source[key].(map[string]interface{}); ok {
		return typed
	}
	return nil
}
