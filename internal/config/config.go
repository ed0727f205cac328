package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	CORSOrigins     []string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Remote map-configuration service.
	MapConfigBaseURL string
	MapConfigTimeout time.Duration

	// Mapbox reverse geocoding.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Device location provider (headless deployments pin a coordinate).
	DeviceLatitude    *float64
	DeviceLongitude   *float64
	PermissionGranted bool
	FixTimeout        time.Duration
	FixMaxAge         time.Duration

	// Kafka feed ingestion.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaSignalsTopic string
	KafkaReportsTopic string
	KafkaGroupID      string

	// Community report persistence.
	DBPath string
}

// Load reads configuration from environment variables, applying
// defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	mapConfigTimeout, err := getEnvDuration("MAP_CONFIG_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := getEnvDuration("MAPBOX_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	fixTimeout, err := getEnvDuration("FIX_TIMEOUT", 4*time.Second)
	if err != nil {
		return nil, err
	}
	fixMaxAge, err := getEnvDuration("FIX_MAX_AGE", 10*time.Second)
	if err != nil {
		return nil, err
	}

	deviceLat, err := getEnvFloat("DEVICE_LAT")
	if err != nil {
		return nil, err
	}
	deviceLng, err := getEnvFloat("DEVICE_LNG")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapConfigBaseURL: getEnv("MAP_CONFIG_BASE_URL", ""),
		MapConfigTimeout: mapConfigTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: getEnvInt("MAPBOX_CACHE_SIZE", 1000),

		DeviceLatitude:    deviceLat,
		DeviceLongitude:   deviceLng,
		PermissionGranted: getEnvBool("DEVICE_PERMISSION_GRANTED", true),
		FixTimeout:        fixTimeout,
		FixMaxAge:         fixMaxAge,

		KafkaEnabled:      getEnvBool("KAFKA_ENABLED", false),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaSignalsTopic: getEnv("KAFKA_SIGNALS_TOPIC", "disaster-signals"),
		KafkaReportsTopic: getEnv("KAFKA_REPORTS_TOPIC", "community-reports"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "riskmap-service"),

		DBPath: getEnv("DB_PATH", "./data/riskmap.db"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MapConfigBaseURL == "" {
		return errors.New("MAP_CONFIG_BASE_URL is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.FixTimeout < 3*time.Second || c.FixTimeout > 5*time.Second {
		return fmt.Errorf("FIX_TIMEOUT must be between 3s and 5s, got %s", c.FixTimeout)
	}
	if c.FixMaxAge <= 0 {
		return errors.New("FIX_MAX_AGE must be positive")
	}
	if c.MapboxCacheSize <= 0 {
		return errors.New("MAPBOX_CACHE_SIZE must be positive")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	if (c.DeviceLatitude == nil) != (c.DeviceLongitude == nil) {
		return errors.New("DEVICE_LAT and DEVICE_LNG must be set together")
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaSignalsTopic == "" || c.KafkaReportsTopic == "" {
			return errors.New("KAFKA_SIGNALS_TOPIC and KAFKA_REPORTS_TOPIC are required when KAFKA_ENABLED is true")
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, val)
	}
	return d, nil
}

func getEnvFloat(key string) (*float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, val)
	}
	return &f, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
