package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultLogLevel    = "info"
	defaultServiceName = "costs-api"

	defaultBaseShippingCost          = 100000
	defaultPerRecipientRate          = 4000
	defaultPerUnitWeightSurcharge    = 300
	defaultKittingRatePerRecipient   = 5000
	defaultPackagingRatePerRecipient = 3000
	defaultHandlingRateBps           = 200
	defaultMarginAlertThreshold      = 20.0
	defaultReportTimeout             = 30 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	PubSub        PubSubConfig
	Costing       CostingConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig configures the low-margin alert topic. An empty topic disables
// publishing; alerts are then only logged.
type PubSubConfig struct {
	ProjectID      string
	LowMarginTopic string
}

// CostingConfig carries the operational rate card and reporting knobs.
// Monetary rates are minor currency units; the handling rate is basis points.
type CostingConfig struct {
	BaseShippingCost          int64
	PerRecipientRate          int64
	PerUnitWeightSurcharge    int64
	KittingRatePerRecipient   int64
	PackagingRatePerRecipient int64
	HandlingRateBps           int64

	MarginAlertThreshold float64
	ReportTimeout        time.Duration
}

// ObservabilityConfig controls logging and tracing.
type ObservabilityConfig struct {
	LogLevel     string
	ServiceName  string
	TraceEnabled bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	_ = ctx

	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:      stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			LowMarginTopic: stringWithDefault(lookup, "API_PUBSUB_LOW_MARGIN_TOPIC", ""),
		},
		Costing: CostingConfig{
			BaseShippingCost:          int64WithDefault(lookup, "API_COSTING_BASE_SHIPPING", defaultBaseShippingCost),
			PerRecipientRate:          int64WithDefault(lookup, "API_COSTING_PER_RECIPIENT", defaultPerRecipientRate),
			PerUnitWeightSurcharge:    int64WithDefault(lookup, "API_COSTING_WEIGHT_SURCHARGE", defaultPerUnitWeightSurcharge),
			KittingRatePerRecipient:   int64WithDefault(lookup, "API_COSTING_KITTING_RATE", defaultKittingRatePerRecipient),
			PackagingRatePerRecipient: int64WithDefault(lookup, "API_COSTING_PACKAGING_RATE", defaultPackagingRatePerRecipient),
			HandlingRateBps:           int64WithDefault(lookup, "API_COSTING_HANDLING_BPS", defaultHandlingRateBps),
			MarginAlertThreshold:      floatWithDefault(lookup, "API_COSTING_MARGIN_THRESHOLD", defaultMarginAlertThreshold),
			ReportTimeout:             durationWithDefault(lookup, "API_COSTING_REPORT_TIMEOUT", defaultReportTimeout),
		},
		Observability: ObservabilityConfig{
			LogLevel:     strings.ToLower(stringWithDefault(lookup, "API_LOG_LEVEL", defaultLogLevel)),
			ServiceName:  stringWithDefault(lookup, "API_SERVICE_NAME", defaultServiceName),
			TraceEnabled: boolWithDefault(lookup, "API_TRACE_ENABLED", false),
		},
	}

	// Pub/Sub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Costing.BaseShippingCost < 0 {
		missing = append(missing, "Costing.BaseShippingCost")
	}
	if cfg.Costing.PerRecipientRate < 0 {
		missing = append(missing, "Costing.PerRecipientRate")
	}
	if cfg.Costing.PerUnitWeightSurcharge < 0 {
		missing = append(missing, "Costing.PerUnitWeightSurcharge")
	}
	if cfg.Costing.KittingRatePerRecipient < 0 {
		missing = append(missing, "Costing.KittingRatePerRecipient")
	}
	if cfg.Costing.PackagingRatePerRecipient < 0 {
		missing = append(missing, "Costing.PackagingRatePerRecipient")
	}
	if cfg.Costing.HandlingRateBps < 0 {
		missing = append(missing, "Costing.HandlingRateBps")
	}
	if cfg.Costing.MarginAlertThreshold < 0 || cfg.Costing.MarginAlertThreshold > 100 {
		missing = append(missing, "Costing.MarginAlertThreshold")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
