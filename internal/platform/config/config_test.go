package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_FIRESTORE_PROJECT_ID": "swagbox-test",
		}),
	)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout: %v", cfg.Server.ReadTimeout)
	}
	if cfg.Costing.BaseShippingCost != 100000 {
		t.Fatalf("unexpected base shipping cost: %d", cfg.Costing.BaseShippingCost)
	}
	if cfg.Costing.HandlingRateBps != 200 {
		t.Fatalf("unexpected handling rate: %d", cfg.Costing.HandlingRateBps)
	}
	if cfg.Costing.MarginAlertThreshold != 20 {
		t.Fatalf("unexpected margin threshold: %f", cfg.Costing.MarginAlertThreshold)
	}
	if cfg.PubSub.ProjectID != "swagbox-test" {
		t.Fatalf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Fatalf("unexpected log level: %s", cfg.Observability.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_SERVER_PORT":              "9090",
			"API_FIRESTORE_PROJECT_ID":     "swagbox-prod",
			"API_PUBSUB_PROJECT_ID":        "swagbox-alerts",
			"API_PUBSUB_LOW_MARGIN_TOPIC":  "low-margin-orders",
			"API_COSTING_HANDLING_BPS":     "150",
			"API_COSTING_MARGIN_THRESHOLD": "25.5",
			"API_COSTING_REPORT_TIMEOUT":   "45s",
			"API_LOG_LEVEL":                "DEBUG",
			"API_TRACE_ENABLED":            "true",
		}),
	)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.PubSub.ProjectID != "swagbox-alerts" || cfg.PubSub.LowMarginTopic != "low-margin-orders" {
		t.Fatalf("unexpected pubsub config: %+v", cfg.PubSub)
	}
	if cfg.Costing.HandlingRateBps != 150 {
		t.Fatalf("unexpected handling rate: %d", cfg.Costing.HandlingRateBps)
	}
	if cfg.Costing.MarginAlertThreshold != 25.5 {
		t.Fatalf("unexpected margin threshold: %f", cfg.Costing.MarginAlertThreshold)
	}
	if cfg.Costing.ReportTimeout != 45*time.Second {
		t.Fatalf("unexpected report timeout: %v", cfg.Costing.ReportTimeout)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Fatalf("expected lowercased log level, got %s", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.TraceEnabled {
		t.Fatalf("expected tracing enabled")
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"API_COSTING_MARGIN_THRESHOLD": "120",
		}),
	)
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validationErr.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Costing.MarginAlertThreshold": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Fatalf("expected %s in validation fields, got %v", field, fields)
		}
	}
}
