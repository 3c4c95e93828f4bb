// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/profilescope/pkg/logging"
	"github.com/AleutianAI/profilescope/services/relay"
	"github.com/AleutianAI/profilescope/services/upstream"
)

// envConfig is everything the relay reads from the environment.
type envConfig struct {
	Relay   relay.Config
	Logging logging.Config
}

// loadEnvConfig builds the relay configuration from getenv.
//
// # Description
//
// Unset variables take their defaults. Malformed values are collected and
// returned together so a bad deployment reports every problem at once.
func loadEnvConfig(getenv func(string) string) (envConfig, error) {
	var errs []error

	getString := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			errs = append(errs, fmt.Errorf("%s: %q is not a valid port", key, v))
			return fallback
		}
		return n
	}
	getBool := func(key string, fallback bool) bool {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return fallback
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
			return fallback
		}
		return b
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return fallback
		}
		d, err := parseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: %q is not a positive duration", key, v))
			return fallback
		}
		return d
	}

	exporter := relay.TraceExporter(strings.ToLower(getString("RELAY_TRACE_EXPORTER", string(relay.TraceExporterNone))))
	switch exporter {
	case relay.TraceExporterNone, relay.TraceExporterOTLP, relay.TraceExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("RELAY_TRACE_EXPORTER: %q must be none, otlp or stdout", exporter))
		exporter = relay.TraceExporterNone
	}

	level, err := logging.ParseLevel(getenv("LOG_LEVEL"), logging.LevelInfo)
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg := envConfig{
		Relay: relay.Config{
			Port: getInt("RELAY_PORT", 3000),
			Upstream: upstream.Config{
				BaseURL: getString("XAI_API_BASE_URL", upstream.DefaultBaseURL),
				APIKey:  strings.TrimSpace(getenv("XAI_API_KEY")),
				Model:   getString("XAI_MODEL", upstream.DefaultModel),
				Timeout: getDuration("XAI_API_TIMEOUT", upstream.DefaultTimeout),
			},
			TraceExporter:     exporter,
			OTelEndpoint:      getString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			EnableMetrics:     getBool("RELAY_METRICS", true),
			GinMode:           getenv("GIN_MODE"),
			HeartbeatInterval: getDuration("RELAY_HEARTBEAT_INTERVAL", 15*time.Second),
		},
		Logging: logging.Config{
			Level:   level,
			Service: "relay",
			JSON:    getBool("LOG_JSON", true),
			LogDir:  getenv("LOG_DIR"),
		},
	}
	return cfg, errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s", "1h") and bare milliseconds
// ("3600000").
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
