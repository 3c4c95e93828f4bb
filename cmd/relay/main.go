// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relay starts the ProfileScope analysis relay.
//
// It reads configuration from environment variables, after loading
// .env.local and .env from the working directory when present. Variables
// already set in the environment win.
//
// # Environment Variables
//
//   - RELAY_PORT: HTTP port (default: 3000)
//   - XAI_API_KEY: xAI API key (required for analyses)
//   - XAI_API_BASE_URL: Provider base URL (default: https://api.x.ai/v1)
//   - XAI_MODEL: Model name (default: grok-4-1-fast-reasoning-latest)
//   - XAI_API_TIMEOUT: Whole-stream timeout, Go duration or milliseconds (default: 1h)
//   - RELAY_HEARTBEAT_INTERVAL: Keepalive period (default: 15s)
//   - RELAY_TRACE_EXPORTER: none, otlp or stdout (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC collector (default: localhost:4317)
//   - RELAY_METRICS: Expose /metrics (default: true)
//   - GIN_MODE: debug, release or test
//   - LOG_LEVEL, LOG_JSON, LOG_DIR: Logging
//
// # Usage
//
//	go build -o relay ./cmd/relay
//	XAI_API_KEY=... ./relay
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/profilescope/pkg/logging"
	"github.com/AleutianAI/profilescope/services/relay"
	"github.com/joho/godotenv"
)

func main() {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("Ignoring %s: %v", file, err)
		}
	}

	cfg, err := loadEnvConfig(os.Getenv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.New(cfg.Logging)
	defer logger.Close()
	logger.SetDefault()

	slog.Info("Starting relay",
		"port", cfg.Relay.Port,
		"model", cfg.Relay.Upstream.Model,
		"api_key_present", cfg.Relay.Upstream.APIKey != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := relay.New(cfg.Relay, nil)
	if err != nil {
		slog.Error("Failed to create relay", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		slog.Error("Relay error", "error", err)
		os.Exit(1)
	}
}
