// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relay assembles the relay HTTP service.
//
// # Description
//
// The relay accepts analysis requests from clients, opens one streaming
// request to the research provider per analysis, normalizes provider
// events into chunks and forwards them over an event stream.
//
//	client ──POST /api/analyze──► relay ──POST /responses──► provider
//	client ◄──── chunks (SSE) ─── relay ◄──── events (SSE) ── provider
//
// Configuration is passed explicitly to New. Nothing below cmd/relay reads
// the environment.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/profilescope/services/relay/handlers"
	"github.com/AleutianAI/profilescope/services/relay/middleware"
	"github.com/AleutianAI/profilescope/services/relay/observability"
	"github.com/AleutianAI/profilescope/services/relay/routes"
	"github.com/AleutianAI/profilescope/services/upstream"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// serviceName identifies the relay in traces.
const serviceName = "profilescope-relay"

// =============================================================================
// Interface Definition
// =============================================================================

// Service is a runnable relay.
type Service interface {
	// Run serves until ctx is cancelled, then drains in-flight requests for
	// up to Config.ShutdownTimeout.
	Run(ctx context.Context) error

	// Router exposes the configured router for tests.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// TraceExporter selects where spans go.
type TraceExporter string

const (
	// TraceExporterNone disables trace export.
	TraceExporterNone TraceExporter = "none"

	// TraceExporterOTLP exports over OTLP gRPC to Config.OTelEndpoint.
	TraceExporterOTLP TraceExporter = "otlp"

	// TraceExporterStdout writes spans to stderr.
	TraceExporterStdout TraceExporter = "stdout"
)

// Config holds relay settings.
//
// # Fields
//
//   - Port: Listen port. Default 3000.
//   - Upstream: Provider client settings (key, base URL, model, timeout).
//   - TraceExporter: none, otlp or stdout. Default none.
//   - OTelEndpoint: OTLP collector address. Default localhost:4317.
//   - EnableMetrics: Initialize Prometheus metrics and expose /metrics.
//   - GinMode: debug, release or test. Empty leaves gin's default.
//   - HeartbeatInterval: Keepalive period. Default 15s.
//   - ShutdownTimeout: Drain period on shutdown. Default 10s.
type Config struct {
	Port              int
	Upstream          upstream.Config
	TraceExporter     TraceExporter
	OTelEndpoint      string
	EnableMetrics     bool
	GinMode           string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
}

// applyConfigDefaults fills unset fields.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = TraceExporterNone
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

// =============================================================================
// Struct Definition
// =============================================================================

type service struct {
	config        Config
	router        *gin.Engine
	streamer      upstream.ResponsesStreamer
	tracerCleanup func(context.Context)
}

// forceCloseTimeout is how long streams cut at the end of the drain period
// get to write their error chunk before connections are closed.
const forceCloseTimeout = 2 * time.Second

// New builds the relay.
//
// # Description
//
// Initializes tracing, metrics (when enabled) and the router. When streamer
// is nil an xAI client is built from cfg.Upstream. A missing API key does
// not fail startup; each analysis then ends with an error chunk.
//
// # Inputs
//
//   - cfg: Relay settings. Unset fields take defaults.
//   - streamer: Provider client override, nil for the default.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil on invalid settings or tracer setup failure.
func New(cfg Config, streamer upstream.ResponsesStreamer) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if err := applyGinMode(s.config.GinMode); err != nil {
		return nil, err
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for analysis streams")
	}

	if streamer == nil {
		if s.config.Upstream.APIKey == "" {
			slog.Warn("XAI_API_KEY is not set; analyses will fail until it is configured")
		}
		streamer = upstream.NewXAIClient(s.config.Upstream)
	}
	s.streamer = streamer

	s.initRouter()

	slog.Info("Relay configured",
		"port", s.config.Port,
		"model", s.streamer.Model(),
		"trace_exporter", s.config.TraceExporter,
		"metrics", s.config.EnableMetrics,
	)
	return s, nil
}

// =============================================================================
// Service Methods
// =============================================================================

// Run serves until ctx is cancelled.
//
// # Description
//
// The server and the shutdown watcher run in one errgroup. Cancelling ctx
// starts a graceful shutdown bounded by ShutdownTimeout. Streams still open
// after that have their request context cancelled with
// handlers.ErrShuttingDown so they end with an error chunk, and any
// connection left after forceCloseTimeout is closed. The server sets no
// write timeout because analyses can stream for up to the upstream timeout.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	baseCtx, cancelBase := context.WithCancelCause(context.Background())
	defer cancelBase(nil)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting relay server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down relay server", "drain_timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if !errors.Is(err, context.DeadlineExceeded) {
			if err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		}

		slog.Warn("Drain period elapsed, cutting open streams")
		cancelBase(handlers.ErrShuttingDown)

		closeCtx, cancelClose := context.WithTimeout(context.Background(), forceCloseTimeout)
		defer cancelClose()
		if err := srv.Shutdown(closeCtx); err != nil {
			slog.Warn("Closing remaining connections", "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("close: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// Router exposes the configured router.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Initialization
// =============================================================================

func applyGinMode(mode string) error {
	switch mode {
	case "":
		return nil
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(mode)
		return nil
	default:
		return fmt.Errorf("invalid gin mode %q", mode)
	}
}

// initTracer installs the global tracer provider for the selected exporter.
// Returns a nil cleanup for TraceExporterNone.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	// closeConn releases the OTLP connection, which the exporter does not
	// own when handed in through WithGRPCConn.
	closeConn := func() error { return nil }
	switch TraceExporter(strings.ToLower(string(s.config.TraceExporter))) {
	case TraceExporterNone:
		return nil, nil
	case TraceExporterOTLP:
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		closeConn = conn.Close
	case TraceExporterStdout:
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", s.config.TraceExporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		_ = closeConn()
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := closeConn(); err != nil {
			slog.Error("failed to close trace connection", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware(serviceName))
	s.router.Use(middleware.RequestID())

	routes.SetupRoutes(s.router, s.streamer, routes.Options{
		EnableMetrics:     s.config.EnableMetrics,
		HeartbeatInterval: s.config.HeartbeatInterval,
	})
}

func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Service = (*service)(nil)
