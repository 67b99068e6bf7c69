// Copyright (C) 2025 Ragward Authors (security@ragward.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway assembles and runs the Ragward HTTP service.
//
// The gateway wires the full defense stack: rule provider (embedded or
// hot-reloaded from disk), input and response guards, the retrieval guard
// over Weaviate, the LLM backend, the security event monitor with its
// Badger-backed event log, and the pipeline orchestrator behind a gin
// router with edge rate limiting, Prometheus metrics, and OTLP tracing.
//
// # Usage
//
//	cfg := gateway.Config{Port: 8080}
//	svc, err := gateway.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ragward-ai/ragward/services/gateway/datatypes"
	"github.com/ragward-ai/ragward/services/gateway/middleware"
	"github.com/ragward-ai/ragward/services/gateway/observability"
	"github.com/ragward-ai/ragward/services/gateway/routes"
	"github.com/ragward-ai/ragward/services/llm"
	"github.com/ragward-ai/ragward/services/monitoring"
	"github.com/ragward-ai/ragward/services/pipeline"
	"github.com/ragward-ai/ragward/services/prompt_guard"
	"github.com/ragward-ai/ragward/services/response_guard"
	"github.com/ragward-ai/ragward/services/retrieval_guard"
	"github.com/ragward-ai/ragward/services/ruleset"
)

// Service is the gateway lifecycle contract. Run blocks until shutdown;
// Router exposes the configured engine for integration tests.
type Service interface {
	Run() error
	Router() *gin.Engine
}

// Config holds gateway configuration. All fields have defaults applied by
// New; values usually come from environment variables in cmd/gateway.
type Config struct {
	// Port is the HTTP server port. Default: 8080.
	Port int

	// WeaviateURL is the vector database URL. Required: the defense
	// pipeline cannot run without retrieval.
	WeaviateURL string

	// WeaviateClass is the document class searched. Default: "Document".
	WeaviateClass string

	// OTelEndpoint is the OTLP gRPC collector endpoint.
	// Default: "ragward-otel-collector:4317".
	OTelEndpoint string

	// EventLogDir is the Badger event log directory. Empty runs the log
	// in memory (tests, ephemeral deployments).
	EventLogDir string

	// RulesFile optionally overrides the embedded defense rules. When
	// set, the file is watched and reloaded on change.
	RulesFile string

	// GinMode sets the gin framework mode. Default: GIN_MODE env or debug.
	GinMode string

	// ShutdownGrace bounds graceful shutdown. Default: 10s.
	ShutdownGrace time.Duration

	// ReaperInterval is how often idle detector windows and rate limiter
	// buckets are reaped. Default: 5 minutes.
	ReaperInterval time.Duration

	// DisableMetrics skips Prometheus registration (tests re-creating
	// the service would otherwise panic on duplicate registration).
	DisableMetrics bool
}

type service struct {
	config        Config
	router        *gin.Engine
	rules         *ruleset.Provider
	backend       llm.Backend
	monitor       *monitoring.Monitor
	detector      *monitoring.AttackDetector
	eventLog      *monitoring.BadgerEventSink
	limiter       *middleware.RateLimiter
	pipeline      *pipeline.Pipeline
	tracerCleanup func(context.Context)
}

// New builds a ready-to-run gateway: tracer, metrics, rules, event log,
// LLM backend, Weaviate searcher, and the pipeline, then the router.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.GatewayMetrics
	if !s.config.DisableMetrics {
		metrics = observability.InitMetrics()
	}

	if err := s.initRules(); err != nil {
		s.cleanup()
		return nil, err
	}
	if err := s.initMonitoring(metrics); err != nil {
		s.cleanup()
		return nil, err
	}

	s.backend, err = llm.NewBackendFromEnv()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize the LLM backend: %w", err)
	}

	guard, err := s.initRetrievalGuard()
	if err != nil {
		s.cleanup()
		return nil, err
	}

	s.pipeline = pipeline.New(
		pipeline.Config{},
		prompt_guard.NewValidator(s.rules),
		prompt_guard.NewSanitizer(s.rules),
		guard,
		response_guard.NewValidator(s.rules),
		s.backend,
		s.monitor,
	)

	var onLimited func()
	if metrics != nil {
		onLimited = metrics.RecordRateLimited
	}
	s.limiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), onLimited)

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server plus the background loops (idle-window
// reaper, rule file watcher, event log GC) and blocks until a signal or a
// fatal error. Shutdown drains in-flight requests within the grace period.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("Starting the gateway server", "port", s.config.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down the gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		ticker := time.NewTicker(s.config.ReaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if removed := s.detector.RemoveIdle(); removed > 0 {
					slog.Debug("Reaped idle user windows", "removed", removed)
				}
				if removed := s.limiter.RemoveIdle(); removed > 0 {
					slog.Debug("Reaped idle rate limiter buckets", "removed", removed)
				}
			}
		}
	})

	if s.config.RulesFile != "" {
		rulesFile := s.config.RulesFile
		group.Go(func() error {
			if err := s.rules.Watch(ctx, rulesFile); err != nil && ctx.Err() == nil {
				return fmt.Errorf("rules watcher failed: %w", err)
			}
			return nil
		})
	}

	if s.eventLog != nil {
		group.Go(func() error {
			if err := s.eventLog.RunGC(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	return group.Wait()
}

// Router returns the configured engine for integration tests.
func (s *service) Router() *gin.Engine {
	return s.router
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.WeaviateClass == "" {
		cfg.WeaviateClass = "Document"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "ragward-otel-collector:4317"
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.ReaperInterval == 0 {
		cfg.ReaperInterval = 5 * time.Minute
	}
	return cfg
}

// initTracer wires OTLP tracing over an insecure gRPC connection, which is
// appropriate for the internal collector network.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create the gRPC connection: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create the trace exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("ragward-gateway")))
	if err != nil {
		return nil, fmt.Errorf("failed to create the resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down the OTLP exporter", "error", err)
		}
	}, nil
}

// initRules loads the defense rules, preferring the on-disk override.
func (s *service) initRules() error {
	if s.config.RulesFile != "" {
		provider, err := ruleset.NewProviderFromFile(s.config.RulesFile)
		if err != nil {
			return fmt.Errorf("failed to load the rules file %s: %w", s.config.RulesFile, err)
		}
		s.rules = provider
		slog.Info("Loaded defense rules from file", "path", s.config.RulesFile)
		return nil
	}

	set, err := ruleset.Embedded()
	if err != nil {
		return fmt.Errorf("failed to load the embedded rules: %w", err)
	}
	s.rules = ruleset.NewProvider(set)
	return nil
}

// initMonitoring opens the event log and builds the monitor. The sink is
// wrapped with metrics so attack signals show up in Prometheus.
func (s *service) initMonitoring(metrics *observability.GatewayMetrics) error {
	badgerCfg := monitoring.DefaultBadgerConfig(s.config.EventLogDir)
	if s.config.EventLogDir == "" {
		badgerCfg.InMemory = true
		slog.Warn("RAGWARD_EVENT_LOG_DIR not set, keeping the event log in memory")
	}

	eventLog, err := monitoring.NewBadgerEventSink(badgerCfg)
	if err != nil {
		return fmt.Errorf("failed to open the event log: %w", err)
	}
	s.eventLog = eventLog

	var sink monitoring.EventSink = eventLog
	if metrics != nil {
		sink = observability.NewInstrumentedSink(eventLog, metrics)
	}

	s.detector = monitoring.NewAttackDetector(monitoring.DefaultDetectorConfig())
	s.monitor = monitoring.NewMonitor(sink, s.detector)
	return nil
}

// initRetrievalGuard connects to Weaviate and wraps it with the guard.
// There is no degraded mode without the vector database; a bad URL is
// fatal at startup.
func (s *service) initRetrievalGuard() (*retrieval_guard.Guard, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %q", s.config.WeaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create the Weaviate client: %w", err)
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL, "class", s.config.WeaviateClass)

	searcher := retrieval_guard.NewWeaviateSearcher(client, s.config.WeaviateClass)
	return retrieval_guard.NewGuard(retrieval_guard.DefaultGuardConfig(), s.backend, searcher, s.monitor), nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	datatypes.RegisterValidators()

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("ragward-gateway"))

	routes.SetupRoutes(s.router, s.pipeline, s.eventLog, s.limiter)
}

// cleanup releases resources on shutdown or failed construction.
func (s *service) cleanup() {
	if s.eventLog != nil {
		if err := s.eventLog.Close(); err != nil {
			slog.Warn("Event log close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
