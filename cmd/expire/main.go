// Command expire demonstrates record time-to-live handling: a record written
// with a short TTL disappears after the TTL elapses, while a record written
// with TTLNeverExpire survives the namespace default lifetime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/INLOpen/nexuskv/config"
	"github.com/INLOpen/nexuskv/core"
	"github.com/INLOpen/nexuskv/store"
)

// createLogger creates a slog.Logger based on the provided configuration.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file // The file handle is the closer.
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// initTracerProvider creates and configures an OpenTelemetry TracerProvider.
// It sets up an exporter based on the configuration to send traces to a collector.
func initTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, func(), error) {
	if !cfg.Enabled {
		logger.Info("Distributed tracing is disabled.")
		return sdktrace.NewTracerProvider(), func() {}, nil
	}

	logger.Info("Initializing distributed tracing...", "protocol", cfg.Protocol, "endpoint", cfg.Endpoint)

	ctx := context.Background()
	var exporter sdktrace.SpanExporter
	var err error

	switch strings.ToLower(cfg.Protocol) {
	case "http":
		exporter, err = otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()))
	case "grpc":
		exporter, err = otlptrace.New(ctx, otlptracegrpc.NewClient(otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()))
	default:
		return nil, nil, fmt.Errorf("unsupported tracing protocol: %q", cfg.Protocol)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("nexuskv")))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	cleanup := func() {
		logger.Info("Shutting down tracer provider...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}

	return tp, cleanup, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// Use a temporary logger for pre-config errors
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := createLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to create logger", "error", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	tp, tracerCleanup, err := initTracerProvider(cfg.Tracing, logger)
	if err != nil {
		logger.Error("Failed to initialize tracer provider", "error", err)
		os.Exit(1)
	}
	defer tracerCleanup()

	namespaces := make([]store.NamespaceOptions, 0, len(cfg.Store.Namespaces))
	for _, nsCfg := range cfg.Store.Namespaces {
		namespaces = append(namespaces, store.NamespaceOptions{
			Name:       nsCfg.Name,
			DefaultTTL: config.ParseDuration(nsCfg.DefaultTTL, 0, logger),
		})
	}

	db, err := store.NewStore(store.Options{
		Namespaces:     namespaces,
		Logger:         logger,
		TracerProvider: tp,
		SweepInterval:  config.ParseDuration(cfg.Store.SweepInterval, 30*time.Second, logger),
		StatsInterval:  config.ParseDuration(cfg.Store.StatsInterval, 60*time.Second, logger),
	})
	if err != nil {
		logger.Error("Failed to create store", "error", err)
		os.Exit(1)
	}
	db.Start()
	defer db.Close()

	if err := run(context.Background(), db, cfg.Demo, logger); err != nil {
		logger.Error("Expire demonstration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *store.Store, demo config.DemoConfig, logger *slog.Logger) error {
	key, err := core.NewKey(demo.Namespace, demo.Set, "expirekey")
	if err != nil {
		return err
	}
	bin := core.NewBin(demo.Bin, "expirevalue")

	// Write a record with a 2-second TTL and read it back immediately.
	logger.Info("Put with short TTL", "key", key.String(), "ttl_seconds", 2)
	policy := &core.WritePolicy{Expiration: 2}
	if err := db.Put(ctx, policy, key, bin); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	rec, err := db.Get(ctx, key, bin.Name)
	if err != nil {
		return fmt.Errorf("get before expiry: %w", err)
	}
	logger.Info("Record found before expiry", "bins", rec.Bins, "generation", rec.Generation, "ttl_remaining", rec.Expiration)

	// Sleep past the TTL; the record must be gone.
	logger.Info("Sleeping past TTL...", "seconds", 3)
	time.Sleep(3 * time.Second)

	if _, err := db.Get(ctx, key, bin.Name); !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("expected record to expire, got err=%v", err)
	}
	logger.Info("Record expired as expected")

	// Write the record with TTLNeverExpire and show it survives.
	logger.Info("Put with TTLNeverExpire", "key", key.String())
	policy = &core.WritePolicy{Expiration: core.TTLNeverExpire}
	if err := db.Put(ctx, policy, key, bin); err != nil {
		return fmt.Errorf("put never-expire: %w", err)
	}

	logger.Info("Sleeping again...", "seconds", 3)
	time.Sleep(3 * time.Second)

	rec, err = db.Get(ctx, key, bin.Name)
	if err != nil {
		return fmt.Errorf("get never-expire: %w", err)
	}
	logger.Info("Record survived", "bins", rec.Bins, "generation", rec.Generation, "ttl_remaining", rec.Expiration)
	return nil
}
