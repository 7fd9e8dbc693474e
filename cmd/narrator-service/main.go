// main package for the narrator-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/config"
	"github.com/book-expert/narrator/internal/objectstore"
	"github.com/book-expert/narrator/internal/observability"
	"github.com/book-expert/narrator/internal/pipeline"
	"github.com/book-expert/narrator/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	shutdownTimeout          = 10 * time.Second
)

func setupLogger(logPath, file string) (*logger.Logger, error) {
	err := os.MkdirAll(logPath, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logPath, err)
	}

	log, err := logger.New(logPath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "narrator-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "narrator-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Fail fast on a transformer the configuration cannot build
	_, err = cfg.NewSpeechTransformer("")
	if err != nil {
		return fmt.Errorf("invalid speech configuration: %w", err)
	}

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	texts, err := objectstore.New(ctx, js, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	metrics, err := observability.NewPrometheus()
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := metrics.Shutdown(context.Background())
		if shutdownErr != nil {
			log.Warn("Failed to shut down metrics: %v", shutdownErr)
		}
	}()

	recorder, err := observability.NewRecorder(metrics.MeterProvider())
	if err != nil {
		return err
	}

	tracerProvider := observability.NewTracerProvider(observability.NewLogExporter(log))

	defer func() {
		shutdownErr := tracerProvider.Shutdown(context.Background())
		if shutdownErr != nil {
			log.Warn("Failed to shut down tracing: %v", shutdownErr)
		}
	}()

	runner := pipeline.NewRunner(log,
		pipeline.WithRecorder(recorder),
		pipeline.WithTracer(observability.NewTracer(tracerProvider)))

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:        cfg.NATS.TextProcessedSubject,
		Texts:          texts,
		Audio:          audioStore,
		Runner:         runner,
		NewTransformer: cfg.NewSpeechTransformer,
		WorkDir:        cfg.NATS.WorkDir,
	}, log)
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              cfg.NATS.MetricsAddr,
		Handler:           metricsMux(metrics),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := metricsServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Error("Metrics server stopped: %v", serveErr)
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logMessage := "Narrator service initialized. Listening for jobs on subject: %s (metrics on %s)"
	log.System(logMessage, cfg.NATS.TextProcessedSubject, cfg.NATS.MetricsAddr)

	return natsWorker.Run(ctx)
}

func metricsMux(metrics *observability.Prometheus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	return mux
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
