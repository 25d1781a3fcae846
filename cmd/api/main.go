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

	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shyim/vitals-dashboard/internal/analysis"
	"github.com/shyim/vitals-dashboard/internal/cleanup"
	"github.com/shyim/vitals-dashboard/internal/config"
	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/handler"
	"github.com/shyim/vitals-dashboard/internal/logging"
	"github.com/shyim/vitals-dashboard/internal/pagespeed"
	"github.com/shyim/vitals-dashboard/internal/storage"
	"github.com/shyim/vitals-dashboard/internal/synthetic"
	"github.com/shyim/vitals-dashboard/internal/telemetry"
)

func main() {
	configPath := pflag.String("config", os.Getenv("VITALS_CONFIG"), "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	backend, err := credential.OpenBackend(cfg.Credential.Backend, cfg.Credential.Path, cfg.Credential.Namespace, cfg.Credential.SecretName)
	if err != nil {
		return err
	}
	store := credential.NewStore(backend)
	if err := store.Load(ctx, cfg.Credential.APIKey); err != nil {
		return err
	}
	logger.Info("credential loaded",
		zap.String("backend", cfg.Credential.Backend),
		zap.Bool("configured", store.HasCredential()),
	)

	client := pagespeed.NewClient(pagespeed.Options{
		Endpoint:          cfg.PageSpeed.Endpoint,
		RequestsPerSecond: cfg.PageSpeed.RequestsPerSecond,
		Burst:             cfg.PageSpeed.Burst,
		Retries:           cfg.PageSpeed.Retries,
	})

	opts := analysis.Options{
		Timeout:   cfg.PageSpeed.Timeout,
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
		History:   synthetic.NewGenerator(),
		Logger:    logger,
	}

	// reports stays a nil interface when no archive is configured
	var reports handler.ReportStore
	if cfg.S3.Bucket != "" {
		storageService, err := storage.NewService(ctx, storage.Options{
			ServiceURL:            cfg.S3.ServiceURL,
			AccessKey:             cfg.S3.AccessKey,
			SecretKey:             cfg.S3.SecretKey,
			Bucket:                cfg.S3.Bucket,
			Region:                cfg.S3.Region,
			DisablePayloadSigning: cfg.S3.DisablePayloadSigning,
		})
		if err != nil {
			return fmt.Errorf("initialize storage service: %w", err)
		}
		if err := storageService.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		opts.Archiver = storageService
		reports = storageService
		logger.Info("report archive enabled", zap.String("bucket", cfg.S3.Bucket))
	}

	analyzer := analysis.NewAnalyzer([]analysis.Source{
		analysis.NewPageSpeedSource(client, store),
		analysis.SyntheticSource{},
	}, opts)

	cleanup.Start(ctx, logger, cfg.Cache.CleanupInterval, analyzer)

	h := handler.NewHandler(analyzer, store, reports, cfg.AuthToken, logger)

	// Logger -> Recoverer -> Auth -> Mux, all inside the tracing handler
	var finalHandler http.Handler = h.Routes()
	finalHandler = h.AuthMiddleware(finalHandler)
	finalHandler = handler.RecoverMiddleware(logger, finalHandler)
	finalHandler = handler.LoggingMiddleware(logger, finalHandler)
	finalHandler = otelhttp.NewHandler(finalHandler, "vitals-api")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           finalHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PageSpeed.Timeout+5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
