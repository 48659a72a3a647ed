package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fdg312/informes-hub/internal/blob"
	"github.com/fdg312/informes-hub/internal/config"
	"github.com/fdg312/informes-hub/internal/export"
	"github.com/fdg312/informes-hub/internal/httpserver"
	"github.com/fdg312/informes-hub/internal/logging"
	"github.com/fdg312/informes-hub/internal/reportapi"
	"github.com/fdg312/informes-hub/internal/session"
	"github.com/fdg312/informes-hub/internal/submission"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	printStartupBanner(logger, cfg)

	if err := validateProductionConfig(cfg); err != nil {
		logger.Fatal("config: invalid", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api: stopped with error", zap.Error(err))
	}
	logger.Info("api: stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := reportapi.New(cfg.ReportAPIBaseURL,
		reportapi.WithTimeout(cfg.ReportAPITimeout),
		reportapi.WithHealthPath(cfg.ReportAPIHealthPath),
		reportapi.WithLogger(logger.Named("reportapi")),
	)

	store, mode, err := blob.NewBlobStore(ctx, cfg.Blob.EffectiveExportsMode(), cfg.Blob, logger)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	presignTTL := time.Duration(cfg.Blob.S3.PresignTTLSeconds) * time.Second
	exports, err := export.NewService(store, mode, presignTTL, cfg.Blob.CacheSize, logger.Named("export"))
	if err != nil {
		return fmt.Errorf("export service: %w", err)
	}

	sessions := session.NewManager(client,
		session.NewTokens(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL()),
		session.Options{
			MaxSessions:          cfg.SessionsMax,
			UploadMaxBytes:       cfg.UploadMaxBytes(),
			ConnectivityTimeout:  cfg.ConnectivityTimeout,
			ConnectivityInterval: cfg.ConnectivityInterval,
			Progress: submission.Progress{
				Tick:    cfg.Progress.Tick,
				Step:    cfg.Progress.Step,
				Ceiling: cfg.Progress.Ceiling,
			},
			OnClose: exports.DeleteSession,
		},
		logger.Named("session"),
	)

	server := httpserver.New(cfg, httpserver.Deps{
		Sessions: sessions,
		Exports:  exports,
		Upstream: client,
		Logger:   logger.Named("http"),
		Version:  version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return sessions.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("api: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			server.Shutdown(shutdownCtx),
			sessions.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}

// printStartupBanner logs a one-time summary of the resolved configuration.
// Secrets are only reported as "set" / "not set".
func printStartupBanner(logger *zap.Logger, cfg *config.Config) {
	logger.Info("informes-hub api",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
	)
	logger.Info("config: report api",
		zap.String("base_url", cfg.ReportAPIBaseURL),
		zap.String("health_path", cfg.ReportAPIHealthPath),
		zap.Duration("timeout", cfg.ReportAPITimeout),
		zap.Duration("connectivity_timeout", cfg.ConnectivityTimeout),
		zap.Duration("connectivity_interval", cfg.ConnectivityInterval),
	)
	if cfg.Env != "local" && cfg.ReportAPIBaseURL == config.DefaultReportAPIBaseURL {
		logger.Warn("config: REPORT_API_BASE_URL not set, using the local default", zap.String("env", cfg.Env))
	}
	logger.Info("config: sessions",
		zap.String("secret", secretStatus(cfg.SessionSecret, config.DefaultSessionSecret)),
		zap.Int("ttl_minutes", cfg.SessionTTLMinutes),
		zap.Int("max", cfg.SessionsMax),
		zap.Int("upload_max_mb", cfg.UploadMaxMB),
	)

	fields := []zap.Field{
		zap.String("blob_mode", cfg.Blob.Mode),
		zap.String("exports_mode", displayExportsMode(cfg)),
		zap.String("effective", cfg.Blob.EffectiveExportsMode()),
	}
	if cfg.Blob.EffectiveExportsMode() != config.BlobModeLocal {
		fields = append(fields, zap.String("s3", cfg.Blob.S3.DiagnosticsSummary()))
	}
	logger.Info("config: exports", fields...)
}

// validateProductionConfig performs checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config) error {
	isProd := cfg.Env == "production" || cfg.Env == "staging"

	if cfg.Blob.EffectiveExportsMode() == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			return fmt.Errorf("blob: EXPORTS_MODE is 's3' but S3 config is incomplete, missing: %s", strings.Join(missing, ", "))
		}
	}

	if isProd && cfg.SessionSecret == config.DefaultSessionSecret {
		return fmt.Errorf("sessions: SESSION_SECRET must not be '%s' in %s", config.DefaultSessionSecret, cfg.Env)
	}
	return nil
}

func secretStatus(v, insecureDefault string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "not set"
	}
	if v == insecureDefault {
		return fmt.Sprintf("set (DEFAULT, insecure '%s')", insecureDefault)
	}
	return "set (custom)"
}

func displayExportsMode(cfg *config.Config) string {
	if cfg.Blob.ExportsModeSet {
		return cfg.Blob.ExportsMode
	}
	return fmt.Sprintf("(inherits BLOB_MODE=%s)", cfg.Blob.Mode)
}
