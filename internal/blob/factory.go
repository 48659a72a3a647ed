package blob

import (
	"context"
	"fmt"
	"strings"

	appcfg "github.com/fdg312/informes-hub/internal/config"
	"go.uber.org/zap"
)

// NewBlobStore builds the export store for mode local|s3|auto. Local and
// the auto fallback return a MemoryStore; the second value is the mode in
// effect.
func NewBlobStore(ctx context.Context, mode string, cfg appcfg.BlobConfig, logger *zap.Logger) (Store, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = appcfg.BlobModeLocal
	}

	local := func(reason string) (Store, string, error) {
		store, err := NewMemoryStore(cfg.CacheSize)
		if err != nil {
			return nil, "", fmt.Errorf("memory store: %w", err)
		}
		logger.Info("blob: mode=local", zap.String("reason", reason), zap.Int("cache_size", cfg.CacheSize))
		return store, appcfg.BlobModeLocal, nil
	}

	switch mode {
	case appcfg.BlobModeLocal:
		return local("forced")

	case appcfg.BlobModeAuto:
		if !cfg.S3.IsConfigured() {
			level, code, msg := cfg.S3.Diagnostics()
			fields := []zap.Field{zap.String("code", code), zap.String("summary", cfg.S3.DiagnosticsSummary())}
			if level == "warn" {
				logger.Warn("blob.s3: "+msg, fields...)
			} else {
				logger.Info("blob.s3: "+msg, fields...)
			}
			return local("auto, S3 not configured")
		}

		store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			logger.Warn("blob.s3: init failed, falling back to local", zap.Error(err))
			return local("auto, S3 init failed")
		}
		logger.Info("blob: mode=s3", zap.String("reason", "auto, configured"), zap.String("summary", cfg.S3.DiagnosticsSummary()))
		return store, appcfg.BlobModeS3, nil

	case appcfg.BlobModeS3:
		if !cfg.S3.IsConfigured() {
			missing := cfg.S3.MissingRequired()
			logger.Error("blob.s3: config incomplete",
				zap.String("code", "s3_config_incomplete"),
				zap.Strings("missing", missing),
				zap.String("summary", cfg.S3.DiagnosticsSummary()),
			)
			return nil, "", fmt.Errorf("BLOB_MODE=s3 requested but missing required config: %s", strings.Join(missing, ", "))
		}

		store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			logger.Error("blob.s3: init failed", zap.Error(err))
			return nil, "", fmt.Errorf("BLOB_MODE=s3 init failed: %w", err)
		}
		logger.Info("blob: mode=s3", zap.String("reason", "forced"), zap.String("summary", cfg.S3.DiagnosticsSummary()))
		return store, appcfg.BlobModeS3, nil

	default:
		return nil, "", fmt.Errorf("unsupported blob mode: %s", mode)
	}
}
