package config

import (
	"testing"
	"time"
)

func TestS3ConfigMissingRequired(t *testing.T) {
	t.Run("empty config is not configured", func(t *testing.T) {
		if (S3Config{}).IsConfigured() {
			t.Fatal("expected IsConfigured=false for empty config")
		}
	})

	t.Run("public url only required when preferred", func(t *testing.T) {
		cfg := S3Config{
			Endpoint:        "https://storage.yandexcloud.net",
			Region:          "ru-central1",
			Bucket:          "informes",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
		}
		if !cfg.IsConfigured() {
			t.Fatalf("expected configured, missing=%v", cfg.MissingRequired())
		}

		cfg.PreferPublicURL = true
		missing := cfg.MissingRequired()
		if len(missing) != 1 || missing[0] != "S3_PUBLIC_BASE_URL" {
			t.Fatalf("expected [S3_PUBLIC_BASE_URL], got %v", missing)
		}
	})

	t.Run("order of missing keys", func(t *testing.T) {
		missing := (S3Config{Endpoint: "https://s3.example.com", Bucket: "b"}).MissingRequired()
		want := []string{"S3_REGION", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY"}
		if len(missing) != len(want) {
			t.Fatalf("expected %v, got %v", want, missing)
		}
		for i := range want {
			if missing[i] != want[i] {
				t.Fatalf("expected missing[%d]=%s, got %s", i, want[i], missing[i])
			}
		}
	})
}

func TestS3ConfigDiagnostics(t *testing.T) {
	if level, code, _ := (S3Config{}).Diagnostics(); level != "info" || code != "s3_not_configured" {
		t.Fatalf("expected info/s3_not_configured, got %s/%s", level, code)
	}
	if level, code, _ := (S3Config{Endpoint: "https://s3.example.com"}).Diagnostics(); level != "warn" || code != "s3_partial_config" {
		t.Fatalf("expected warn/s3_partial_config, got %s/%s", level, code)
	}
}

func TestBlobConfigEffectiveExportsMode(t *testing.T) {
	cfg := BlobConfig{Mode: BlobModeAuto}
	if got := cfg.EffectiveExportsMode(); got != BlobModeAuto {
		t.Fatalf("expected inherited mode auto, got %s", got)
	}
	cfg.ExportsMode = BlobModeS3
	cfg.ExportsModeSet = true
	if got := cfg.EffectiveExportsMode(); got != BlobModeS3 {
		t.Fatalf("expected override s3, got %s", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "ENV", "PORT", "LOG_LEVEL", "REPORT_API_BASE_URL", "NEXT_PUBLIC_API_URL",
		"REPORT_API_HEALTH_PATH", "CONNECTIVITY_TIMEOUT_SECONDS", "CONNECTIVITY_INTERVAL_SECONDS",
		"PROGRESS_TICK_MS", "PROGRESS_STEP", "PROGRESS_CEILING", "UPLOAD_MAX_MB", "SESSION_SECRET",
		"BLOB_MODE", "EXPORTS_MODE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Env != "local" || cfg.Port != 8080 {
		t.Fatalf("unexpected env/port: %s/%d", cfg.Env, cfg.Port)
	}
	if cfg.ReportAPIBaseURL != DefaultReportAPIBaseURL {
		t.Fatalf("expected default base url, got %s", cfg.ReportAPIBaseURL)
	}
	if cfg.ReportAPIHealthPath != "/" {
		t.Fatalf("expected health path /, got %s", cfg.ReportAPIHealthPath)
	}
	if cfg.ConnectivityTimeout != 5*time.Second || cfg.ConnectivityInterval != 30*time.Second {
		t.Fatalf("unexpected connectivity timings: %s/%s", cfg.ConnectivityTimeout, cfg.ConnectivityInterval)
	}
	if cfg.UploadMaxBytes() != 10*1024*1024 {
		t.Fatalf("expected 10 MiB upload limit, got %d", cfg.UploadMaxBytes())
	}
	if cfg.Progress.Ceiling != 90 || cfg.Progress.Step != 10 {
		t.Fatalf("unexpected progress config: %+v", cfg.Progress)
	}
	if cfg.Blob.EffectiveExportsMode() != BlobModeLocal {
		t.Fatalf("expected local exports, got %s", cfg.Blob.EffectiveExportsMode())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REPORT_API_BASE_URL", "")
	t.Setenv("NEXT_PUBLIC_API_URL", "https://informes.example.com/")
	t.Setenv("REPORT_API_HEALTH_PATH", "api/v1/health")
	t.Setenv("PROGRESS_CEILING", "100")
	t.Setenv("EXPORTS_MODE", "bogus")

	cfg := Load()

	if cfg.ReportAPIBaseURL != "https://informes.example.com" {
		t.Fatalf("expected trimmed fallback base url, got %s", cfg.ReportAPIBaseURL)
	}
	if cfg.ReportAPIHealthPath != "/api/v1/health" {
		t.Fatalf("expected leading slash, got %s", cfg.ReportAPIHealthPath)
	}
	if cfg.Progress.Ceiling != 90 {
		t.Fatalf("ceiling must stay below 100, got %d", cfg.Progress.Ceiling)
	}
	if !cfg.Blob.ExportsModeSet || cfg.Blob.ExportsMode != BlobModeLocal {
		t.Fatalf("expected unknown EXPORTS_MODE to fall back to local, got %+v", cfg.Blob)
	}
}
