package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	DefaultReportAPIBaseURL = "http://localhost:8000"
	DefaultSessionSecret    = "change_me"
)

type S3Config struct {
	Endpoint          string
	Region            string
	Bucket            string
	AccessKeyID       string
	SecretAccessKey   string
	PublicBaseURL     string
	PresignTTLSeconds int
	PreferPublicURL   bool
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 6)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Region) == "" {
		missing = append(missing, "S3_REGION")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	if c.PreferPublicURL && strings.TrimSpace(c.PublicBaseURL) == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) isEmpty() bool {
	return strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == "" &&
		strings.TrimSpace(c.PublicBaseURL) == ""
}

// Diagnostics classifies the S3 settings for startup logs.
func (c S3Config) Diagnostics() (level string, code string, msg string) {
	if c.isEmpty() {
		return "info", "s3_not_configured", "not configured (all empty)"
	}
	if missing := c.MissingRequired(); len(missing) > 0 {
		return "warn", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}
	return "info", "s3_ready", "ready"
}

// DiagnosticsSummary returns a one-line summary without secrets.
func (c S3Config) DiagnosticsSummary() string {
	return fmt.Sprintf("endpoint=%s region=%s bucket=%s public_base_url=%s presign_ttl=%ds prefer_public_url=%t access_key_id=%s secret_access_key=%s",
		NonEmptyOrDash(c.Endpoint),
		NonEmptyOrDash(c.Region),
		NonEmptyOrDash(c.Bucket),
		NonEmptyOrDash(c.PublicBaseURL),
		c.PresignTTLSeconds,
		c.PreferPublicURL,
		SetOrNot(c.AccessKeyID),
		SetOrNot(c.SecretAccessKey),
	)
}

type BlobConfig struct {
	Mode           string // local|s3|auto
	ExportsMode    string // local|s3|auto (override)
	ExportsModeSet bool
	CacheSize      int
	S3             S3Config
}

func (c BlobConfig) EffectiveExportsMode() string {
	if c.ExportsModeSet {
		return c.ExportsMode
	}
	return c.Mode
}

// ProgressConfig shapes the synthetic progress indicator.
type ProgressConfig struct {
	Tick    time.Duration
	Step    int
	Ceiling int
}

// Config содержит конфигурацию приложения
type Config struct {
	Env      string // local | staging | production
	Port     int
	LogLevel string

	// Remote report service
	ReportAPIBaseURL     string
	ReportAPIHealthPath  string
	ReportAPITimeout     time.Duration
	ConnectivityTimeout  time.Duration
	ConnectivityInterval time.Duration
	Progress             ProgressConfig

	// Uploads
	UploadMaxMB int

	// Sessions
	SessionSecret     string
	SessionIssuer     string
	SessionTTLMinutes int
	SessionsMax       int

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Exports
	Blob BlobConfig
}

// UploadMaxBytes is the intake size limit in bytes.
func (c *Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxMB) * 1024 * 1024
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	port := envInt("PORT", 8080)

	logLevel := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if logLevel == "" {
		logLevel = "debug"
		if env != "local" {
			logLevel = "info"
		}
	}

	// ---------- Report API ----------
	baseURL := strings.TrimSpace(os.Getenv("REPORT_API_BASE_URL"))
	if baseURL == "" {
		baseURL = strings.TrimSpace(os.Getenv("NEXT_PUBLIC_API_URL"))
	}
	if baseURL == "" {
		baseURL = DefaultReportAPIBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	healthPath := strings.TrimSpace(os.Getenv("REPORT_API_HEALTH_PATH"))
	if healthPath == "" {
		healthPath = "/"
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}

	apiTimeout := envSeconds("REPORT_API_TIMEOUT_SECONDS", 120)
	connTimeout := envSeconds("CONNECTIVITY_TIMEOUT_SECONDS", 5)
	connInterval := envSeconds("CONNECTIVITY_INTERVAL_SECONDS", 30)

	progress := ProgressConfig{
		Tick:    time.Duration(envInt("PROGRESS_TICK_MS", 500)) * time.Millisecond,
		Step:    envInt("PROGRESS_STEP", 10),
		Ceiling: envInt("PROGRESS_CEILING", 90),
	}
	if progress.Tick <= 0 {
		progress.Tick = 500 * time.Millisecond
	}
	if progress.Step <= 0 {
		progress.Step = 10
	}
	if progress.Ceiling <= 0 || progress.Ceiling >= 100 {
		log.Printf("WARNING: PROGRESS_CEILING=%d out of range (1..99), fallback to 90", progress.Ceiling)
		progress.Ceiling = 90
	}

	uploadMaxMB := envInt("UPLOAD_MAX_MB", 10)
	if uploadMaxMB <= 0 {
		uploadMaxMB = 10
	}

	// ---------- Sessions ----------
	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		sessionSecret = DefaultSessionSecret
	}
	if sessionSecret == DefaultSessionSecret && env != "local" {
		log.Println("WARNING: SESSION_SECRET is set to 'change_me' in non-local environment!")
	}
	sessionIssuer := strings.TrimSpace(os.Getenv("SESSION_ISSUER"))
	if sessionIssuer == "" {
		sessionIssuer = "informes-hub"
	}
	sessionTTL := envInt("SESSION_TTL_MINUTES", 480)
	if sessionTTL <= 0 {
		sessionTTL = 480
	}
	sessionsMax := envInt("SESSIONS_MAX", 200)

	corsOrigins := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env)
	corsAllowCreds := parseBoolEnv("CORS_ALLOW_CREDENTIALS")

	rateLimitRPS := envInt("RATE_LIMIT_RPS", 0)
	rateLimitBurst := envInt("RATE_LIMIT_BURST", 0)

	// ---------- Blob ----------
	blobMode := parseBlobMode("BLOB_MODE", BlobModeLocal)
	exportsModeRaw := strings.ToLower(strings.TrimSpace(os.Getenv("EXPORTS_MODE")))
	exportsModeSet := exportsModeRaw != ""
	exportsMode := exportsModeRaw
	if exportsMode == "" {
		exportsMode = BlobModeLocal
	}
	if exportsMode != BlobModeLocal && exportsMode != BlobModeS3 && exportsMode != BlobModeAuto {
		log.Printf("WARNING: unknown EXPORTS_MODE=%q, fallback to %s", exportsMode, BlobModeLocal)
		exportsMode = BlobModeLocal
	}

	s3PresignTTL := envInt("S3_PRESIGN_TTL_SECONDS", 900)
	if s3PresignTTL <= 0 {
		s3PresignTTL = 900
	}

	cacheSize := envInt("EXPORTS_CACHE_SIZE", 64)
	if cacheSize <= 0 {
		cacheSize = 64
	}

	blobCfg := BlobConfig{
		Mode:           blobMode,
		ExportsMode:    exportsMode,
		ExportsModeSet: exportsModeSet,
		CacheSize:      cacheSize,
		S3: S3Config{
			Endpoint:          strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:            strings.TrimSpace(os.Getenv("S3_REGION")),
			Bucket:            strings.TrimSpace(os.Getenv("S3_BUCKET")),
			AccessKeyID:       strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey:   strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
			PublicBaseURL:     strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")),
			PresignTTLSeconds: s3PresignTTL,
			PreferPublicURL:   parseBoolEnv("S3_PREFER_PUBLIC_URL"),
		},
	}

	return &Config{
		Env:      env,
		Port:     port,
		LogLevel: logLevel,

		ReportAPIBaseURL:     baseURL,
		ReportAPIHealthPath:  healthPath,
		ReportAPITimeout:     apiTimeout,
		ConnectivityTimeout:  connTimeout,
		ConnectivityInterval: connInterval,
		Progress:             progress,

		UploadMaxMB: uploadMaxMB,

		SessionSecret:     sessionSecret,
		SessionIssuer:     sessionIssuer,
		SessionTTLMinutes: sessionTTL,
		SessionsMax:       sessionsMax,

		CORSAllowedOrigins:   corsOrigins,
		CORSAllowCredentials: corsAllowCreds,

		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		Blob: blobCfg,
	}
}

func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:8081"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func parseBlobMode(key string, defaultVal string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	switch mode {
	case BlobModeLocal, BlobModeS3, BlobModeAuto:
		return mode
	default:
		log.Printf("WARNING: unknown %s=%q, fallback to %s", key, mode, defaultVal)
		return defaultVal
	}
}

func envInt(key string, defaultVal int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, fallback to %d", key, s, defaultVal)
		return defaultVal
	}
	return v
}

func envSeconds(key string, defaultSeconds int) time.Duration {
	v := envInt(key, defaultSeconds)
	if v <= 0 {
		v = defaultSeconds
	}
	return time.Duration(v) * time.Second
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// SetOrNot masks a secret for logs.
func SetOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

func NonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}
