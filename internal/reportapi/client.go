package reportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/fdg312/informes-hub/internal/report"
	"go.uber.org/zap"
)

const (
	HealthPath           = "/api/v1/health"
	GeneratePath         = "/api/v1/reports/generate"
	GenerateFromFilePath = "/api/v1/reports/generate-from-file"
	GenerateDemoPath     = "/api/v1/reports/generate-demo"
)

// FallbackMessage is shown when the service gives no usable detail.
const FallbackMessage = "Ocurrió un error desconocido en el servidor."

const maxResponseBytes = 8 << 20

// Client talks to the remote report-generation service.
type Client struct {
	baseURL    string
	healthPath string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHealthPath selects "/" or "/api/v1/health" for Health.
func WithHealthPath(p string) Option {
	return func(c *Client) {
		if p == "" {
			p = "/"
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		c.healthPath = p
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		healthPath: "/",
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health succeeds on any 2xx answer.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// GenerateFromURL asks the service to read the workbook from excelURL.
func (c *Client) GenerateFromURL(ctx context.Context, excelURL string) (*report.GeneratedReport, error) {
	body, err := json.Marshal(map[string]string{"excel_api_url": excelURL})
	if err != nil {
		return nil, err
	}
	return c.postJSON(ctx, GeneratePath, body)
}

func (c *Client) GenerateDemo(ctx context.Context) (*report.GeneratedReport, error) {
	return c.postJSON(ctx, GenerateDemoPath, []byte("{}"))
}

// Upload is the multipart payload of a file submission.
type Upload struct {
	FileName    string
	ContentType string
	Open        func() (io.ReadCloser, error)
	Supervisor  string
	Project     string
}

func (c *Client) GenerateFromFile(ctx context.Context, up Upload) (*report.GeneratedReport, error) {
	if up.Open == nil {
		return nil, errors.New("upload has no content")
	}

	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(up.FileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, rc); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if s := strings.TrimSpace(up.Supervisor); s != "" {
		if err := mw.WriteField("nombre_supervisor", s); err != nil {
			return nil, err
		}
	}
	if p := strings.TrimSpace(up.Project); p != "" {
		if err := mw.WriteField("nombre_proyecto", p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GenerateFromFilePath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (*report.GeneratedReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*report.GeneratedReport, error) {
	req.Header.Set("Accept", "application/json")
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("reportapi: request failed",
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("reportapi: response",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
	}

	var rep report.GeneratedReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &rep, nil
}

// parseDetail extracts the string "detail" of an error body.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
