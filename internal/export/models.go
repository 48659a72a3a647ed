package export

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	FormatJSON = "json"
	FormatPDF  = "pdf"
	FormatCSV  = "csv"
)

// Export is a rendered download of a session's current report.
type Export struct {
	ID          uuid.UUID
	SessionID   string
	Format      string
	Title       string
	FileName    string
	ContentType string
	ObjectKey   string
	SizeBytes   int64
	CreatedAt   time.Time
}

// CreateRequest is the body of POST /v1/report/exports.
type CreateRequest struct {
	Format string `json:"format"`
}

type DTO struct {
	ID          uuid.UUID `json:"id"`
	Format      string    `json:"format"`
	Title       string    `json:"title"`
	FileName    string    `json:"file_name"`
	DownloadURL string    `json:"download_url"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	ErrInvalidFormat  = errors.New("invalid format")
	ErrNoReport       = errors.New("no report to export")
	ErrExportNotFound = errors.New("export not found")
)

func contentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}
