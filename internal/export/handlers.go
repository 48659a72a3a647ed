package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fdg312/informes-hub/internal/report"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subject is what an export request acts on: the caller's session and
// its current report.
type Subject struct {
	SessionID string
	Report    *report.GeneratedReport
	Title     string
}

// Resolver extracts the Subject from an authenticated request.
type Resolver func(r *http.Request) (Subject, bool)

type Handlers struct {
	service *Service
	resolve Resolver
	logger  *zap.Logger
}

func NewHandlers(service *Service, resolve Resolver, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{service: service, resolve: resolve, logger: logger}
}

// HandleCreate handles POST /v1/report/exports
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	subj, ok := h.resolve(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Sesión no válida")
		return
	}

	var req CreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
			return
		}
	}

	exp, err := h.service.Create(r.Context(), subj.SessionID, subj.Report, subj.Title, req.Format)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "invalid_format", "Format must be 'json', 'pdf' or 'csv'")
		case errors.Is(err, ErrNoReport):
			writeError(w, http.StatusConflict, "no_report", "Aún no hay informe")
		default:
			h.logger.Error("export: create failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	downloadURL, err := h.service.DownloadURL(r.Context(), exp, getBaseURL(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate download URL")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(h.service.toDTO(exp, downloadURL))
}

// HandleDownload handles GET /v1/exports/{id}/download
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	subj, ok := h.resolve(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Sesión no válida")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "Invalid export ID")
		return
	}

	exp, err := h.service.Get(subj.SessionID, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "export_not_found", "Export not found")
		return
	}

	if !h.service.LocalMode() {
		u, err := h.service.DownloadURL(r.Context(), exp, getBaseURL(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate download URL")
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	data, err := h.service.Data(r.Context(), exp)
	if err != nil {
		if errors.Is(err, ErrExportNotFound) {
			writeError(w, http.StatusNotFound, "export_not_found", "Export not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", exp.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", exp.FileName, url.PathEscape(exp.FileName)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func getBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}
