package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fdg312/informes-hub/internal/export"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/session"
	"github.com/fdg312/informes-hub/internal/submission"
	"go.uber.org/zap"
)

// multipart overhead allowed on top of the file limit
const formOverheadBytes = 1 << 20

type openSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type candidateDTO struct {
	Name   string        `json:"name"`
	Size   int64         `json:"size"`
	Kind   intake.Kind   `json:"kind"`
	Origin intake.Origin `json:"origin"`
	Status string        `json:"status"`
	Error  *rejection    `json:"error,omitempty"`
}

type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type intakeResponse struct {
	Candidate *candidateDTO `json:"candidate"`
}

type submitRequest struct {
	Kind        string `json:"kind"`
	Supervisor  string `json:"supervisor"`
	Project     string `json:"project"`
	ExcelAPIURL string `json:"excel_api_url"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type titleResponse struct {
	Title    string `json:"title"`
	FileName string `json:"file_name"`
}

func toCandidateDTO(c intake.Candidate) *candidateDTO {
	dto := &candidateDTO{
		Name:   c.Name,
		Size:   c.Size,
		Kind:   c.Kind,
		Origin: c.Origin,
		Status: c.Status.String(),
	}
	if c.Err != nil {
		dto.Error = &rejection{Code: c.Err.Code(), Message: c.Err.Message, Hint: c.Err.Hint}
	}
	return dto
}

func current(r *http.Request) *session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}

// handleOpenSession handles POST /v1/sessions
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, token, err := s.sessions.Open()
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTooManySessions):
			writeError(w, http.StatusServiceUnavailable, "too_many_sessions", "Too many open sessions")
		case errors.Is(err, session.ErrShutdown):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "Server is shutting down")
		default:
			s.logger.Error("session: open failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to open session")
		}
		return
	}

	writeJSON(w, http.StatusCreated, openSessionResponse{
		SessionID: sess.ID,
		Token:     token,
		ExpiresAt: sess.ExpiresAt.UTC(),
	})
}

// handleCloseSession handles DELETE /v1/sessions/current
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), current(r).ID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetConnectivity handles GET /v1/connectivity
func (s *Server) handleGetConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.NewConnectivityView(current(r).Monitor.State()))
}

// handleCheckConnectivity handles POST /v1/connectivity/check
func (s *Server) handleCheckConnectivity(w http.ResponseWriter, r *http.Request) {
	st := current(r).Monitor.CheckNow(r.Context())
	writeJSON(w, http.StatusOK, session.NewConnectivityView(st))
}

// handleIntake handles POST /v1/intake. Drop and picker uploads share
// this route; origin only records which one it was. The file part is
// streamed into the intake so the extension is judged before the body
// is read. Every outcome, rejections included, replaces the slot.
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	sess := current(r)

	r.Body = http.MaxBytesReader(w, r.Body, sess.Intake.MaxBytes()+formOverheadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart form")
		return
	}

	origin := intake.ParseOrigin(r.URL.Query().Get("origin"))
	var cand *intake.Candidate
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// the rest of an oversized body is not needed once the file is judged
			if cand != nil {
				break
			}
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart form")
			return
		}

		switch part.FormName() {
		case "origin":
			v, _ := io.ReadAll(io.LimitReader(part, 64))
			origin = intake.ParseOrigin(string(v))
			if cand != nil {
				cand.Origin = origin
			}
		case "file":
			if cand != nil {
				break
			}
			c, err := sess.Intake.Receive(part.FileName(), part.Header.Get("Content-Type"), origin, part)
			if err != nil {
				_ = part.Close()
				s.logger.Warn("intake: read failed", zap.String("session_id", sess.ID), zap.Error(err))
				writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read file")
				return
			}
			cand = &c
		}
		_ = part.Close()
	}

	if cand == nil {
		writeError(w, http.StatusBadRequest, "missing_file", submission.NoFileMessage)
		return
	}
	sess.Slot.Put(*cand)

	status := http.StatusOK
	if !cand.Valid() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, intakeResponse{Candidate: toCandidateDTO(*cand)})
}

// handleGetIntake handles GET /v1/intake
func (s *Server) handleGetIntake(w http.ResponseWriter, r *http.Request) {
	resp := intakeResponse{}
	if cand, ok := current(r).Slot.Current(); ok {
		resp.Candidate = toCandidateDTO(cand)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClearIntake handles DELETE /v1/intake
func (s *Server) handleClearIntake(w http.ResponseWriter, r *http.Request) {
	current(r).Slot.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit handles POST /v1/submissions
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := current(r)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	kind, err := submission.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_kind", "kind must be 'demo', 'file' or 'url'")
		return
	}

	ctrl := sess.Controller
	switch kind {
	case submission.KindDemo:
		err = ctrl.SubmitDemo(r.Context())
	case submission.KindFile:
		err = ctrl.SubmitFile(r.Context(), submission.Metadata{Supervisor: req.Supervisor, Project: req.Project})
	case submission.KindURL:
		err = ctrl.SubmitURL(r.Context(), req.ExcelAPIURL)
	}

	if err != nil {
		switch {
		case errors.Is(err, submission.ErrInFlight):
			writeError(w, http.StatusConflict, "in_flight", err.Error())
		case errors.Is(err, submission.ErrNoValidFile):
			writeError(w, http.StatusBadRequest, "no_file", submission.NoFileMessage)
		case errors.Is(err, submission.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
		case errors.Is(err, submission.ErrClosed):
			writeError(w, http.StatusGone, "session_closed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, session.NewSubmissionSnapshot(ctrl.Snapshot()))
}

// handleGetSubmission handles GET /v1/submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session.NewSubmissionSnapshot(current(r).Controller.Snapshot()))
}

// handleResetSubmission handles POST /v1/submission/reset
func (s *Server) handleResetSubmission(w http.ResponseWriter, r *http.Request) {
	ctrl := current(r).Controller
	if err := ctrl.Reset(); err != nil {
		if errors.Is(err, submission.ErrInFlight) {
			writeError(w, http.StatusConflict, "in_flight", err.Error())
			return
		}
		writeError(w, http.StatusGone, "session_closed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session.NewSubmissionSnapshot(ctrl.Snapshot()))
}

// handleGetReport handles GET /v1/report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, current(r).View())
}

// handleSetTitle handles PUT /v1/report/title
func (s *Server) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}
	title := current(r).SetTitle(req.Title)
	writeJSON(w, http.StatusOK, titleResponse{Title: title, FileName: export.FileName(title, export.FormatJSON)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
