package session

import (
	"time"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/submission"
)

const (
	EventConnectivity = "connectivity"
	EventSubmission   = "submission"
)

// Event is one message of the live stream.
type Event struct {
	Type         string              `json:"type"`
	Connectivity *ConnectivityView   `json:"connectivity,omitempty"`
	Submission   *SubmissionSnapshot `json:"submission,omitempty"`
}

type ConnectivityView struct {
	Status    connectivity.Status `json:"status"`
	Label     string              `json:"label"`
	Reason    string              `json:"reason,omitempty"`
	CheckedAt *time.Time          `json:"checked_at,omitempty"`
	LatencyMS int64               `json:"latency_ms,omitempty"`
}

func NewConnectivityView(st connectivity.State) ConnectivityView {
	v := ConnectivityView{
		Status:    st.Status,
		Label:     st.Label(),
		Reason:    st.Reason,
		LatencyMS: st.Latency.Milliseconds(),
	}
	if !st.CheckedAt.IsZero() {
		at := st.CheckedAt.UTC()
		v.CheckedAt = &at
	}
	return v
}

// SubmissionSnapshot is the wire form of submission.Snapshot. The report
// itself is served by GET /v1/report.
type SubmissionSnapshot struct {
	Phase             submission.Phase `json:"phase"`
	Kind              submission.Kind  `json:"kind,omitempty"`
	Attempt           uint64           `json:"attempt"`
	Progress          int              `json:"progress"`
	ProgressSynthetic bool             `json:"progress_synthetic"`
	FileName          string           `json:"file_name,omitempty"`
	HasReport         bool             `json:"has_report"`
	Error             *ErrorView       `json:"error,omitempty"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty"`
}

type ErrorView struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func NewSubmissionSnapshot(snap submission.Snapshot) SubmissionSnapshot {
	out := SubmissionSnapshot{
		Phase:             snap.Phase,
		Kind:              snap.Kind,
		Attempt:           snap.Attempt,
		Progress:          snap.Progress,
		ProgressSynthetic: true,
		FileName:          snap.FileName,
		HasReport:         snap.Report != nil,
	}
	if !snap.StartedAt.IsZero() {
		at := snap.StartedAt.UTC()
		out.StartedAt = &at
	}
	if !snap.FinishedAt.IsZero() {
		at := snap.FinishedAt.UTC()
		out.FinishedAt = &at
	}
	if snap.Err != nil {
		out.Error = errorView(snap.Err)
	}
	return out
}

func errorView(err error) *ErrorView {
	switch e := err.(type) {
	case *submission.Error:
		return &ErrorView{Kind: string(e.Kind), Message: e.Message, StatusCode: e.StatusCode}
	case *connectivity.Error:
		return &ErrorView{Kind: "connectivity", Message: e.Error()}
	default:
		return &ErrorView{Kind: "unknown", Message: err.Error()}
	}
}

func ConnectivityEvent(st connectivity.State) Event {
	v := NewConnectivityView(st)
	return Event{Type: EventConnectivity, Connectivity: &v}
}

func SubmissionEvent(snap submission.Snapshot) Event {
	v := NewSubmissionSnapshot(snap)
	return Event{Type: EventSubmission, Submission: &v}
}
