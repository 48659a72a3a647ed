package session

import (
	"strings"
	"sync"
	"time"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/export"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/render"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/fdg312/informes-hub/internal/submission"
)

// Session is one dashboard view: its own connectivity monitor, staged
// file, submission controller and export title.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time

	Monitor    *connectivity.Monitor
	Intake     *intake.Intake
	Slot       *intake.Slot
	Controller *submission.Controller

	mu       sync.Mutex
	title    string
	closed   bool
	done     chan struct{}
	lastSeen time.Time
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle stores the export title; blank resets it to the default.
func (s *Session) SetTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = export.DefaultTitle
	}
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	return title
}

// Report is the result of the last successful submission, if any.
func (s *Session) Report() *report.GeneratedReport {
	snap := s.Controller.Snapshot()
	if snap.Phase != submission.PhaseSucceeded {
		return nil
	}
	return snap.Report
}

// View is the presentation of the current report.
func (s *Session) View() render.View {
	return render.Present(s.Report())
}

// ExportSubject adapts the session for the export handlers.
func (s *Session) ExportSubject() export.Subject {
	return export.Subject{SessionID: s.ID, Report: s.Report(), Title: s.Title()}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// close stops the monitor and the controller. It waits for pending
// timers and requests to finish.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	close(s.doneLocked())
	s.mu.Unlock()

	s.Monitor.Stop()
	s.Controller.Close()
	s.Slot.Clear()
	return true
}

// Done is closed once the session is closed or expires.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneLocked()
}

func (s *Session) doneLocked() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

// Subscribe forwards connectivity and submission changes to fn until the
// returned function is called or the session closes. fn runs on the
// emitting goroutine and must not block.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	offConn := s.Monitor.Subscribe(func(st connectivity.State) {
		fn(ConnectivityEvent(st))
	})
	offSub := s.Controller.Subscribe(func(snap submission.Snapshot) {
		fn(SubmissionEvent(snap))
	})
	return func() {
		offConn()
		offSub()
	}
}
