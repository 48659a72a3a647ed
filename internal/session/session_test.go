package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fdg312/informes-hub/internal/report"
	"github.com/fdg312/informes-hub/internal/reportapi"
	"github.com/fdg312/informes-hub/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	healthErr atomic.Value
	demos     atomic.Int32
}

func (b *fakeBackend) Health(context.Context) error {
	if err, ok := b.healthErr.Load().(error); ok {
		return err
	}
	return nil
}

func (b *fakeBackend) GenerateDemo(context.Context) (*report.GeneratedReport, error) {
	b.demos.Add(1)
	return &report.GeneratedReport{
		ContractType: "Licitación",
		Year:         2024,
		Sections: []report.Section{{
			Title:   "Resumen",
			Message: report.TechnicalMessage{BlockName: "b", Message: "ok", Severity: report.SeverityInfo},
		}},
	}, nil
}

func (b *fakeBackend) GenerateFromFile(ctx context.Context, _ reportapi.Upload) (*report.GeneratedReport, error) {
	return b.GenerateDemo(ctx)
}

func (b *fakeBackend) GenerateFromURL(ctx context.Context, _ string) (*report.GeneratedReport, error) {
	return b.GenerateDemo(ctx)
}

func newManager(t *testing.T, opts Options) (*Manager, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	if opts.Progress.Tick == 0 {
		opts.Progress = submission.Progress{Tick: time.Millisecond}
	}
	m := NewManager(backend, NewTokens("secret", "informes-hub", time.Hour), opts, nil)
	t.Cleanup(func() {
		require.NoError(t, m.Shutdown(context.Background()))
	})
	return m, backend
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", "informes-hub", time.Minute)

	tok, exp, err := tokens.Issue("abc")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	id, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = NewTokens("other", "informes-hub", time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("secret", "someone-else", time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestOpenAuthenticateClose(t *testing.T) {
	m, _ := newManager(t, Options{})

	s, tok, err := m.Open()
	require.NoError(t, err)
	assert.Equal(t, "informe-tecnico", s.Title())
	assert.Nil(t, s.Report())
	assert.True(t, s.View().Empty)

	got, err := m.Authenticate(tok)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.Eventually(t, func() bool { return s.Monitor.State().Connected() }, time.Second, time.Millisecond)

	select {
	case <-s.Done():
		t.Fatal("done closed before the session was")
	default:
	}

	require.NoError(t, m.Close(context.Background(), s.ID))
	select {
	case <-s.Done():
	default:
		t.Fatal("done still open after close")
	}
	_, err = m.Authenticate(tok)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Close(context.Background(), s.ID), ErrSessionNotFound)
}

func TestSessionSubmitAndTitle(t *testing.T) {
	m, backend := newManager(t, Options{})
	s, _, err := m.Open()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.Monitor.State().Connected() }, time.Second, time.Millisecond)

	var mu sync.Mutex
	var events []Event
	off := s.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer off()

	require.NoError(t, s.Controller.SubmitDemo(context.Background()))
	require.Eventually(t, func() bool { return s.Report() != nil }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, backend.demos.Load())
	assert.Equal(t, 1, s.View().Counts.Info)

	assert.Equal(t, "Informe Obra", s.SetTitle("  Informe Obra "))
	subj := s.ExportSubject()
	assert.Equal(t, s.ID, subj.SessionID)
	assert.Equal(t, "Informe Obra", subj.Title)
	assert.NotNil(t, subj.Report)
	assert.Equal(t, "informe-tecnico", s.SetTitle(""))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventSubmission, last.Type)
	assert.Equal(t, submission.PhaseSucceeded, last.Submission.Phase)
	assert.True(t, last.Submission.HasReport)
	assert.True(t, last.Submission.ProgressSynthetic)
}

func TestMaxSessions(t *testing.T) {
	m, _ := newManager(t, Options{MaxSessions: 1})

	_, _, err := m.Open()
	require.NoError(t, err)
	_, _, err = m.Open()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestSweepClosesExpiredSessions(t *testing.T) {
	var closed []string
	m, _ := newManager(t, Options{OnClose: func(_ context.Context, id string) { closed = append(closed, id) }})

	s, _, err := m.Open()
	require.NoError(t, err)
	assert.Equal(t, 0, m.Sweep(context.Background()))

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 1, m.Sweep(context.Background()))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, []string{s.ID}, closed)

	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestShutdownRefusesNewSessions(t *testing.T) {
	m, _ := newManager(t, Options{})
	for i := 0; i < 3; i++ {
		_, _, err := m.Open()
		require.NoError(t, err)
	}

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.Len())

	_, _, err := m.Open()
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestRequireSession(t *testing.T) {
	m, _ := newManager(t, Options{})
	s, tok, err := m.Open()
	require.NoError(t, err)

	mw := NewMiddleware(m, nil)
	var seen *Session
	h := mw.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"bearer", http.MethodPost, "/v1/submissions", "Bearer " + tok, http.StatusNoContent},
		{"query token on GET", http.MethodGet, "/v1/events?token=" + tok, "", http.StatusNoContent},
		{"query token on POST", http.MethodPost, "/v1/submissions?token=" + tok, "", http.StatusUnauthorized},
		{"missing", http.MethodGet, "/v1/report", "", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/v1/report", "Basic " + tok, http.StatusUnauthorized},
		{"garbage", http.MethodGet, "/v1/report", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusNoContent {
				assert.Same(t, s, seen)
			}
		})
	}
}
