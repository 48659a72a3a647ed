package submission

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/render"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/fdg312/informes-hub/internal/reportapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGen struct {
	calls   atomic.Int32
	release chan struct{}
	rep     *report.GeneratedReport
	err     error

	mu      sync.Mutex
	uploads []reportapi.Upload
	urls    []string
}

func newFakeGen(rep *report.GeneratedReport, err error) *fakeGen {
	return &fakeGen{rep: rep, err: err}
}

func (g *fakeGen) wait(ctx context.Context) (*report.GeneratedReport, error) {
	g.calls.Add(1)
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.rep, g.err
}

func (g *fakeGen) GenerateDemo(ctx context.Context) (*report.GeneratedReport, error) {
	return g.wait(ctx)
}

func (g *fakeGen) GenerateFromFile(ctx context.Context, up reportapi.Upload) (*report.GeneratedReport, error) {
	g.mu.Lock()
	g.uploads = append(g.uploads, up)
	g.mu.Unlock()
	return g.wait(ctx)
}

func (g *fakeGen) GenerateFromURL(ctx context.Context, excelURL string) (*report.GeneratedReport, error) {
	g.mu.Lock()
	g.urls = append(g.urls, excelURL)
	g.mu.Unlock()
	return g.wait(ctx)
}

type fakeConn struct {
	state   connectivity.State
	recheck connectivity.State
	checks  atomic.Int32
}

func connected() *fakeConn {
	st := connectivity.State{Status: connectivity.StatusConnected}
	return &fakeConn{state: st, recheck: st}
}

func (c *fakeConn) State() connectivity.State { return c.state }

func (c *fakeConn) CheckNow(context.Context) connectivity.State {
	c.checks.Add(1)
	c.state = c.recheck
	return c.recheck
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func phases(snaps []Snapshot) []Phase {
	out := make([]Phase, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Phase)
	}
	return out
}

func waitTerminal(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().Phase.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return c.Snapshot()
}

// scenario with one CRITICAL budget section
func overrunReport() *report.GeneratedReport {
	return &report.GeneratedReport{
		ContractType: "Urgencia Manifiesta",
		Year:         2025,
		Sections: []report.Section{{
			Title: "Análisis Presupuestal",
			Data: report.Fields{
				{Key: "presupuesto_aprobado", Value: 1000.0},
				{Key: "valor_ejecutado", Value: 1200.0},
			},
			Message: report.TechnicalMessage{BlockName: "Presupuesto", Message: "Sobreejecución", Severity: report.SeverityCritical},
		}},
	}
}

func TestSubmitDemoSucceeds(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	c := New(gen, connected(), nil)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.SubmitDemo(context.Background()))
	final := waitTerminal(t, c)

	assert.Equal(t, PhaseSucceeded, final.Phase)
	assert.Equal(t, KindDemo, final.Kind)
	assert.Equal(t, 0, final.Progress)
	assert.Nil(t, final.Err)
	assert.EqualValues(t, 1, gen.calls.Load())

	snaps := rec.all()
	require.GreaterOrEqual(t, len(snaps), 3)
	assert.Equal(t, PhaseSubmitting, snaps[0].Phase)
	assert.Equal(t, 100, snaps[len(snaps)-2].Progress)
	assert.Equal(t, PhaseSucceeded, snaps[len(snaps)-1].Phase)

	view := render.Present(final.Report)
	assert.Equal(t, 1, view.Counts.Critical)
	assert.Equal(t, 0, view.Counts.Warning)
	require.Len(t, view.Sections, 1)
	require.NotNil(t, view.Sections[0].Budget)
	assert.Equal(t, render.TierOverrun, view.Sections[0].Budget.Tier)
}

func TestProgressIsMonotonicAndClamped(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	gen.release = make(chan struct{})

	c := New(gen, connected(), nil, WithProgress(Progress{Tick: 2 * time.Millisecond, Step: 30, Ceiling: 90}))
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.SubmitDemo(context.Background()))
	require.Eventually(t, func() bool { return c.Snapshot().Progress == 90 }, 2*time.Second, 2*time.Millisecond)

	// stays at the ceiling while the request is pending
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 90, c.Snapshot().Progress)

	close(gen.release)
	waitTerminal(t, c)

	last := -1
	var submitting []int
	for _, s := range rec.all() {
		if s.Phase != PhaseSubmitting {
			continue
		}
		submitting = append(submitting, s.Progress)
		assert.GreaterOrEqual(t, s.Progress, last)
		last = s.Progress
	}
	require.NotEmpty(t, submitting)
	assert.Equal(t, 0, submitting[0])
	assert.Equal(t, 100, submitting[len(submitting)-1])
	assert.Equal(t, 0, c.Snapshot().Progress)
}

func TestSecondSubmitWhileInFlightIsRejected(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	gen.release = make(chan struct{})
	c := New(gen, connected(), nil)
	defer c.Close()

	require.NoError(t, c.SubmitDemo(context.Background()))
	assert.ErrorIs(t, c.SubmitDemo(context.Background()), ErrInFlight)
	assert.ErrorIs(t, c.SubmitURL(context.Background(), "https://example.com/a.xlsx"), ErrInFlight)
	assert.ErrorIs(t, c.Reset(), ErrInFlight)

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.InFlight())

	close(gen.release)
	waitTerminal(t, c)
	assert.EqualValues(t, 1, gen.calls.Load())
	assert.Equal(t, 0, c.InFlight())
}

func TestSubmitFileWithoutCandidateFailsLocally(t *testing.T) {
	conn := &fakeConn{state: connectivity.State{Status: connectivity.StatusDisconnected}}
	gen := newFakeGen(nil, nil)
	slot := &intake.Slot{}
	c := New(gen, conn, slot)
	defer c.Close()

	assert.ErrorIs(t, c.SubmitFile(context.Background(), Metadata{}), ErrNoValidFile)

	in := intake.New(intake.DefaultMaxBytes)
	slot.Put(in.Accept(intake.FromBytes("notas.txt", []byte("x"), intake.OriginDrop)))
	assert.ErrorIs(t, c.SubmitFile(context.Background(), Metadata{}), ErrNoValidFile)

	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
	assert.EqualValues(t, 0, conn.checks.Load())
	assert.EqualValues(t, 0, gen.calls.Load())
}

func TestSubmitFileSendsStagedCopyAndClearsSlot(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	slot := &intake.Slot{}
	c := New(gen, connected(), slot)
	defer c.Close()

	in := intake.New(intake.DefaultMaxBytes)
	staged, err := in.Stage(in.Accept(intake.FromBytes("contrato.xlsx", []byte("PK-data"), intake.OriginPicker)))
	require.NoError(t, err)
	slot.Put(staged)

	require.NoError(t, c.SubmitFile(context.Background(), Metadata{Supervisor: "Ana", Project: "Puente"}))
	_, ok := slot.Current()
	assert.False(t, ok)

	final := waitTerminal(t, c)
	assert.Equal(t, PhaseSucceeded, final.Phase)
	assert.Equal(t, "contrato.xlsx", final.FileName)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	require.Len(t, gen.uploads, 1)
	up := gen.uploads[0]
	assert.Equal(t, "contrato.xlsx", up.FileName)
	assert.Equal(t, intake.KindXLSX.ContentType(), up.ContentType)
	assert.Equal(t, "Ana", up.Supervisor)
	assert.Equal(t, "Puente", up.Project)

	rc, err := up.Open()
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "PK-data", string(body))
}

// reselectConn stages another file while the out-of-cycle check runs.
type reselectConn struct {
	slot *intake.Slot
	next intake.Candidate
}

func (c *reselectConn) State() connectivity.State {
	return connectivity.State{Status: connectivity.StatusUnknown}
}

func (c *reselectConn) CheckNow(context.Context) connectivity.State {
	c.slot.Put(c.next)
	return connectivity.State{Status: connectivity.StatusConnected}
}

func TestSubmitFileKeepsSelectionMadeDuringCheck(t *testing.T) {
	in := intake.New(intake.DefaultMaxBytes)
	a := in.Accept(intake.FromBytes("a.xlsx", []byte("A"), intake.OriginPicker))
	b := in.Accept(intake.FromBytes("b.xlsx", []byte("B"), intake.OriginDrop))

	gen := newFakeGen(overrunReport(), nil)
	slot := &intake.Slot{}
	slot.Put(a)
	c := New(gen, &reselectConn{slot: slot, next: b}, slot)
	defer c.Close()

	require.NoError(t, c.SubmitFile(context.Background(), Metadata{}))
	waitTerminal(t, c)

	gen.mu.Lock()
	require.Len(t, gen.uploads, 1)
	assert.Equal(t, "a.xlsx", gen.uploads[0].FileName)
	gen.mu.Unlock()

	cur, ok := slot.Current()
	require.True(t, ok, "selection made during the check was cleared")
	assert.Equal(t, "b.xlsx", cur.Name)
}

func TestSubmitURLValidatesLocally(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	conn := connected()
	c := New(gen, conn, nil)
	defer c.Close()

	for _, raw := range []string{"", "ftp://x/y.xlsx", "not a url", "https://"} {
		assert.ErrorIs(t, c.SubmitURL(context.Background(), raw), ErrInvalidURL, raw)
	}
	assert.EqualValues(t, 0, gen.calls.Load())

	require.NoError(t, c.SubmitURL(context.Background(), " https://example.com/datos.xlsx "))
	waitTerminal(t, c)
	gen.mu.Lock()
	assert.Equal(t, []string{"https://example.com/datos.xlsx"}, gen.urls)
	gen.mu.Unlock()
}

func TestDisconnectedBackendNeverSendsRequest(t *testing.T) {
	var healthCalls atomic.Int32
	release := make(chan struct{})
	defer close(release)

	monitor := connectivity.New(healthFunc(func(ctx context.Context) error {
		healthCalls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return ctx.Err()
	}), connectivity.WithTimeout(20*time.Millisecond))
	defer monitor.Stop()

	monitor.CheckNow(context.Background())
	require.Equal(t, connectivity.StatusDisconnected, monitor.State().Status)

	gen := newFakeGen(overrunReport(), nil)
	c := New(gen, monitor, nil)
	defer c.Close()

	rec := &recorder{}
	c.Subscribe(rec.record)

	require.NoError(t, c.SubmitDemo(context.Background()))

	final := c.Snapshot()
	assert.Equal(t, PhaseFailed, final.Phase)
	var connErr *connectivity.Error
	require.ErrorAs(t, final.Err, &connErr)
	assert.Contains(t, final.ErrorMessage(), "Error de conexión con el backend")

	assert.EqualValues(t, 2, healthCalls.Load())
	assert.EqualValues(t, 0, gen.calls.Load())
	assert.Equal(t, []Phase{PhaseFailed}, phases(rec.all()))
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestRecheckRecoversConnection(t *testing.T) {
	conn := &fakeConn{
		state:   connectivity.State{Status: connectivity.StatusDisconnected, Reason: "x"},
		recheck: connectivity.State{Status: connectivity.StatusConnected},
	}
	gen := newFakeGen(overrunReport(), nil)
	c := New(gen, conn, nil)
	defer c.Close()

	require.NoError(t, c.SubmitDemo(context.Background()))
	final := waitTerminal(t, c)

	assert.Equal(t, PhaseSucceeded, final.Phase)
	assert.EqualValues(t, 1, conn.checks.Load())
	assert.EqualValues(t, 1, gen.calls.Load())
}

func TestServerErrorsAgainstRealClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case reportapi.GenerateDemoPath:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"La columna 'Valor' no existe"}`))
		case reportapi.GeneratePath:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`<html>oops</html>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	client := reportapi.New(srv.URL)
	c := New(client, connected(), nil)
	defer c.Close()

	require.NoError(t, c.SubmitDemo(context.Background()))
	final := waitTerminal(t, c)
	assert.Equal(t, PhaseFailed, final.Phase)
	assert.Equal(t, "La columna 'Valor' no existe", final.ErrorMessage())

	var subErr *Error
	require.ErrorAs(t, final.Err, &subErr)
	assert.Equal(t, ErrorServer, subErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, subErr.StatusCode)

	require.NoError(t, c.Reset())
	require.NoError(t, c.SubmitURL(context.Background(), "https://example.com/a.xlsx"))
	final = waitTerminal(t, c)
	assert.Equal(t, reportapi.FallbackMessage, final.ErrorMessage())
}

func TestTransportErrorUsesFallback(t *testing.T) {
	gen := newFakeGen(nil, errors.New("dial tcp: connection refused"))
	c := New(gen, connected(), nil)
	defer c.Close()

	require.NoError(t, c.SubmitDemo(context.Background()))
	final := waitTerminal(t, c)

	var subErr *Error
	require.ErrorAs(t, final.Err, &subErr)
	assert.Equal(t, ErrorTransport, subErr.Kind)
	assert.Equal(t, reportapi.FallbackMessage, final.ErrorMessage())
}

func TestNewSubmissionClearsPreviousResult(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	c := New(gen, connected(), nil)
	defer c.Close()

	require.NoError(t, c.SubmitDemo(context.Background()))
	require.NotNil(t, waitTerminal(t, c).Report)

	gen.release = make(chan struct{})
	require.NoError(t, c.SubmitDemo(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, PhaseSubmitting, snap.Phase)
	assert.Nil(t, snap.Report)
	assert.EqualValues(t, 2, snap.Attempt)

	close(gen.release)
	waitTerminal(t, c)
}

func TestResetReturnsToIdle(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	c := New(gen, connected(), nil)
	defer c.Close()

	require.NoError(t, c.Reset())
	require.NoError(t, c.SubmitDemo(context.Background()))
	waitTerminal(t, c)

	require.NoError(t, c.Reset())
	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Report)
	assert.Nil(t, snap.Err)
}

func TestCloseDropsLateResponse(t *testing.T) {
	gen := newFakeGen(overrunReport(), nil)
	gen.release = make(chan struct{})
	c := New(gen, connected(), nil, WithProgress(Progress{Tick: time.Millisecond}))

	var afterClose atomic.Bool
	var closed atomic.Bool
	c.Subscribe(func(Snapshot) {
		if closed.Load() {
			afterClose.Store(true)
		}
	})

	require.NoError(t, c.SubmitDemo(context.Background()))
	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Close()
	closed.Store(true)
	close(gen.release)

	time.Sleep(10 * time.Millisecond)
	assert.False(t, afterClose.Load())
	assert.Equal(t, PhaseSubmitting, c.Snapshot().Phase)
	assert.Equal(t, 0, c.InFlight())
	assert.ErrorIs(t, c.SubmitDemo(context.Background()), ErrClosed)
}
