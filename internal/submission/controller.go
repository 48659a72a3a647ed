package submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/fdg312/informes-hub/internal/reportapi"
	"go.uber.org/zap"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for _, c := range []Phase{PhaseIdle, PhaseSubmitting, PhaseSucceeded, PhaseFailed} {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// Terminal reports whether p is Succeeded or Failed.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Generator sends the outbound request. reportapi.Client satisfies it.
type Generator interface {
	GenerateDemo(ctx context.Context) (*report.GeneratedReport, error)
	GenerateFromFile(ctx context.Context, up reportapi.Upload) (*report.GeneratedReport, error)
	GenerateFromURL(ctx context.Context, excelURL string) (*report.GeneratedReport, error)
}

// Connectivity is the read side of connectivity.Monitor.
type Connectivity interface {
	State() connectivity.State
	CheckNow(ctx context.Context) connectivity.State
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Phase      Phase
	Kind       Kind
	Attempt    uint64
	Progress   int
	FileName   string
	Report     *report.GeneratedReport
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// ErrorMessage is the user-facing failure text, empty unless Failed.
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Progress shapes the synthetic progress indicator. It is a UI
// approximation and never a measurement of the transfer.
type Progress struct {
	Tick    time.Duration
	Step    int
	Ceiling int
}

var defaultProgress = Progress{Tick: 500 * time.Millisecond, Step: 10, Ceiling: 90}

type Option func(*Controller)

func WithProgress(p Progress) Option {
	return func(c *Controller) {
		if p.Tick > 0 {
			c.progressCfg.Tick = p.Tick
		}
		if p.Step > 0 {
			c.progressCfg.Step = p.Step
		}
		if p.Ceiling > 0 && p.Ceiling < 100 {
			c.progressCfg.Ceiling = p.Ceiling
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller drives Idle -> Submitting -> {Succeeded, Failed} -> Idle for
// demo, file and URL submissions alike. At most one attempt is in flight.
type Controller struct {
	gen         Generator
	conn        Connectivity
	slot        *intake.Slot
	logger      *zap.Logger
	progressCfg Progress

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	// notifyMu serialises transitions with their notifications so
	// subscribers see them in order and never after Close.
	notifyMu sync.Mutex

	mu       sync.Mutex
	state    Snapshot
	busy     bool
	inFlight int
	closed   bool
	subs     map[int]func(Snapshot)
	nextSub  int
}

func New(gen Generator, conn Connectivity, slot *intake.Slot, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		gen:         gen,
		conn:        conn,
		slot:        slot,
		logger:      zap.NewNop(),
		progressCfg: defaultProgress,
		baseCtx:     ctx,
		cancelAll:   cancel,
		subs:        make(map[int]func(Snapshot)),
	}
	if c.slot == nil {
		c.slot = &intake.Slot{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight is the number of outbound requests not yet resolved.
func (c *Controller) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Subscribe registers fn for every transition and progress tick. fn must
// not call back into the controller's mutating methods.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) SubmitDemo(ctx context.Context) error {
	return c.submit(ctx, func() (Request, error) {
		return DemoRequest{}, nil
	})
}

// SubmitFile sends the staged candidate. A missing or rejected candidate
// fails locally before connectivity is consulted.
func (c *Controller) SubmitFile(ctx context.Context, meta Metadata) error {
	return c.submit(ctx, func() (Request, error) {
		cand, seq, ok := c.slot.Selection()
		if !ok || !cand.Valid() {
			return nil, ErrNoValidFile
		}
		f, _ := cand.File()
		return FileRequest{
			File:       f,
			FileKind:   cand.Kind,
			Supervisor: meta.Supervisor,
			Project:    meta.Project,
			selection:  seq,
		}, nil
	})
}

func (c *Controller) SubmitURL(ctx context.Context, excelURL string) error {
	return c.submit(ctx, func() (Request, error) {
		return newURLRequest(excelURL)
	})
}

// submit returns nil once the attempt was accepted, even if it then
// failed; failures are read from the Snapshot. Errors are returned only
// for local preconditions, ErrInFlight and ErrClosed.
func (c *Controller) submit(ctx context.Context, build func() (Request, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrInFlight
	}
	req, err := build()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.busy = true
	c.mu.Unlock()

	st := c.conn.State()
	if !st.Connected() {
		st = c.conn.CheckNow(ctx)
	}
	if !st.Connected() {
		return c.failWithoutRequest(req, st.Err())
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.busy = false
		c.mu.Unlock()
		return ErrClosed
	}

	now := time.Now()
	c.state = Snapshot{
		Phase:     PhaseSubmitting,
		Kind:      req.Kind(),
		Attempt:   c.state.Attempt + 1,
		StartedAt: now,
	}
	if fr, ok := req.(FileRequest); ok {
		c.state.FileName = fr.File.Name
		// a file picked during the connectivity check stays staged
		c.slot.ClearIf(fr.selection)
	}
	attempt := c.state.Attempt

	reqCtx, cancelReq := context.WithCancel(c.baseCtx)
	progressCtx, stopProgress := context.WithCancel(reqCtx)

	c.inFlight++
	c.wg.Add(2)
	snap := c.state
	c.mu.Unlock()

	c.logger.Info("submission: started",
		zap.String("kind", string(req.Kind())),
		zap.Uint64("attempt", attempt),
	)
	c.emit(snap)

	go c.runProgress(progressCtx, attempt)
	go c.run(reqCtx, cancelReq, stopProgress, attempt, req)

	return nil
}

func (c *Controller) failWithoutRequest(req Request, cause error) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	now := time.Now()
	c.state = Snapshot{
		Phase:      PhaseFailed,
		Kind:       req.Kind(),
		Attempt:    c.state.Attempt + 1,
		Err:        cause,
		StartedAt:  now,
		FinishedAt: now,
	}
	snap := c.state
	c.mu.Unlock()

	c.logger.Warn("submission: backend unreachable, request not sent",
		zap.String("kind", string(req.Kind())),
		zap.Error(cause),
	)
	c.emit(snap)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel, stopProgress context.CancelFunc, attempt uint64, req Request) {
	defer c.wg.Done()
	defer cancel()

	rep, err := c.send(ctx, req)
	stopProgress()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.inFlight--
	if c.closed || c.state.Attempt != attempt {
		c.mu.Unlock()
		c.logger.Debug("submission: dropping late response", zap.Uint64("attempt", attempt))
		return
	}

	c.state.Progress = 100
	done := c.state

	c.busy = false
	c.state.Progress = 0
	c.state.FinishedAt = time.Now()
	if err != nil {
		c.state.Phase = PhaseFailed
		c.state.Err = classify(err)
	} else {
		c.state.Phase = PhaseSucceeded
		c.state.Report = rep
	}
	final := c.state
	c.mu.Unlock()

	elapsed := final.FinishedAt.Sub(final.StartedAt)
	if err != nil {
		c.logger.Warn("submission: failed",
			zap.String("kind", string(req.Kind())),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Info("submission: succeeded",
			zap.String("kind", string(req.Kind())),
			zap.Int("sections", len(rep.Sections)),
			zap.Duration("elapsed", elapsed),
		)
	}

	c.emit(done)
	c.emit(final)
}

func (c *Controller) send(ctx context.Context, req Request) (*report.GeneratedReport, error) {
	switch r := req.(type) {
	case DemoRequest:
		return c.gen.GenerateDemo(ctx)
	case URLRequest:
		return c.gen.GenerateFromURL(ctx, r.ExcelURL)
	case FileRequest:
		return c.gen.GenerateFromFile(ctx, reportapi.Upload{
			FileName:    r.File.Name,
			ContentType: r.FileKind.ContentType(),
			Open:        r.File.Open,
			Supervisor:  r.Supervisor,
			Project:     r.Project,
		})
	default:
		return nil, fmt.Errorf("unsupported request %T", req)
	}
}

func (c *Controller) runProgress(ctx context.Context, attempt uint64) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.progressCfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.advance(attempt) {
				return
			}
		}
	}
}

// advance moves progress one step toward the ceiling. It returns false
// once the attempt is no longer submitting.
func (c *Controller) advance(attempt uint64) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || c.state.Attempt != attempt || c.state.Phase != PhaseSubmitting {
		c.mu.Unlock()
		return false
	}
	next := c.state.Progress + c.progressCfg.Step
	if next > c.progressCfg.Ceiling {
		next = c.progressCfg.Ceiling
	}
	if next == c.state.Progress {
		c.mu.Unlock()
		return true
	}
	c.state.Progress = next
	snap := c.state
	c.mu.Unlock()

	c.emit(snap)
	return true
}

// Reset returns a terminal state to Idle, clearing result and error.
func (c *Controller) Reset() error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrInFlight
	}
	if c.state.Phase == PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = Snapshot{Phase: PhaseIdle, Attempt: c.state.Attempt}
	snap := c.state
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// Close cancels timers and the pending request and waits for them. No
// subscriber runs and no response is applied after Close returns.
func (c *Controller) Close() {
	c.notifyMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return
	}
	c.closed = true
	c.subs = make(map[int]func(Snapshot))
	c.mu.Unlock()
	c.notifyMu.Unlock()

	c.cancelAll()
	c.wg.Wait()
}

// emit must be called with notifyMu held and mu released.
func (c *Controller) emit(s Snapshot) {
	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
