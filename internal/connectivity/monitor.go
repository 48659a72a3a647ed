package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fdg312/informes-hub/internal/reportapi"
	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 30 * time.Second
)

// Checker probes the backend. reportapi.Client satisfies it.
type Checker interface {
	Health(ctx context.Context) error
}

// Monitor owns the ConnectivityState of one session.
type Monitor struct {
	checker  Checker
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	state   State
	seq     uint64
	applied uint64
	closed  bool
	subs    map[int]func(State)
	nextSub int

	// held while subscribers run so Stop can wait for them
	notifyMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

func New(checker Checker, opts ...Option) *Monitor {
	m := &Monitor{
		checker:  checker,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start checks immediately and then every interval until Stop or ctx ends.
// Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil || m.isClosed() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// Stop cancels the periodic check and waits for it to exit. After Stop
// returns no subscriber is called again.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.subs = make(map[int]func(State))
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	m.notifyMu.Lock()
	m.notifyMu.Unlock()
}

// State returns the last applied state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn for every applied check result. fn runs on the
// checking goroutine and must not call CheckNow.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// CheckNow probes the backend once, bounded by the monitor timeout. A
// check still running at the deadline counts as failed. The result is
// returned to the caller even when a newer check already landed.
func (m *Monitor) CheckNow(ctx context.Context) State {
	m.mu.Lock()
	if m.closed {
		st := m.state
		m.mu.Unlock()
		return st
	}
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- m.checker.Health(checkCtx)
	}()

	var err error
	select {
	case err = <-result:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	// Caller went away (teardown); nothing to record.
	if ctx.Err() != nil {
		return m.State()
	}

	next := State{
		Status:    StatusConnected,
		CheckedAt: time.Now(),
		Latency:   time.Since(started),
	}
	if err != nil {
		next.Status = StatusDisconnected
		next.Reason = m.describe(err)
	}

	m.apply(seq, next)
	return next
}

func (m *Monitor) apply(seq uint64, next State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.closed || seq < m.applied {
		m.mu.Unlock()
		return
	}
	m.applied = seq
	prev := m.state
	m.state = next
	subs := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if prev.Status != next.Status {
		if next.Connected() {
			m.logger.Info("connectivity: backend reachable", zap.Duration("latency", next.Latency))
		} else {
			m.logger.Warn("connectivity: backend unreachable", zap.String("reason", next.Reason))
		}
	}

	for _, fn := range subs {
		fn(next)
	}
}

func (m *Monitor) describe(err error) string {
	var se *reportapi.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("tiempo de espera agotado (%s)", m.timeout)
	case errors.As(err, &se):
		return fmt.Sprintf("respuesta inesperada del servidor (HTTP %d)", se.StatusCode)
	default:
		return "no se pudo contactar al servidor: " + err.Error()
	}
}

func (m *Monitor) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
