package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/intake"
	"github.com/fdg312/informes-hub/internal/submission"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
	ErrShutdown        = errors.New("session manager is shut down")
)

// Backend is the upstream report service. reportapi.Client satisfies it.
type Backend interface {
	connectivity.Checker
	submission.Generator
}

type Options struct {
	MaxSessions          int
	UploadMaxBytes       int64
	ConnectivityTimeout  time.Duration
	ConnectivityInterval time.Duration
	Progress             submission.Progress
	SweepInterval        time.Duration
	// OnClose runs after a session has been torn down.
	OnClose func(ctx context.Context, sessionID string)
}

// Manager owns every open session.
type Manager struct {
	backend Backend
	tokens  *Tokens
	opts    Options
	logger  *zap.Logger
	now     func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool
}

func NewManager(backend Backend, tokens *Tokens, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		backend:  backend,
		tokens:   tokens,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session, starts its connectivity monitor and returns it
// with a signed token.
func (m *Manager) Open() (*Session, string, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, "", ErrShutdown
	}
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, "", ErrTooManySessions
	}

	id := uuid.NewString()
	token, exp, err := m.tokens.Issue(id)
	if err != nil {
		m.mu.Unlock()
		return nil, "", err
	}

	logger := m.logger.With(zap.String("session_id", id))
	monitor := connectivity.New(m.backend,
		connectivity.WithTimeout(m.opts.ConnectivityTimeout),
		connectivity.WithInterval(m.opts.ConnectivityInterval),
		connectivity.WithLogger(logger),
	)
	slot := &intake.Slot{}
	now := m.now()

	s := &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: exp,
		Monitor:   monitor,
		Intake:    intake.New(m.opts.UploadMaxBytes),
		Slot:      slot,
		Controller: submission.New(m.backend, monitor, slot,
			submission.WithProgress(m.opts.Progress),
			submission.WithLogger(logger),
		),
		lastSeen: now,
	}
	s.SetTitle("")
	m.sessions[id] = s
	m.mu.Unlock()

	monitor.Start(m.baseCtx)
	logger.Info("session: opened", zap.Time("expires_at", exp))
	return s, token, nil
}

// Authenticate resolves a bearer token to its live session.
func (m *Manager) Authenticate(token string) (*Session, error) {
	id, err := m.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return m.Get(id)
}

// Get returns a live session. An expired session is closed on access.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := m.now()
	if s.expired(now) {
		_ = m.Close(context.Background(), id)
		return nil, ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Close tears a session down.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if s.close() {
		if m.opts.OnClose != nil {
			m.opts.OnClose(ctx, id)
		}
		m.logger.Info("session: closed", zap.String("session_id", id))
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps expired sessions until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep closes every expired session and returns how many it closed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		_ = m.Close(ctx, id)
	}
	if len(expired) > 0 {
		m.logger.Info("session: swept expired sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Shutdown closes all sessions in parallel and refuses new ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			err := m.Close(gctx, id)
			if errors.Is(err, ErrSessionNotFound) {
				return nil
			}
			return err
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		m.logger.Info("session: all sessions closed", zap.Int("count", len(ids)))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
