package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/circuitbreaker"
	"github.com/mbd888/facegate/internal/framing"
	"github.com/mbd888/facegate/internal/idgen"
	"github.com/mbd888/facegate/internal/logging"
	"github.com/mbd888/facegate/internal/metrics"
	"github.com/mbd888/facegate/internal/realtime"
	"github.com/mbd888/facegate/internal/retry"
	"github.com/mbd888/facegate/internal/traces"
	"github.com/mbd888/facegate/internal/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	idPrefix        = "ses_"
	attemptIDPrefix = "att_"

	// DefaultIdleTimeout closes sessions that stop sending frames.
	DefaultIdleTimeout = 5 * time.Minute
	DefaultMaxSessions = 1000

	recordTimeout = 10 * time.Second
	breakerKey    = "attempt_store"
)

// EventPublisher pushes session events to subscribers.
type EventPublisher interface {
	Publish(sessionID string, typ realtime.EventType, data any)
}

// Config controls the sessions a Manager creates.
type Config struct {
	DefaultScenario antispoof.Scenario
	Workflow        workflow.Config
	IdleTimeout     time.Duration
	MaxSessions     int

	// StableFrames and MaxMovement tune the stability tracker; zero takes
	// the framing defaults.
	StableFrames int
	MaxMovement  float64

	// Tune adjusts each scenario preset before the engine is built.
	Tune func(*antispoof.Config)
}

// DefaultConfig returns verification sessions with the default workflow.
func DefaultConfig() Config {
	return Config{
		DefaultScenario: antispoof.ScenarioVerification,
		Workflow:        workflow.DefaultConfig(),
		IdleTimeout:     DefaultIdleTimeout,
		MaxSessions:     DefaultMaxSessions,
		StableFrames:    framing.DefaultStableFrames,
		MaxMovement:     framing.DefaultMaxMovement,
	}
}

// Manager is the registry of live sessions and the recorder of finished
// attempts.
type Manager struct {
	cfg       Config
	store     Store
	publisher EventPublisher
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	recording sync.WaitGroup
}

// NewManager creates a session manager backed by store.
func NewManager(cfg Config, store Store, logger *slog.Logger) *Manager {
	if cfg.DefaultScenario == "" {
		cfg.DefaultScenario = antispoof.ScenarioVerification
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Workflow == (workflow.Config{}) {
		cfg.Workflow = workflow.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(
		circuitbreaker.WithThreshold(5),
		circuitbreaker.WithCooldown(30*time.Second),
		circuitbreaker.OnTransition(func(t circuitbreaker.Transition) {
			logger.Warn("attempt store circuit changed", "from", t.From.String(), "to", t.To.String())
		}),
	)
	return &Manager{
		cfg:      cfg,
		store:    store,
		breaker:  breaker,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// WithPublisher adds realtime event delivery.
func (m *Manager) WithPublisher(p EventPublisher) *Manager {
	m.publisher = p
	return m
}

// Create starts a session for scenario; empty means the configured default.
func (m *Manager) Create(ctx context.Context, scenario string) (_ *Session, retErr error) {
	ctx, span := traces.StartSpan(ctx, "session.Create", traces.Scenario(scenario))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	sc := m.cfg.DefaultScenario
	if scenario != "" {
		parsed, err := antispoof.ParseScenario(scenario)
		if err != nil {
			return nil, err
		}
		sc = parsed
	}

	ecfg := antispoof.ConfigForScenario(sc)
	if m.cfg.Tune != nil {
		m.cfg.Tune(&ecfg)
	}
	id := idgen.WithPrefix(idPrefix)
	engine, err := antispoof.NewEngine(ecfg, antispoof.WithLogger(m.logger.With("session", id)))
	if err != nil {
		return nil, fmt.Errorf("session: engine config: %w", err)
	}
	s, err := newSession(id, sc, engine, m.cfg, m.logger)
	if err != nil {
		return nil, fmt.Errorf("session: workflow config: %w", err)
	}
	s.onFinish = m.finished
	s.machine.SetListener(func(n workflow.Notification) { m.notify(id, n) })

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		s.close()
		return nil, ErrTooManySessions
	}
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	span.SetAttributes(traces.SessionID(id))
	logging.L(ctx).Info("session created", "session", id, "scenario", string(sc))
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Observe runs one frame through session id.
func (m *Manager) Observe(ctx context.Context, id string, f Frame) (_ Outcome, retErr error) {
	ctx, span := traces.StartSpan(ctx, "session.Observe", traces.SessionID(id))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	s, err := m.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	out, err := s.Observe(ctx, f)
	if err != nil {
		return Outcome{}, err
	}
	metrics.FramesObservedTotal.Inc()
	span.SetAttributes(traces.State(out.State.String()))
	if out.Decision != nil {
		span.SetAttributes(attribute.String("verdict", string(out.Decision.Verdict())))
		if out.Decision.IsSpoof {
			m.publish(id, realtime.EventDecisionReject, out.Decision)
		}
	}
	return out, nil
}

// Close tears a session down and forgets it.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.ActiveSessions.Set(float64(n))
	if s.close() {
		logging.L(ctx).Info("session closed", "session", id, "state", s.State().String())
	}
	return nil
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// reapIdle closes sessions with no activity since before and returns how
// many were closed.
func (m *Manager) reapIdle(ctx context.Context, before time.Time) int {
	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.idleSince(before) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if err := m.Close(ctx, id); err == nil {
			closed++
		}
	}
	return closed
}

// Shutdown closes every session and waits for pending attempt writes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
	metrics.ActiveSessions.Set(0)

	done := make(chan struct{})
	go func() {
		m.recording.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetAttempt returns a recorded attempt.
func (m *Manager) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	return m.store.GetAttempt(ctx, id)
}

// ListAttempts returns recorded attempts, newest first.
func (m *Manager) ListAttempts(ctx context.Context, limit int, opts ...ListOption) ([]*Attempt, error) {
	return m.store.ListAttempts(ctx, limit, opts...)
}

func (m *Manager) notify(id string, n workflow.Notification) {
	typ := realtime.EventTransition
	if n.Pending {
		typ = realtime.EventPending
	}
	m.publish(id, typ, n)
}

func (m *Manager) publish(id string, typ realtime.EventType, data any) {
	if m.publisher != nil {
		m.publisher.Publish(id, typ, data)
	}
}

// finished runs under the session lock; the write happens in the background.
func (m *Manager) finished(a *Attempt) {
	now := time.Now()
	a.ID = idgen.WithPrefix(attemptIDPrefix)
	a.CreatedAt = now
	metrics.AttemptsTotal.WithLabelValues(a.Outcome.String()).Inc()
	m.publish(a.SessionID, realtime.EventAttemptFinished, a)

	m.recording.Add(1)
	go func() {
		defer m.recording.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		m.record(ctx, a)
	}()
}

func (m *Manager) record(ctx context.Context, a *Attempt) {
	ctx, span := traces.StartSpan(ctx, "session.recordAttempt",
		traces.SessionID(a.SessionID),
		traces.AttemptID(a.ID),
		traces.State(a.Outcome.String()),
	)
	defer span.End()

	err := m.breaker.Do(breakerKey, func() error {
		return retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
			err := m.store.CreateAttempt(ctx, a)
			if errors.Is(err, ErrDuplicateAttempt) {
				return retry.Permanent(err)
			}
			return err
		})
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		attemptWrites.WithLabelValues("skipped").Inc()
		m.logger.Warn("attempt store unavailable, dropping record",
			"attempt", a.ID, "session", a.SessionID, "outcome", a.Outcome.String())
		return
	case err != nil:
		attemptWrites.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("failed to record attempt",
			"attempt", a.ID, "session", a.SessionID, "error", err)
		return
	}
	attemptWrites.WithLabelValues("stored").Inc()
}
