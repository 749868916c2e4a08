package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrInvalidConfig = errors.New("workflow: invalid config")

const (
	detectionTimeoutMessage    = "Face detection timeout. Please try again."
	registrationTimeoutMessage = "Registration timeout. Please try again."
	pendingPrefix              = "confirming "
)

// Config controls debounce and timeouts.
type Config struct {
	ConfirmationThreshold int           `json:"confirmationThreshold"`
	DetectionTimeout      time.Duration `json:"detectionTimeout"`
	RegistrationTimeout   time.Duration `json:"registrationTimeout"`
}

// DefaultConfig returns a two-request debounce, 30s detection and 15s
// registration timeouts.
func DefaultConfig() Config {
	return Config{
		ConfirmationThreshold: 2,
		DetectionTimeout:      30 * time.Second,
		RegistrationTimeout:   15 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.ConfirmationThreshold < 1 {
		return fmt.Errorf("%w: confirmationThreshold must be positive", ErrInvalidConfig)
	}
	if c.DetectionTimeout <= 0 || c.RegistrationTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

type pendingTransition struct {
	candidate State
	count     int
}

// Machine is the workflow state machine for one attempt. All methods are
// safe for concurrent use; CurrentState never blocks.
type Machine struct {
	cfg       Config
	logger    *slog.Logger
	onTimeout func(State)

	state atomic.Int32

	mu        sync.Mutex
	pending   *pendingTransition
	epoch     uint64
	timer     *time.Timer
	torndown  bool
	dispatch  *dispatcher
	committed atomic.Uint64
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTimeoutHandler registers fn to run after a timeout state commits.
// It runs on the timer goroutine, outside the machine's lock.
func WithTimeoutHandler(fn func(State)) Option {
	return func(m *Machine) { m.onTimeout = fn }
}

// New returns a machine in Initializing.
func New(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(Initializing))
	m.dispatch = newDispatcher(m.logger)
	return m, nil
}

// CurrentState returns the committed state.
func (m *Machine) CurrentState() State {
	return State(m.state.Load())
}

// Transitions returns how many transitions have committed.
func (m *Machine) Transitions() uint64 {
	return m.committed.Load()
}

// SetListener replaces the notification listener. nil disables delivery.
func (m *Machine) SetListener(l Listener) {
	m.dispatch.setListener(l)
}

// RequestTransition asks for candidate and reports whether the visible state
// changed. message overrides the state's default message when non-empty.
func (m *Machine) RequestTransition(candidate State, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestLocked(candidate, message, !immediate(candidate))
}

// Confirm commits candidate without waiting for repeated requests. It is for
// explicit collaborator actions (capture, upload) rather than per-frame
// signals. Validity rules still apply.
func (m *Machine) Confirm(candidate State, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestLocked(candidate, message, false)
}

// Pending reports the candidate awaiting confirmation, if any.
func (m *Machine) Pending() (State, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return 0, 0, false
	}
	return m.pending.candidate, m.pending.count, true
}

func (m *Machine) requestLocked(candidate State, message string, debounce bool) bool {
	if m.torndown {
		transitionsDropped.WithLabelValues("torndown").Inc()
		return false
	}
	if !candidate.valid() {
		transitionsDropped.WithLabelValues("unknown").Inc()
		m.logger.Warn("workflow: unknown state requested", "state", int32(candidate))
		return false
	}

	current := m.CurrentState()
	if current == candidate {
		m.pending = nil
		return false
	}
	if !allowed(current, candidate) {
		reason := "invalid"
		if current.IsFinal() {
			reason = "final"
		}
		transitionsDropped.WithLabelValues(reason).Inc()
		m.logger.Debug("workflow: transition rejected",
			"from", current.String(), "to", candidate.String(), "reason", reason)
		return false
	}

	if message == "" {
		message = candidate.DefaultMessage()
	}

	if debounce {
		if m.pending == nil || m.pending.candidate != candidate {
			m.pending = &pendingTransition{candidate: candidate}
		}
		m.pending.count++
		if m.pending.count < m.cfg.ConfirmationThreshold {
			transitionsPending.Inc()
			m.dispatch.push(Notification{
				State:    candidate,
				Previous: current,
				Message:  pendingPrefix + message,
				Pending:  true,
				At:       time.Now(),
			})
			return false
		}
	}
	m.pending = nil

	if !m.state.CompareAndSwap(int32(current), int32(candidate)) {
		transitionsDropped.WithLabelValues("conflict").Inc()
		return false
	}
	m.committed.Add(1)
	transitionsTotal.WithLabelValues(current.String(), candidate.String()).Inc()
	m.logger.Debug("workflow: transition", "from", current.String(), "to", candidate.String())

	m.rescheduleLocked(candidate)
	m.dispatch.push(Notification{
		State:    candidate,
		Previous: current,
		Message:  message,
		At:       time.Now(),
	})
	return true
}

// rescheduleLocked cancels the outstanding deadline and arms the one that
// belongs to s. A firing from an older epoch is ignored.
func (m *Machine) rescheduleLocked(s State) {
	m.cancelLocked()
	kind := timeoutFor(s)
	if kind == noTimeout {
		return
	}
	d := m.cfg.DetectionTimeout
	if kind == registrationTimeout {
		d = m.cfg.RegistrationTimeout
	}
	epoch := m.epoch
	m.timer = time.AfterFunc(d, func() { m.fire(kind, epoch) })
}

func (m *Machine) cancelLocked() {
	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) fire(kind timeoutKind, epoch uint64) {
	target, message := TimeoutDetection, detectionTimeoutMessage
	if kind == registrationTimeout {
		target, message = TimeoutRegistration, registrationTimeoutMessage
	}

	m.mu.Lock()
	if m.torndown || epoch != m.epoch {
		m.mu.Unlock()
		timeoutsStale.Inc()
		return
	}
	m.timer = nil
	committed := m.requestLocked(target, message, false)
	m.mu.Unlock()

	if !committed {
		return
	}
	timeoutsFired.WithLabelValues(kind.String()).Inc()
	m.logger.Info("workflow: timeout", "kind", kind.String())
	if m.onTimeout != nil {
		m.onTimeout(target)
	}
}

// Reset cancels deadlines, drops any pending candidate and returns to
// Initializing without notifying.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.pending = nil
	if !m.torndown {
		m.state.Store(int32(Initializing))
	}
}

// Teardown cancels deadlines, detaches the listener and stops delivery.
// Every later request is dropped.
func (m *Machine) Teardown() {
	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return
	}
	m.torndown = true
	m.cancelLocked()
	m.pending = nil
	m.mu.Unlock()
	m.dispatch.close()
}

// Closed reports whether Teardown has run.
func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.torndown
}
