// Package session drives one face capture attempt end to end.
//
// Flow:
//  1. A client creates a session for a scenario (registration, verification, ...)
//  2. Each camera frame is observed: face count and placement first, then the
//     anti-spoof engine's decision is mapped onto a workflow state
//  3. The client captures, uploads (processing) and completes the attempt
//  4. A final workflow state records an Attempt; Restart begins a new one
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/framing"
	"github.com/mbd888/facegate/internal/workflow"
)

var (
	ErrNotFound         = errors.New("session: not found")
	ErrClosed           = errors.New("session: closed")
	ErrInvalidFrame     = errors.New("session: invalid frame")
	ErrUnknownSignal    = errors.New("session: unknown signal")
	ErrInvalidState     = errors.New("session: invalid state for this operation")
	ErrTooManySessions  = errors.New("session: too many active sessions")
	ErrAttemptNotFound  = errors.New("session: attempt not found")
	ErrDuplicateAttempt = errors.New("session: attempt already recorded")
)

// Frame is one camera frame as seen by the face detector and the classifier.
// Evidence is ignored unless exactly one face was found.
type Frame struct {
	FaceCount int                `json:"faceCount"`
	Box       *framing.Box       `json:"box,omitempty"`
	Evidence  antispoof.Evidence `json:"evidence"`
}

func (f Frame) validate() error {
	if f.FaceCount < 0 {
		return fmt.Errorf("%w: faceCount must not be negative", ErrInvalidFrame)
	}
	if f.Box != nil && f.Box.Empty() {
		return fmt.Errorf("%w: box must have a positive size", ErrInvalidFrame)
	}
	return nil
}

// Signal is an out-of-band event from the capture client.
type Signal string

const (
	SignalCameraReady       Signal = "camera_ready"
	SignalNoFace            Signal = "no_face"
	SignalMultipleFaces     Signal = "multiple_faces"
	SignalCameraError       Signal = "camera_error"
	SignalPermissionDenied  Signal = "permission_denied"
	SignalNetworkError      Signal = "network_error"
	SignalLivenessConfirmed Signal = "liveness_confirmed"
)

// Outcome reports what one observed frame did to the session.
type Outcome struct {
	State     workflow.State      `json:"state"`
	Changed   bool                `json:"changed"`
	Message   string              `json:"message"`
	Placement framing.Placement   `json:"placement,omitempty"`
	Decision  *antispoof.Decision `json:"decision,omitempty"`
	Stability *framing.Stability  `json:"stability,omitempty"`
}

// Snapshot is the externally visible view of a session.
type Snapshot struct {
	ID           string                `json:"id"`
	Scenario     antispoof.Scenario    `json:"scenario"`
	State        workflow.State        `json:"state"`
	Message      string                `json:"message"`
	Attempt      int                   `json:"attempt"`
	Frames       int                   `json:"frames"`
	Rejections   int                   `json:"rejections"`
	Engine       antispoof.EngineState `json:"engine"`
	Closed       bool                  `json:"closed"`
	CreatedAt    time.Time             `json:"createdAt"`
	LastActivity time.Time             `json:"lastActivity"`
}

// Session owns one engine, one workflow machine and the framing helpers for
// a single user. Observe, Signal and the lifecycle calls are serialized.
type Session struct {
	ID        string
	Scenario  antispoof.Scenario
	CreatedAt time.Time

	engine  *antispoof.Engine
	machine *workflow.Machine
	guide   framing.Guide
	tracker *framing.StabilityTracker
	logger  *slog.Logger

	// onFinish runs under mu when a final state commits.
	onFinish func(*Attempt)

	mu           sync.Mutex
	attempt      int
	startedAt    time.Time
	frames       int
	rejections   int
	message      string
	lastActivity time.Time
	finished     bool // current attempt reported
	closed       bool
}

func newSession(id string, scenario antispoof.Scenario, engine *antispoof.Engine, cfg Config, logger *slog.Logger) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:           id,
		Scenario:     scenario,
		CreatedAt:    now,
		engine:       engine,
		guide:        framing.GuideForScenario(scenario),
		tracker:      framing.NewStabilityTracker(cfg.StableFrames, cfg.MaxMovement),
		logger:       logger.With("session", id),
		attempt:      1,
		startedAt:    now,
		message:      workflow.Initializing.DefaultMessage(),
		lastActivity: now,
	}
	m, err := workflow.New(cfg.Workflow,
		workflow.WithLogger(s.logger),
		workflow.WithTimeoutHandler(s.onTimeout),
	)
	if err != nil {
		return nil, err
	}
	s.machine = m
	return s, nil
}

// onTimeout runs on the workflow timer goroutine after a timeout commits.
func (s *Session) onTimeout(state workflow.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.machine.CurrentState() != state {
		return // restarted or closed in between; settleLocked reported it
	}
	s.engine.Reset()
	s.tracker.Reset()
	s.logger.Info("session timed out", "state", state.String())
	s.settleLocked()
}

// settleLocked reports a final state the machine committed on its own (a
// timeout) if the timer handler has not reported it yet. Must hold s.mu.
func (s *Session) settleLocked() {
	current := s.machine.CurrentState()
	if !current.IsFinal() || s.finished {
		return
	}
	s.message = current.DefaultMessage()
	s.finishLocked(current, s.message)
}

// State returns the committed workflow state.
func (s *Session) State() workflow.State {
	return s.machine.CurrentState()
}

// Observe feeds one frame through positioning, the anti-spoof engine and the
// workflow. Frames arriving in a final state are ignored.
func (s *Session) Observe(_ context.Context, f Frame) (Outcome, error) {
	if err := f.validate(); err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, ErrClosed
	}
	s.lastActivity = time.Now()

	current := s.machine.CurrentState()
	if current.IsFinal() {
		return s.outcome(current, false, ""), nil
	}
	s.frames++
	if current == workflow.Initializing {
		// A delivered frame means the camera is up.
		s.machine.Confirm(workflow.Ready, "")
		current = s.machine.CurrentState()
	}

	// Face count routes even mid-challenge: NoFace and MultipleFaces are
	// debounced and NoFace arms the detection deadline, so a lost face cannot
	// park the session in LivenessChallenge. A returning face resumes the
	// engine's challenge.
	inChallenge := current == workflow.LivenessChallenge
	switch {
	case f.FaceCount == 0:
		s.tracker.Reset()
		return s.request(workflow.NoFace, ""), nil
	case f.FaceCount > 1:
		s.tracker.Reset()
		return s.request(workflow.MultipleFaces, ""), nil
	}

	var placement framing.Placement
	if f.Box != nil && !inChallenge {
		placement = s.guide.Check(*f.Box)
		if target, ok := placementState(placement); ok {
			s.tracker.Reset()
			out := s.request(target, "")
			out.Placement = placement
			return out, nil
		}
	}

	d := s.engine.Evaluate(f.Evidence)
	if d.IsSpoof {
		s.rejections++
	}

	var out Outcome
	switch {
	case inChallenge && d.TriggerChallenge:
		// Challenge still running; the user is blinking. Re-requesting the
		// current state drops a half-confirmed NoFace from a single dip.
		out = s.request(current, d.Explanation)
	case d.TriggerChallenge:
		out = s.request(workflow.LivenessChallenge, d.Explanation)
	case d.IsSpoof:
		s.tracker.Reset()
		out = s.request(workflow.Spoofed, d.Explanation)
	case d.ShouldProceed:
		if f.Box == nil {
			out = s.request(workflow.Stable, d.Explanation)
			break
		}
		stab := s.tracker.Track(f.Box)
		if stab.Stable {
			out = s.request(workflow.Stable, d.Explanation)
		} else {
			out = s.request(workflow.Stabilizing, fmt.Sprintf("Hold still... %d%%", int(stab.Progress*100)))
		}
		out.Stability = &stab
	case d.Suspicion > 0:
		out = s.request(workflow.Suspicious, d.Explanation)
	default:
		out = s.request(workflow.Stabilizing, d.Explanation)
	}
	out.Placement = placement
	out.Decision = &d
	return out, nil
}

// placementState maps a positioning problem to its workflow state.
func placementState(p framing.Placement) (workflow.State, bool) {
	switch p {
	case framing.TooFar:
		return workflow.FaceTooFar, true
	case framing.TooClose:
		return workflow.FaceTooClose, true
	case framing.NotCentered:
		return workflow.FaceNotCentered, true
	case framing.OutOfBounds:
		return workflow.OutOfBounds, true
	}
	return 0, false
}

// request asks the machine for target. Must hold s.mu.
func (s *Session) request(target workflow.State, message string) Outcome {
	changed := s.machine.RequestTransition(target, message)
	return s.outcome(s.machine.CurrentState(), changed, message)
}

func (s *Session) confirm(target workflow.State, message string) Outcome {
	changed := s.machine.Confirm(target, message)
	return s.outcome(s.machine.CurrentState(), changed, message)
}

func (s *Session) outcome(state workflow.State, changed bool, message string) Outcome {
	if message == "" {
		message = state.DefaultMessage()
	}
	if changed {
		s.message = message
		if state.IsFinal() {
			s.finishLocked(state, message)
		}
	}
	return Outcome{State: state, Changed: changed, Message: message}
}

// Signal applies an out-of-band client event. Explicit events (camera ready,
// failures, confirmed liveness) commit without debounce.
func (s *Session) Signal(_ context.Context, sig Signal) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, ErrClosed
	}
	s.lastActivity = time.Now()

	switch sig {
	case SignalCameraReady:
		return s.confirm(workflow.Ready, ""), nil
	case SignalNoFace:
		return s.request(workflow.NoFace, ""), nil
	case SignalMultipleFaces:
		return s.request(workflow.MultipleFaces, ""), nil
	case SignalCameraError:
		return s.confirm(workflow.FailedCamera, ""), nil
	case SignalPermissionDenied:
		return s.confirm(workflow.FailedPermission, ""), nil
	case SignalNetworkError:
		return s.confirm(workflow.FailedNetwork, ""), nil
	case SignalLivenessConfirmed:
		if s.machine.CurrentState().IsFinal() {
			return s.outcome(s.machine.CurrentState(), false, ""), nil
		}
		s.engine.MarkLivenessSuccess()
		return s.confirm(workflow.FaceReal, antispoof.ExplainLivenessConfirmed), nil
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownSignal, sig)
}

// Capture moves a verified face into Capturing.
func (s *Session) Capture(ctx context.Context) (Outcome, error) {
	return s.step(ctx, workflow.Capturing, workflow.FaceReal, workflow.Stable)
}

// BeginProcessing marks the captured face as uploaded for registration.
func (s *Session) BeginProcessing(ctx context.Context) (Outcome, error) {
	return s.step(ctx, workflow.Processing, workflow.Capturing, workflow.FaceReal)
}

func (s *Session) step(_ context.Context, target workflow.State, from ...workflow.State) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, ErrClosed
	}
	s.lastActivity = time.Now()

	current := s.machine.CurrentState()
	ok := false
	for _, f := range from {
		if current == f {
			ok = true
			break
		}
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: cannot enter %s from %s", ErrInvalidState, target, current)
	}
	return s.confirm(target, ""), nil
}

// Complete ends a processing attempt. A failure without a specific reason
// lands in FailedOther.
func (s *Session) Complete(_ context.Context, success bool, failure workflow.State, message string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Outcome{}, ErrClosed
	}
	s.lastActivity = time.Now()

	if current := s.machine.CurrentState(); current != workflow.Processing {
		return Outcome{}, fmt.Errorf("%w: cannot complete from %s", ErrInvalidState, current)
	}
	target := workflow.Success
	if !success {
		target = workflow.FailedOther
		if failure.IsFinal() && failure != workflow.Success {
			target = failure
		}
	}
	return s.request(target, message), nil
}

// Restart resets the engine, tracker and workflow and begins a new attempt.
func (s *Session) Restart(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	s.settleLocked()
	s.engine.Reset()
	s.tracker.Reset()
	s.machine.Reset()
	now := time.Now()
	s.attempt++
	s.finished = false
	s.startedAt = now
	s.frames, s.rejections = 0, 0
	s.message = workflow.Initializing.DefaultMessage()
	s.lastActivity = now
	s.logger.Info("session restarted", "attempt", s.attempt)
	return s.snapshotLocked(), nil
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           s.ID,
		Scenario:     s.Scenario,
		State:        s.machine.CurrentState(),
		Message:      s.message,
		Attempt:      s.attempt,
		Frames:       s.frames,
		Rejections:   s.rejections,
		Engine:       s.engine.Snapshot(),
		Closed:       s.closed,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// idleSince reports whether the session has seen no activity since t.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity.Before(t)
}

// close tears the workflow down and clears engine and tracker state. It is
// idempotent.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.settleLocked()
	s.closed = true
	s.machine.Teardown()
	s.engine.Reset()
	s.tracker.Reset()
	return true
}

// finishLocked reports the attempt that just reached final. Must hold s.mu.
func (s *Session) finishLocked(final workflow.State, message string) {
	if s.finished {
		return
	}
	s.finished = true
	s.logger.Info("attempt finished", "attempt", s.attempt, "outcome", final.String(),
		"frames", s.frames, "rejections", s.rejections)
	if s.onFinish == nil {
		return
	}
	s.onFinish(&Attempt{
		SessionID:  s.ID,
		Scenario:   s.Scenario,
		Number:     s.attempt,
		Outcome:    final,
		Message:    message,
		Frames:     s.frames,
		Rejections: s.rejections,
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	})
}
