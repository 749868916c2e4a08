package workflow

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMachine(t *testing.T, cfg Config, opts ...Option) *Machine {
	t.Helper()
	m, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Teardown)
	return m
}

func fastConfig() Config {
	return Config{
		ConfirmationThreshold: 2,
		DetectionTimeout:      50 * time.Millisecond,
		RegistrationTimeout:   50 * time.Millisecond,
	}
}

// collector records notifications for assertions.
type collector struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *collector) listen(n Notification) {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
}

func (c *collector) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notes...)
}

func (c *collector) committed() []State {
	var out []State
	for _, n := range c.all() {
		if !n.Pending {
			out = append(out, n.State)
		}
	}
	return out
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(Config{ConfirmationThreshold: 2})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartsInitializing(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	assert.Equal(t, Initializing, m.CurrentState())
}

func TestImmediateTierSkipsDebounce(t *testing.T) {
	for _, s := range []State{FailedCamera, FailedPermission, FailedOther} {
		m := newMachine(t, DefaultConfig())
		assert.True(t, m.RequestTransition(s, ""), s.String())
		assert.Equal(t, s, m.CurrentState())
	}

	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))
	assert.True(t, m.RequestTransition(LivenessChallenge, ""))
	assert.True(t, m.RequestTransition(FaceReal, ""))
	assert.True(t, m.RequestTransition(Spoofed, ""))
	assert.True(t, m.RequestTransition(Success, ""))
}

func TestDebounceNeedsConsecutiveRequests(t *testing.T) {
	m := newMachine(t, DefaultConfig())

	assert.False(t, m.RequestTransition(NoFace, ""))
	assert.Equal(t, Initializing, m.CurrentState())
	assert.True(t, m.RequestTransition(NoFace, ""))
	assert.Equal(t, NoFace, m.CurrentState())

	assert.False(t, m.RequestTransition(FaceDetected, ""))
	assert.Equal(t, NoFace, m.CurrentState())
	cand, count, ok := m.Pending()
	require.True(t, ok)
	assert.Equal(t, FaceDetected, cand)
	assert.Equal(t, 1, count)

	assert.True(t, m.RequestTransition(FaceDetected, ""))
	assert.Equal(t, FaceDetected, m.CurrentState())
	_, _, ok = m.Pending()
	assert.False(t, ok)
}

func TestDebounceResetsOnDifferentCandidate(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))

	assert.False(t, m.RequestTransition(Stabilizing, ""))
	assert.False(t, m.RequestTransition(Suspicious, ""))
	cand, count, _ := m.Pending()
	assert.Equal(t, Suspicious, cand)
	assert.Equal(t, 1, count)

	assert.False(t, m.RequestTransition(Stabilizing, ""))
	assert.Equal(t, Ready, m.CurrentState())
	assert.True(t, m.RequestTransition(Stabilizing, ""))
}

func TestConfirmationThresholdOfThree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmationThreshold = 3
	m := newMachine(t, cfg)
	require.True(t, m.Confirm(Ready, ""))

	assert.False(t, m.RequestTransition(Stable, ""))
	assert.False(t, m.RequestTransition(Stable, ""))
	assert.True(t, m.RequestTransition(Stable, ""))
}

func TestSameStateIsNoop(t *testing.T) {
	c := &collector{}
	m := newMachine(t, DefaultConfig())
	m.SetListener(c.listen)
	require.True(t, m.Confirm(Ready, ""))
	assert.False(t, m.RequestTransition(Ready, ""))
	assert.False(t, m.Confirm(Ready, ""))
	assert.Equal(t, uint64(1), m.Transitions())
}

func TestProcessingWhitelist(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.Confirm(Processing, ""))

	for i := 0; i < 3; i++ {
		assert.False(t, m.RequestTransition(Ready, ""))
	}
	assert.False(t, m.Confirm(Capturing, ""))
	assert.Equal(t, Processing, m.CurrentState())

	assert.True(t, m.RequestTransition(Success, ""))
}

func TestCapturingWhitelist(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.Confirm(Capturing, ""))

	assert.False(t, m.Confirm(Stable, ""))
	assert.False(t, m.RequestTransition(Success, ""))
	assert.True(t, m.Confirm(Processing, ""))
}

func TestFaceRealWhitelist(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.RequestTransition(FaceReal, ""))

	assert.False(t, m.Confirm(Stabilizing, ""))
	assert.True(t, m.RequestTransition(Spoofed, ""))
}

func TestInitializingWhitelist(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	assert.False(t, m.Confirm(Processing, ""))
	assert.False(t, m.RequestTransition(FaceReal, ""))
	assert.True(t, m.Confirm(MultipleFaces, ""))
}

func TestFinalStatesAreSticky(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.RequestTransition(FailedNetwork, ""))

	assert.False(t, m.RequestTransition(Initializing, ""))
	assert.False(t, m.RequestTransition(Success, ""))
	assert.False(t, m.Confirm(Ready, ""))
	assert.Equal(t, FailedNetwork, m.CurrentState())
}

func TestNotifications(t *testing.T) {
	c := &collector{}
	m := newMachine(t, DefaultConfig())
	m.SetListener(c.listen)

	m.RequestTransition(NoFace, "")
	m.RequestTransition(NoFace, "look here")
	m.RequestTransition(FailedCamera, "")

	require.Eventually(t, func() bool { return len(c.all()) == 3 }, time.Second, 5*time.Millisecond)
	notes := c.all()

	assert.True(t, notes[0].Pending)
	assert.Equal(t, NoFace, notes[0].State)
	assert.True(t, strings.HasPrefix(notes[0].Message, "confirming "))

	assert.False(t, notes[1].Pending)
	assert.Equal(t, "look here", notes[1].Message)
	assert.Equal(t, Initializing, notes[1].Previous)

	assert.Equal(t, FailedCamera, notes[2].State)
	assert.Equal(t, FailedCamera.DefaultMessage(), notes[2].Message)
	assert.Equal(t, NoFace, notes[2].Previous)
}

func TestListenerDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	var delivered atomic.Int32
	m := newMachine(t, DefaultConfig())
	m.SetListener(func(Notification) {
		<-release
		delivered.Add(1)
	})

	done := make(chan struct{})
	go func() {
		m.Confirm(Ready, "")
		m.Confirm(Stable, "")
		m.Confirm(Capturing, "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("transition requests blocked on listener")
	}
	close(release)
	assert.Eventually(t, func() bool { return delivered.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestListenerPanicIsContained(t *testing.T) {
	c := &collector{}
	calls := 0
	m := newMachine(t, DefaultConfig())
	m.SetListener(func(n Notification) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		c.listen(n)
	})

	m.Confirm(Ready, "")
	m.Confirm(Stable, "")
	assert.Eventually(t, func() bool { return len(c.committed()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDetectionTimeoutFires(t *testing.T) {
	var fired atomic.Int32
	m := newMachine(t, fastConfig(), WithTimeoutHandler(func(s State) {
		if s == TimeoutDetection {
			fired.Add(1)
		}
	}))
	require.True(t, m.Confirm(Ready, ""))

	assert.Eventually(t, func() bool { return m.CurrentState() == TimeoutDetection }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTransitionCancelsDetectionTimeout(t *testing.T) {
	m := newMachine(t, fastConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.Confirm(Stabilizing, ""))

	assert.Never(t, func() bool { return m.CurrentState() == TimeoutDetection }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, Stabilizing, m.CurrentState())
}

func TestDetectionTimeoutRearmsOnEachDetectionState(t *testing.T) {
	cfg := fastConfig()
	cfg.DetectionTimeout = 150 * time.Millisecond
	m := newMachine(t, cfg)
	require.True(t, m.Confirm(Ready, ""))

	time.Sleep(100 * time.Millisecond)
	require.True(t, m.Confirm(NoFace, ""))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, NoFace, m.CurrentState(), "first deadline should have been cancelled")

	assert.Eventually(t, func() bool { return m.CurrentState() == TimeoutDetection }, time.Second, 5*time.Millisecond)
}

func TestRegistrationTimeoutFires(t *testing.T) {
	c := &collector{}
	m := newMachine(t, fastConfig())
	m.SetListener(c.listen)
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.Confirm(Processing, ""))

	assert.Eventually(t, func() bool { return m.CurrentState() == TimeoutRegistration }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		notes := c.all()
		return len(notes) > 0 && notes[len(notes)-1].Message == registrationTimeoutMessage
	}, time.Second, 5*time.Millisecond)
}

func TestResetCancelsTimeoutsSilently(t *testing.T) {
	c := &collector{}
	m := newMachine(t, fastConfig())
	m.SetListener(c.listen)
	require.True(t, m.Confirm(Ready, ""))
	m.RequestTransition(Stable, "")

	m.Reset()
	assert.Equal(t, Initializing, m.CurrentState())
	_, _, ok := m.Pending()
	assert.False(t, ok)

	assert.Never(t, func() bool { return m.CurrentState() != Initializing }, 200*time.Millisecond, 10*time.Millisecond)
	for _, n := range c.all() {
		assert.NotEqual(t, Initializing, n.State, "reset must not notify")
	}
}

func TestResetRecoversFromTimeout(t *testing.T) {
	m := newMachine(t, fastConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.Eventually(t, func() bool { return m.CurrentState() == TimeoutDetection }, time.Second, 5*time.Millisecond)

	m.Reset()
	assert.True(t, m.Confirm(Ready, ""))
}

func TestTeardown(t *testing.T) {
	cfg := fastConfig()
	cfg.DetectionTimeout = 100 * time.Millisecond
	c := &collector{}
	m := newMachine(t, cfg)
	m.SetListener(c.listen)
	require.True(t, m.Confirm(Ready, ""))
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)

	m.Teardown()
	m.Teardown()
	assert.True(t, m.Closed())

	assert.False(t, m.RequestTransition(FailedOther, ""))
	assert.Never(t, func() bool { return m.CurrentState() != Ready }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, c.all(), 1)
}

func TestConcurrentTerminalRequestsCommitOnce(t *testing.T) {
	m := newMachine(t, DefaultConfig())
	require.True(t, m.Confirm(Ready, ""))
	require.True(t, m.Confirm(Processing, ""))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, s := range []State{Success, FailedNetwork, FailedOther, FailedSpoof} {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(s State) {
				defer wg.Done()
				if m.RequestTransition(s, "") {
					wins.Add(1)
				}
			}(s)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, m.CurrentState().IsFinal())
}
