package framing

import "math"

const (
	DefaultStableFrames = 20
	DefaultMaxMovement  = 0.05
)

// Stability is the tracker's verdict for one frame.
type Stability struct {
	Progress float64 `json:"progress"` // 0..1
	Stable   bool    `json:"stable"`
	Moved    bool    `json:"moved"`
}

// StabilityTracker decides when a face has held still for enough frames.
// Movement is measured against the oldest box in the window, relative to
// its size. Not safe for concurrent use.
type StabilityTracker struct {
	required    int
	maxMovement float64
	window      []Box
	stableCount int
	last        *Box
}

// NewStabilityTracker returns a tracker; non-positive arguments take defaults.
func NewStabilityTracker(required int, maxMovement float64) *StabilityTracker {
	if required < 1 {
		required = DefaultStableFrames
	}
	if maxMovement <= 0 {
		maxMovement = DefaultMaxMovement
	}
	return &StabilityTracker{
		required:    required,
		maxMovement: maxMovement,
		window:      make([]Box, 0, required),
	}
}

// Track records a face box. A nil box resets the tracker.
func (t *StabilityTracker) Track(face *Box) Stability {
	if face == nil || face.Empty() {
		t.Reset()
		return Stability{Moved: true}
	}

	if len(t.window) == t.required {
		copy(t.window, t.window[1:])
		t.window = t.window[:t.required-1]
	}
	t.window = append(t.window, *face)

	if len(t.window) < t.required {
		t.stableCount = 0
		return Stability{Progress: float64(len(t.window)) / float64(t.required)}
	}

	if !t.still() {
		t.stableCount = 0
		return Stability{Moved: true}
	}

	t.stableCount++
	if t.stableCount >= t.required {
		b := *face
		t.last = &b
		return Stability{Progress: 1, Stable: true}
	}
	return Stability{Progress: math.Min(1, float64(t.stableCount)/float64(t.required))}
}

func (t *StabilityTracker) still() bool {
	ref := t.window[0]
	maxX := ref.Width * t.maxMovement
	maxY := ref.Height * t.maxMovement
	for _, b := range t.window[1:] {
		if math.Abs(b.CenterX()-ref.CenterX()) > maxX ||
			math.Abs(b.CenterY()-ref.CenterY()) > maxY ||
			math.Abs(b.Width-ref.Width) > maxX ||
			math.Abs(b.Height-ref.Height) > maxY {
			return false
		}
	}
	return true
}

// LastStable returns the box that most recently completed a stable run.
func (t *StabilityTracker) LastStable() (Box, bool) {
	if t.last == nil {
		return Box{}, false
	}
	return *t.last, true
}

// Reset forgets all tracked boxes.
func (t *StabilityTracker) Reset() {
	t.window = t.window[:0]
	t.stableCount = 0
	t.last = nil
}
