// Package workflow drives the visible stage of a registration or
// verification attempt.
//
// Transitions come in two tiers. Errors, success and a few critical states
// commit immediately; everything else must be requested ConfirmationThreshold
// times in a row so one noisy frame cannot flip the screen. Detection and
// registration timeouts are scheduled per state and cancelled on every change.
package workflow

import (
	"errors"
	"fmt"
)

var ErrUnknownState = errors.New("workflow: unknown state")

// State is the externally visible stage of an attempt.
type State int32

const (
	Initializing State = iota
	Ready
	NoFace
	MultipleFaces
	FaceDetected
	FaceReal
	FaceTooFar
	FaceTooClose
	FaceNotCentered
	Stabilizing
	Stable
	LivenessChallenge
	Spoofed
	Suspicious
	SpoofSuspected
	Capturing
	Processing
	Analyzing
	Success
	FailedNetwork
	FailedSpoof
	FailedCamera
	FailedPermission
	FailedOther
	TimeoutDetection
	TimeoutRegistration
	OutOfBounds
	Warning

	numStates
)

var stateInfo = [numStates]struct {
	name    string
	message string
}{
	Initializing:        {"initializing", "Initializing camera..."},
	Ready:               {"ready", "Position your face in the oval"},
	NoFace:              {"no_face", "Look at the camera"},
	MultipleFaces:       {"multiple_faces", "Only one face should be visible"},
	FaceDetected:        {"face_detected", "Face detected"},
	FaceReal:            {"face_real", "Face verified as real"},
	FaceTooFar:          {"face_too_far", "Move closer to camera"},
	FaceTooClose:        {"face_too_close", "Move away from camera"},
	FaceNotCentered:     {"face_not_centered", "Center your face in oval"},
	Stabilizing:         {"stabilizing", "Hold still..."},
	Stable:              {"stable", "Perfect! Processing..."},
	LivenessChallenge:   {"liveness_challenge", "Blink your eyes"},
	Spoofed:             {"spoofed", "Spoof detected! Use real face"},
	Suspicious:          {"suspicious", "Suspicious activity detected. Please hold steady."},
	SpoofSuspected:      {"spoof_suspected", "Please ensure you're using a real face"},
	Capturing:           {"capturing", "Capturing face..."},
	Processing:          {"processing", "Registering your face..."},
	Analyzing:           {"analyzing", "Analyzing... Please hold steady."},
	Success:             {"success", "Face ID registered successfully!"},
	FailedNetwork:       {"failed_network", "Network error occurred"},
	FailedSpoof:         {"failed_spoof", "Spoof detection failed"},
	FailedCamera:        {"failed_camera", "Camera error"},
	FailedPermission:    {"failed_permission", "Camera permission denied"},
	FailedOther:         {"failed_other", "Registration failed"},
	TimeoutDetection:    {"timeout_detection", "Face detection timeout"},
	TimeoutRegistration: {"timeout_registration", "Registration timeout"},
	OutOfBounds:         {"out_of_bounds", "Position face in oval guide"},
	Warning:             {"warning", "Warning: possible spoof detected"},
}

func (s State) valid() bool { return s >= 0 && s < numStates }

func (s State) String() string {
	if !s.valid() {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateInfo[s].name
}

// DefaultMessage is the human-readable prompt shown for s.
func (s State) DefaultMessage() string {
	if !s.valid() {
		return ""
	}
	return stateInfo[s].message
}

// IsFinal reports whether no further transition may leave s.
func (s State) IsFinal() bool {
	switch s {
	case Success, FailedNetwork, FailedSpoof, FailedCamera, FailedPermission,
		FailedOther, TimeoutDetection, TimeoutRegistration:
		return true
	}
	return false
}

// IsError reports failures, timeouts and a detected spoof.
func (s State) IsError() bool {
	return (s.IsFinal() && s != Success) || s == Spoofed
}

// IsProcessing reports states that show a progress indicator.
func (s State) IsProcessing() bool {
	switch s {
	case Capturing, Processing, Stabilizing, Analyzing, Initializing:
		return true
	}
	return false
}

// ParseState looks a state up by name.
func ParseState(name string) (State, error) {
	for i := State(0); i < numStates; i++ {
		if stateInfo[i].name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// States lists every state in declaration order.
func States() []State {
	out := make([]State, numStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

func (s State) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int32(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
