package workflow

// immediate reports candidates that skip confirmation.
func immediate(s State) bool {
	if s.IsError() {
		return true
	}
	switch s {
	case Success, Initializing, LivenessChallenge, FaceReal:
		return true
	}
	return false
}

// allowed reports whether from → to is structurally legal. Only a handful of
// sources carry a whitelist; every other source accepts any destination.
func allowed(from, to State) bool {
	if from.IsFinal() {
		return from == to
	}

	switch from {
	case Initializing:
		switch to {
		case Ready, NoFace, FaceDetected, MultipleFaces, OutOfBounds:
			return true
		}
		return to.IsError()
	case Ready:
		return true
	case Processing:
		return to == Success || to.IsError()
	case Capturing:
		return to == Processing || to.IsError()
	case FaceReal:
		return to == Capturing || to == Processing || to.IsError()
	}
	return true
}

type timeoutKind int

const (
	noTimeout timeoutKind = iota
	detectionTimeout
	registrationTimeout
)

func (k timeoutKind) String() string {
	switch k {
	case detectionTimeout:
		return "detection"
	case registrationTimeout:
		return "registration"
	}
	return "none"
}

// timeoutFor returns the deadline armed on entering s.
func timeoutFor(s State) timeoutKind {
	switch s {
	case Ready, NoFace, FaceDetected:
		return detectionTimeout
	case Processing:
		return registrationTimeout
	}
	return noTimeout
}
