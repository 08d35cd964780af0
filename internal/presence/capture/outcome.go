package capture

import "fmt"

type State int

const (
	Idle State = iota
	CameraReady
	ModelsAndCameraReady
	Verifying
	CheckedIn
	CheckedOut
	VerificationFailed
)

var stateNames = [...]string{
	Idle:                 "idle",
	CameraReady:          "camera_ready",
	ModelsAndCameraReady: "models_and_camera_ready",
	Verifying:            "verifying",
	CheckedIn:            "checked_in",
	CheckedOut:           "checked_out",
	VerificationFailed:   "verification_failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the result of a user action, or the cause of a background
// failure (camera grant, model load) reported on the status line.
type Outcome int

const (
	Success Outcome = iota
	NoFaceDetected
	MultipleFacesDetected
	LocationDenied
	PreconditionNotMet
	CameraPermissionDenied
	ModelLoadFailure
	// InferenceFailed: the frame could not be read or the detector errored.
	InferenceFailed
)

var outcomeNames = [...]string{
	Success:                "success",
	NoFaceDetected:         "no_face_detected",
	MultipleFacesDetected:  "multiple_faces_detected",
	LocationDenied:         "location_denied",
	PreconditionNotMet:     "precondition_not_met",
	CameraPermissionDenied: "camera_permission_denied",
	ModelLoadFailure:       "model_load_failure",
	InferenceFailed:        "inference_failed",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// CountOutcome maps a detector face count to a verification outcome. Exactly
// one face is the only accepting count.
func CountOutcome(faces int) Outcome {
	switch {
	case faces == 1:
		return Success
	case faces == 0:
		return NoFaceDetected
	default:
		return MultipleFacesDetected
	}
}
