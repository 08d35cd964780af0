package capture

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Status is the single user-facing line describing the last thing that
// happened.
type Status struct {
	Severity Severity
	Message  string
	Outcome  Outcome
}

var statusTable = map[Outcome]Status{
	Success:                {SeverityInfo, "Check-in successful! Welcome.", Success},
	NoFaceDetected:         {SeverityError, "Check-in failed: No face detected.", NoFaceDetected},
	MultipleFacesDetected:  {SeverityError, "Check-in failed: Multiple faces detected.", MultipleFacesDetected},
	LocationDenied:         {SeverityError, "Could not get location. Please enable location services.", LocationDenied},
	PreconditionNotMet:     {SeverityError, "Please turn on camera and wait for models.", PreconditionNotMet},
	CameraPermissionDenied: {SeverityError, "Camera access denied. Please enable permissions.", CameraPermissionDenied},
	ModelLoadFailure:       {SeverityError, "Could not load AI models. Check paths.", ModelLoadFailure},
	InferenceFailed:        {SeverityError, "Check-in failed: could not verify presence. Please try again.", InferenceFailed},
}

// Report maps an outcome to its status line.
func Report(o Outcome) Status {
	if s, ok := statusTable[o]; ok {
		return s
	}
	return Status{Severity: SeverityError, Message: "Unexpected error.", Outcome: o}
}

var (
	statusProcessing = Status{Severity: SeverityInfo, Message: "Processing...", Outcome: Success}
	statusCheckedOut = Status{Severity: SeverityInfo, Message: "Checked out successfully. Have a great day!", Outcome: Success}
	statusLoading    = Status{Severity: SeverityInfo, Message: "Loading AI models...", Outcome: Success}
)
