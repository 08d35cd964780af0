// Package capture sequences camera acquisition, model loading, location
// capture and single-frame presence verification into one user-triggered
// check-in transition.
//
// Camera start and model load progress independently; the session reaches
// ModelsAndCameraReady on whichever of the two completes second. A check-in
// attempt runs location first, then exactly one inference, and always
// releases the camera before it returns.
package capture

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecstasyos/presence/server/internal/presence/camera"
	"github.com/ecstasyos/presence/server/internal/presence/detect"
	"github.com/ecstasyos/presence/server/internal/presence/location"
)

// Camera is the subset of camera.Controller the session drives.
type Camera interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	Frame(ctx context.Context) (camera.Frame, error)
}

// Models is the subset of model.Provider the session reads.
type Models interface {
	Load(ctx context.Context)
	Ready() bool
	OnSettled(fn func(error))
}

// Identity is supplied by the auth collaborator; the session only carries it.
type Identity struct {
	EmployeeID string
	Email      string
	Name       string
}

// Record holds the session's timestamps. It lives only as long as the
// session.
type Record struct {
	CheckInTime  *time.Time
	CheckOutTime *time.Time
}

type Deps struct {
	Camera   Camera
	Models   Models
	Probe    location.Probe
	Detector detect.Detector
	Logger   *log.Logger
	// Clock defaults to time.Now().UTC().
	Clock func() time.Time
	// FrameTimeout bounds the wait for a live frame during check-in.
	FrameTimeout time.Duration
}

type Session struct {
	id     string
	who    Identity
	siteID string

	camera       Camera
	models       Models
	probe        location.Probe
	detector     detect.Detector
	logger       *log.Logger
	clock        func() time.Time
	frameTimeout time.Duration

	life   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	failure   Outcome
	record    Record
	status    Status
	closed    bool
	attempts  uint64
	listeners []Listener
}

// Result describes the outcome of one check-in or check-out action.
type Result struct {
	Outcome  Outcome
	Status   Status
	At       time.Time
	Faces    int
	Position *location.Position
}

// Snapshot is a consistent read of the session for display.
type Snapshot struct {
	ID           string
	Identity     Identity
	SiteID       string
	State        State
	Failure      Outcome
	CameraActive bool
	ModelReady   bool
	Record       Record
	Status       Status
	CanCheckIn   bool
	CanCheckOut  bool
}

func NewSession(d Deps, who Identity, siteID string) *Session {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.FrameTimeout <= 0 {
		d.FrameTimeout = 3 * time.Second
	}
	life, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           uuid.NewString(),
		who:          who,
		siteID:       siteID,
		camera:       d.Camera,
		models:       d.Models,
		probe:        d.Probe,
		detector:     d.Detector,
		logger:       d.Logger,
		clock:        d.Clock,
		frameTimeout: d.FrameTimeout,
		life:         life,
		cancel:       cancel,
		state:        Idle,
	}
}

func (s *Session) ID() string { return s.id }

// Subscribe registers l for CheckedIn, CheckedOut and VerificationFailed
// transitions. Listeners run on the goroutine that made the transition,
// after the session lock is released.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Activate is view activation: model load and, if startCamera is set, the
// camera start run as independent background tasks.
func (s *Session) Activate(startCamera bool) {
	s.mu.Lock()
	if !s.models.Ready() {
		s.status = statusLoading
	}
	s.mu.Unlock()

	s.models.OnSettled(s.modelSettled)
	s.models.Load(s.life)

	if startCamera {
		go s.StartCamera(s.life)
	}
}

func (s *Session) modelSettled(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err != nil {
		s.status = Report(ModelLoadFailure)
	} else if s.status == statusLoading {
		s.status = Status{}
	}
	s.reevaluateLocked()
}

// StartCamera requests the device. A denied grant is reported on the status
// line and leaves the session retryable. It is refused while an attempt is
// running and after check-in.
func (s *Session) StartCamera(ctx context.Context) Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return PreconditionNotMet
	}
	if s.cameraLockedLocked() {
		s.status = s.preconditionStatusLocked()
		s.mu.Unlock()
		return PreconditionNotMet
	}
	attempts := s.attempts
	s.mu.Unlock()

	err := s.camera.Start(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		// torn down while the device was opening
		s.camera.Stop()
		return PreconditionNotMet
	}
	if s.state == Verifying {
		// the running attempt releases the device when it commits
		s.status = s.preconditionStatusLocked()
		return PreconditionNotMet
	}
	if s.cameraLockedLocked() || s.attempts != attempts {
		// an attempt started and finished while the device was opening
		s.camera.Stop()
		s.status = s.preconditionStatusLocked()
		s.reevaluateLocked()
		return PreconditionNotMet
	}

	out := Success
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrStopped), errors.Is(err, context.Canceled):
		out = PreconditionNotMet
	default:
		s.logger.Printf("session %s: camera start: %v", s.id, err)
		s.status = Report(CameraPermissionDenied)
		out = CameraPermissionDenied
	}
	s.reevaluateLocked()
	return out
}

// cameraLockedLocked reports whether the session state forbids turning the
// camera on.
func (s *Session) cameraLockedLocked() bool {
	switch s.state {
	case Verifying, CheckedIn, CheckedOut:
		return true
	}
	return false
}

// StopCamera releases the device. It is refused while a check-in attempt is
// running, since the attempt owns the release.
func (s *Session) StopCamera() Outcome {
	s.mu.Lock()
	if s.state == Verifying {
		s.mu.Unlock()
		return PreconditionNotMet
	}
	s.mu.Unlock()

	s.camera.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reevaluateLocked()
	return Success
}

// CheckIn runs one verification attempt. It is accepted only from
// ModelsAndCameraReady; otherwise it returns PreconditionNotMet without
// touching the camera, the location probe or the detector.
func (s *Session) CheckIn(ctx context.Context) Result {
	s.mu.Lock()
	if !s.canCheckInLocked() {
		st := s.preconditionStatusLocked()
		s.status = st
		s.mu.Unlock()
		return Result{Outcome: PreconditionNotMet, Status: st, Faces: -1}
	}
	s.setStateLocked(Verifying)
	s.attempts++
	s.status = statusProcessing
	s.mu.Unlock()

	// An attempt is not cancellable; it runs to completion even if the
	// caller goes away.
	out, faces, pos := s.attempt(context.WithoutCancel(ctx))
	now := s.clock()

	s.mu.Lock()
	// the camera is off whenever an attempt commits
	s.camera.Stop()
	st := Report(out)
	res := Result{Outcome: out, Status: st, At: now, Faces: faces, Position: pos}
	if s.closed {
		s.mu.Unlock()
		return res
	}
	s.status = st
	kind := EventVerificationFailed
	if out == Success {
		t := now
		s.record.CheckInTime = &t
		s.setStateLocked(CheckedIn)
		kind = EventCheckedIn
	} else {
		s.failure = out
		s.setStateLocked(VerificationFailed)
	}
	ev := s.eventLocked(kind, out, now, faces, pos)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	emit(listeners, ev)
	return res
}

// attempt is the suspending part of check-in. The camera is released on
// every path out of it.
func (s *Session) attempt(ctx context.Context) (Outcome, int, *location.Position) {
	defer s.camera.Stop()

	pos, err := s.probe.CurrentPosition(ctx)
	if err != nil {
		s.logger.Printf("session %s: location: %v", s.id, err)
		return LocationDenied, -1, nil
	}

	fctx, cancel := context.WithTimeout(ctx, s.frameTimeout)
	defer cancel()
	frame, err := s.camera.Frame(fctx)
	if err != nil {
		s.logger.Printf("session %s: frame: %v", s.id, err)
		return InferenceFailed, -1, &pos
	}

	faces, err := s.detector.DetectFaces(ctx, frame)
	if err != nil {
		s.logger.Printf("session %s: detect: %v", s.id, err)
		return InferenceFailed, -1, &pos
	}
	s.logger.Printf("session %s: frame %d: %d face(s)", s.id, frame.Seq, faces)
	return CountOutcome(faces), faces, &pos
}

// CheckOut is accepted only from CheckedIn and needs no verification.
func (s *Session) CheckOut(_ context.Context) Result {
	s.mu.Lock()
	if s.closed || s.state != CheckedIn {
		st := Status{Severity: SeverityError, Message: "Check in before checking out.", Outcome: PreconditionNotMet}
		if s.state == CheckedOut {
			st.Message = "Already checked out."
		}
		s.status = st
		s.mu.Unlock()
		return Result{Outcome: PreconditionNotMet, Status: st, Faces: -1}
	}

	now := s.clock()
	t := now
	s.record.CheckOutTime = &t
	s.setStateLocked(CheckedOut)
	s.status = statusCheckedOut
	ev := s.eventLocked(EventCheckedOut, Success, now, -1, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	emit(listeners, ev)
	return Result{Outcome: Success, Status: statusCheckedOut, At: now, Faces: -1}
}

// Close is view teardown: the camera is released and the record discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.record = Record{}
	s.state = Idle
	s.status = Status{}
	s.mu.Unlock()

	s.cancel()
	s.camera.Stop()
	s.logger.Printf("session %s: closed", s.id)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.id,
		Identity:     s.who,
		SiteID:       s.siteID,
		State:        s.state,
		CameraActive: s.camera.Active(),
		ModelReady:   s.models.Ready(),
		Record:       copyRecord(s.record),
		Status:       s.status,
		CanCheckIn:   s.canCheckInLocked(),
		CanCheckOut:  !s.closed && s.state == CheckedIn,
	}
	if s.state == VerificationFailed {
		snap.Failure = s.failure
	}
	return snap
}

func (s *Session) canCheckInLocked() bool {
	return !s.closed &&
		s.state == ModelsAndCameraReady &&
		s.camera.Active() &&
		s.models.Ready()
}

func (s *Session) preconditionStatusLocked() Status {
	st := Report(PreconditionNotMet)
	switch s.state {
	case Verifying:
		st.Message = "Check-in already in progress."
	case CheckedIn:
		st.Message = "Already checked in."
	case CheckedOut:
		st.Message = "Already checked out."
	}
	return st
}

// reevaluateLocked is the AND-join over camera and model readiness. It runs
// after every camera change and when the model settles, so the join is
// reached by whichever completes second.
func (s *Session) reevaluateLocked() {
	switch s.state {
	case Verifying, CheckedIn, CheckedOut:
		return
	}

	cam := s.camera.Active()
	ready := s.models.Ready()
	switch {
	case cam && ready:
		s.setStateLocked(ModelsAndCameraReady)
	case cam:
		s.setStateLocked(CameraReady)
	case s.state == VerificationFailed:
		// stays until the camera is restarted
	default:
		s.setStateLocked(Idle)
	}
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.logger.Printf("session %s: %s -> %s", s.id, s.state, next)
	s.state = next
}

func (s *Session) listenersLocked() []Listener {
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

func copyRecord(r Record) Record {
	var out Record
	if r.CheckInTime != nil {
		t := *r.CheckInTime
		out.CheckInTime = &t
	}
	if r.CheckOutTime != nil {
		t := *r.CheckOutTime
		out.CheckOutTime = &t
	}
	return out
}
