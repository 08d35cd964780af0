package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/detect"
	"github.com/ecstasyos/presence/server/internal/presence/geofence"
	"github.com/ecstasyos/presence/server/internal/presence/location"
	"github.com/ecstasyos/presence/server/internal/presence/store"
)

var (
	ErrUnknownSession  = errors.New("unknown session")
	ErrInvalidIdentity = errors.New("employee id is required")
)

// SessionDeps are the collaborators every session is built from. Each
// session gets its own camera handle from NewCamera so that a late stop
// from a torn-down session cannot release the next session's device.
type SessionDeps struct {
	NewCamera    func() capture.Camera
	Models       capture.Models
	Probe        location.Probe
	Detector     detect.Detector
	FrameTimeout time.Duration
	// Sites, when set, must hold every point a session is activated for.
	Sites store.SiteStore
}

// AttendanceService owns the kiosk's single attendance view. Activating a
// new session tears down the previous one.
type AttendanceService struct {
	deps      SessionDeps
	sites     *geofence.Registry
	listeners []capture.Listener
	logger    *log.Logger

	mu      sync.Mutex
	current *capture.Session
}

func NewAttendanceService(deps SessionDeps, sites *geofence.Registry, logger *log.Logger, listeners ...capture.Listener) *AttendanceService {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if sites == nil {
		sites, _ = geofence.NewRegistry(nil)
	}
	return &AttendanceService{
		deps:      deps,
		sites:     sites,
		listeners: listeners,
		logger:    logger,
	}
}

// Activate opens a new attendance view for who. siteID selects the
// reference point attached to events; empty means the company point.
func (s *AttendanceService) Activate(ctx context.Context, who capture.Identity, siteID string, startCamera bool) (*capture.Session, error) {
	who.EmployeeID = strings.TrimSpace(who.EmployeeID)
	if who.EmployeeID == "" {
		return nil, ErrInvalidIdentity
	}

	point, ok, err := s.sites.Resolve(siteID)
	if err != nil {
		return nil, fmt.Errorf("activate %q: %w", siteID, err)
	}
	if !ok {
		point = geofence.Point{}
	}
	if point.ID != "" && s.deps.Sites != nil {
		_, known, err := s.deps.Sites.Site(ctx, point.ID)
		if err != nil {
			return nil, fmt.Errorf("activate %q: site lookup: %w", point.ID, err)
		}
		if !known {
			return nil, fmt.Errorf("activate %q: not provisioned: %w", point.ID, geofence.ErrUnknownSite)
		}
	}

	sess := capture.NewSession(capture.Deps{
		Camera:       s.deps.NewCamera(),
		Models:       s.deps.Models,
		Probe:        s.deps.Probe,
		Detector:     s.deps.Detector,
		Logger:       s.logger,
		FrameTimeout: s.deps.FrameTimeout,
	}, who, point.ID)
	for _, l := range s.listeners {
		sess.Subscribe(l)
	}

	s.mu.Lock()
	prev := s.current
	s.current = sess
	s.mu.Unlock()

	if prev != nil {
		s.logger.Printf("session %s replaced by %s", prev.ID(), sess.ID())
		prev.Close()
	}

	sess.Activate(startCamera)
	s.logger.Printf("session %s activated (employee=%s site=%q)", sess.ID(), who.EmployeeID, point.ID)
	return sess, nil
}

// Session resolves id to the active session.
func (s *AttendanceService) Session(id string) (*capture.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID() != id {
		return nil, ErrUnknownSession
	}
	return s.current, nil
}

// Deactivate is view teardown for id.
func (s *AttendanceService) Deactivate(id string) error {
	s.mu.Lock()
	if s.current == nil || s.current.ID() != id {
		s.mu.Unlock()
		return ErrUnknownSession
	}
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	sess.Close()
	return nil
}

// Close tears down whatever session is active. Used on shutdown.
func (s *AttendanceService) Close() {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess != nil {
		sess.Close()
	}
}

// Active reports whether a session is currently open.
func (s *AttendanceService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}
