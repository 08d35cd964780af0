package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/geofence"
	"github.com/ecstasyos/presence/server/internal/presence/location"
	"github.com/ecstasyos/presence/server/internal/presence/service"
	"github.com/ecstasyos/presence/server/internal/presence/types"
)

// ModelStatus is the part of the model provider the health check reads.
type ModelStatus interface {
	Ready() bool
	Err() error
}

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	Attendance *service.AttendanceService
	Auth       *Authenticator
	Models     ModelStatus
	// AutoStartCamera is the activation default when the request does not
	// say.
	AutoStartCamera bool
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	attendance *service.AttendanceService
	models     ModelStatus
	autoStart  bool
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		attendance: d.Attendance,
		models:     d.Models,
		autoStart:  d.AutoStartCamera,
	}

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return requireIdentity(d.Auth, d.Logger, h)
	}

	mux.HandleFunc("GET /v1/healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", authed(s.handleActivate))
	mux.HandleFunc("GET /v1/sessions/{id}", authed(s.handleSnapshot))
	mux.HandleFunc("DELETE /v1/sessions/{id}", authed(s.handleDeactivate))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/start", authed(s.handleCameraStart))
	mux.HandleFunc("POST /v1/sessions/{id}/camera/stop", authed(s.handleCameraStop))
	mux.HandleFunc("POST /v1/sessions/{id}/check_in", authed(s.handleCheckIn))
	mux.HandleFunc("POST /v1/sessions/{id}/check_out", authed(s.handleCheckOut))

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		OK:         true,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if s.models != nil {
		resp.ModelReady = s.models.Ready()
		if err := s.models.Err(); err != nil {
			resp.ModelError = err.Error()
		}
	}
	resp.ActiveSession = s.attendance.Active()
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req types.ActivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	who, _ := identityFrom(r.Context())
	start := s.autoStart
	if req.StartCamera != nil {
		start = *req.StartCamera
	}

	sess, err := s.attendance.Activate(r.Context(), who, req.SiteID, start)
	if err != nil {
		switch {
		case errors.Is(err, geofence.ErrUnknownSite):
			writeError(w, r, http.StatusBadRequest, "unknown_site", err.Error())
		case errors.Is(err, service.ErrInvalidIdentity):
			writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
		default:
			s.logger.Printf("activate error: %v", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	respond(w, r, http.StatusCreated, sessionResponse(sess.Snapshot(), time.Now().UTC()))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respond(w, r, http.StatusOK, sessionResponse(sess.Snapshot(), time.Now().UTC()))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.attendance.Deactivate(sess.ID()); err != nil {
		// lost a race with another activation; the session is gone either way
		s.logger.Printf("deactivate %s: %v", sess.ID(), err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCameraStart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out := sess.StartCamera(r.Context())
	s.writeOutcome(w, r, out, sess)
}

func (s *Server) handleCameraStop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out := sess.StopCamera()
	s.writeOutcome(w, r, out, sess)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req types.CheckInRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	pos, err := checkInPosition(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_location", err.Error())
		return
	}

	ctx := location.WithDenied(r.Context())
	if pos != nil {
		ctx = location.WithReported(r.Context(), *pos)
	}

	res := sess.CheckIn(ctx)
	s.writeResult(w, r, res, sess)
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res := sess.CheckOut(r.Context())
	s.writeResult(w, r, res, sess)
}

// session resolves {id} to the active session owned by the caller. Another
// employee's session is reported as unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*capture.Session, bool) {
	sess, err := s.attendance.Session(r.PathValue("id"))
	if err == nil {
		who, _ := identityFrom(r.Context())
		if sess.Snapshot().Identity.EmployeeID == who.EmployeeID {
			return sess, true
		}
		err = service.ErrUnknownSession
	}
	writeError(w, r, http.StatusNotFound, "unknown_session", err.Error())
	return nil, false
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, res capture.Result, sess *capture.Session) {
	status := http.StatusOK
	if res.Outcome == capture.PreconditionNotMet {
		status = http.StatusConflict
	}
	respond(w, r, status, actionResponse(res, sess.Snapshot(), time.Now().UTC()))
}

func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, out capture.Outcome, sess *capture.Session) {
	status := http.StatusOK
	if out == capture.PreconditionNotMet {
		status = http.StatusConflict
	}
	respond(w, r, status, outcomeResponse(out, sess.Snapshot(), time.Now().UTC()))
}
