package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/location"
	"github.com/ecstasyos/presence/server/internal/presence/types"
)

// ── Session ──────────────────────────────────────────────────────────────────

func sessionResponse(snap capture.Snapshot, now time.Time) types.SessionResponse {
	resp := types.SessionResponse{
		ID:           snap.ID,
		EmployeeID:   snap.Identity.EmployeeID,
		Email:        snap.Identity.Email,
		Name:         snap.Identity.Name,
		SiteID:       snap.SiteID,
		State:        snap.State.String(),
		CameraActive: snap.CameraActive,
		ModelReady:   snap.ModelReady,
		Record: types.RecordBody{
			CheckInTime:  formatTime(snap.Record.CheckInTime),
			CheckOutTime: formatTime(snap.Record.CheckOutTime),
		},
		Status:      statusBody(snap.Status),
		CanCheckIn:  snap.CanCheckIn,
		CanCheckOut: snap.CanCheckOut,
		ServerTime:  now.Format(time.RFC3339Nano),
	}
	if snap.State == capture.VerificationFailed {
		resp.Failure = snap.Failure.String()
	}
	return resp
}

func statusBody(st capture.Status) types.StatusBody {
	if st.Message == "" {
		return types.StatusBody{}
	}
	return types.StatusBody{
		Severity: string(st.Severity),
		Message:  st.Message,
		Outcome:  st.Outcome.String(),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// ── Actions ──────────────────────────────────────────────────────────────────

func actionResponse(res capture.Result, snap capture.Snapshot, now time.Time) types.ActionResponse {
	resp := types.ActionResponse{
		OK:         res.Outcome == capture.Success,
		Outcome:    res.Outcome.String(),
		Status:     statusBody(res.Status),
		Session:    sessionResponse(snap, now),
		ServerTime: now.Format(time.RFC3339Nano),
	}
	if !res.At.IsZero() {
		resp.At = res.At.UTC().Format(time.RFC3339Nano)
	}
	if res.Faces >= 0 {
		n := res.Faces
		resp.Faces = &n
	}
	return resp
}

func outcomeResponse(out capture.Outcome, snap capture.Snapshot, now time.Time) types.ActionResponse {
	return actionResponse(capture.Result{Outcome: out, Status: capture.Report(out), Faces: -1}, snap, now)
}

// checkInPosition turns the client's report into a context the location
// probe reads. A body with neither field is a denial.
func checkInPosition(req types.CheckInRequest) (*location.Position, error) {
	if req.LocationDenied {
		if req.Location != nil {
			return nil, fmt.Errorf("location and location_denied are exclusive")
		}
		return nil, nil
	}
	if req.Location == nil {
		return nil, nil
	}
	p := location.Position{
		Lat:       req.Location.Lat,
		Lng:       req.Location.Lng,
		AccuracyM: req.Location.AccuracyM,
	}
	if !p.Valid() || p.AccuracyM < 0 {
		return nil, fmt.Errorf("location out of range")
	}
	return &p, nil
}

// ── google.protobuf.Struct ───────────────────────────────────────────────────

// toStruct converts a JSON-tagged value into a Struct via its JSON form so
// both encodings share field names.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return strictUnmarshal(b, v)
}
