package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/geofence"
	"github.com/ecstasyos/presence/server/internal/presence/service"
	"github.com/ecstasyos/presence/server/internal/presence/store/memory"
)

func testSites(t *testing.T) *geofence.Registry {
	t.Helper()
	reg, err := geofence.NewRegistry([]geofence.Point{
		{ID: "company", Name: "HQ", Kind: geofence.KindCompany, Lat: -6.2, Lng: 106.8},
		{ID: "proj-a", Name: "Tower A", Kind: geofence.KindProject, Lat: -6.3, Lng: 106.9},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

var ana = capture.Identity{EmployeeID: "emp-7", Email: "ana@example.com", Name: "Ana"}

// ── Activate ─────────────────────────────────────────────────────────────────

func TestActivate_DefaultsToCompanySite(t *testing.T) {
	deps, _ := sessionDeps(1)
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())
	defer svc.Close()

	sess, err := svc.Activate(context.Background(), ana, "", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := sess.Snapshot().SiteID; got != "company" {
		t.Errorf("expected site company, got %q", got)
	}
}

func TestActivate_UnknownSite(t *testing.T) {
	deps, _ := sessionDeps(1)
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())

	_, err := svc.Activate(context.Background(), ana, "mars", false)
	if !errors.Is(err, geofence.ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite, got %v", err)
	}
}

func TestActivate_ChecksSiteStore(t *testing.T) {
	deps, _ := sessionDeps(1)
	deps.Sites = memory.NewSiteStore(geofence.Point{ID: "company", Name: "HQ", Kind: geofence.KindCompany})
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())
	defer svc.Close()

	_, err := svc.Activate(context.Background(), ana, "proj-a", false)
	if !errors.Is(err, geofence.ErrUnknownSite) {
		t.Fatalf("expected ErrUnknownSite for a point missing from the store, got %v", err)
	}
	if svc.Active() {
		t.Error("expected no session after a refused activation")
	}

	sess, err := svc.Activate(context.Background(), ana, "", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := sess.Snapshot().SiteID; got != "company" {
		t.Errorf("expected site company, got %q", got)
	}
}

type brokenSites struct{}

func (brokenSites) UpsertSite(context.Context, geofence.Point) error { return nil }
func (brokenSites) Site(context.Context, string) (geofence.Point, bool, error) {
	return geofence.Point{}, false, errors.New("disk gone")
}

func TestActivate_SiteStoreError(t *testing.T) {
	deps, cams := sessionDeps(1)
	deps.Sites = brokenSites{}
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())

	_, err := svc.Activate(context.Background(), ana, "", false)
	if err == nil || errors.Is(err, geofence.ErrUnknownSite) {
		t.Fatalf("expected a lookup error, got %v", err)
	}
	if len(*cams) != 0 {
		t.Error("expected no camera handle for a refused activation")
	}
}

func TestActivate_RequiresEmployeeID(t *testing.T) {
	deps, _ := sessionDeps(1)
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())

	_, err := svc.Activate(context.Background(), capture.Identity{EmployeeID: "  "}, "", false)
	if !errors.Is(err, service.ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestActivate_NoSitesConfigured(t *testing.T) {
	deps, _ := sessionDeps(1)
	svc := service.NewAttendanceService(deps, nil, silentLogger())
	defer svc.Close()

	sess, err := svc.Activate(context.Background(), ana, "", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := sess.Snapshot().SiteID; got != "" {
		t.Errorf("expected no site, got %q", got)
	}
}

func TestActivate_ReplacesPreviousSession(t *testing.T) {
	deps, cams := sessionDeps(1)
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())
	defer svc.Close()
	ctx := context.Background()

	first, err := svc.Activate(ctx, ana, "", false)
	if err != nil {
		t.Fatalf("Activate first: %v", err)
	}
	if out := first.StartCamera(ctx); out != capture.Success {
		t.Fatalf("StartCamera: %s", out)
	}

	second, err := svc.Activate(ctx, ana, "proj-a", false)
	if err != nil {
		t.Fatalf("Activate second: %v", err)
	}

	if _, err := svc.Session(first.ID()); !errors.Is(err, service.ErrUnknownSession) {
		t.Errorf("expected first session to be gone, got %v", err)
	}
	got, err := svc.Session(second.ID())
	if err != nil || got != second {
		t.Errorf("Session(second) = %v, %v", got, err)
	}
	if (*cams)[0].Active() {
		t.Error("expected previous session's camera to be released")
	}
	if len(*cams) != 2 {
		t.Errorf("expected a camera handle per session, got %d", len(*cams))
	}
}

// ── Deactivate ───────────────────────────────────────────────────────────────

func TestDeactivate(t *testing.T) {
	deps, cams := sessionDeps(1)
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger())
	ctx := context.Background()

	sess, err := svc.Activate(ctx, ana, "", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	sess.StartCamera(ctx)

	if err := svc.Deactivate(sess.ID()); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if (*cams)[0].Active() {
		t.Error("expected camera released on teardown")
	}
	if err := svc.Deactivate(sess.ID()); !errors.Is(err, service.ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession on second teardown, got %v", err)
	}
}

// ── Listeners ────────────────────────────────────────────────────────────────

func TestActivate_WiresRecorder(t *testing.T) {
	deps, _ := sessionDeps(1)
	es := memory.NewEventStore()
	rec := service.NewEventRecorder(es, silentLogger())
	svc := service.NewAttendanceService(deps, testSites(t), silentLogger(), rec.Record)
	defer svc.Close()
	ctx := context.Background()

	sess, err := svc.Activate(ctx, ana, "proj-a", false)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if out := sess.StartCamera(ctx); out != capture.Success {
		t.Fatalf("StartCamera: %s", out)
	}
	if res := sess.CheckIn(ctx); res.Outcome != capture.Success {
		t.Fatalf("CheckIn: %s", res.Outcome)
	}
	if res := sess.CheckOut(ctx); res.Outcome != capture.Success {
		t.Fatalf("CheckOut: %s", res.Outcome)
	}

	events := es.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	in := events[0]
	if in.Kind != "checked_in" || in.Outcome != "success" {
		t.Errorf("unexpected first event %+v", in)
	}
	if in.EmployeeID != "emp-7" || in.SiteID != "proj-a" {
		t.Errorf("expected emp-7 at proj-a, got %q at %q", in.EmployeeID, in.SiteID)
	}
	if in.Faces == nil || *in.Faces != 1 {
		t.Errorf("expected faces=1, got %v", in.Faces)
	}
	if in.Lat == nil || *in.Lat != -6.2 {
		t.Errorf("expected lat=-6.2, got %v", in.Lat)
	}
	if events[1].Kind != "checked_out" || events[1].Faces != nil {
		t.Errorf("unexpected second event %+v", events[1])
	}
}
