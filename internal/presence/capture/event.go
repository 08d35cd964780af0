package capture

import (
	"time"

	"github.com/google/uuid"

	"github.com/ecstasyos/presence/server/internal/presence/location"
)

type EventKind string

const (
	EventCheckedIn          EventKind = "checked_in"
	EventCheckedOut         EventKind = "checked_out"
	EventVerificationFailed EventKind = "verification_failed"
)

// Event is emitted on every terminal transition of an attempt. The session
// keeps nothing beyond its own lifetime; whoever needs persistence listens.
type Event struct {
	ID        string
	SessionID string
	Kind      EventKind
	Outcome   Outcome
	Identity  Identity
	SiteID    string
	At        time.Time
	// Faces is the detector's count, -1 when no inference ran.
	Faces    int
	Position *location.Position
}

type Listener func(Event)

func (s *Session) eventLocked(kind EventKind, out Outcome, at time.Time, faces int, pos *location.Position) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Kind:      kind,
		Outcome:   out,
		Identity:  s.who,
		SiteID:    s.siteID,
		At:        at,
		Faces:     faces,
		Position:  pos,
	}
}

func emit(listeners []Listener, ev Event) {
	for _, l := range listeners {
		l(ev)
	}
}
