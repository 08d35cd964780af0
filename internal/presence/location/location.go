// Package location provides one-shot device position probes.
package location

import (
	"context"
	"errors"
	"time"
)

// ErrDenied is returned when no position can be obtained: the user declined
// the prompt, location services are off, or no position was reported.
var ErrDenied = errors.New("location denied")

type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
	At        time.Time `json:"at"`
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Probe requests the current position. Results are never cached.
type Probe interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Static answers with fixed kiosk coordinates.
type Static struct {
	pos *Position
}

// NewStatic returns a probe for a kiosk mounted at a known position. A nil
// position yields a probe that always denies.
func NewStatic(pos *Position) *Static {
	return &Static{pos: pos}
}

func (s *Static) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if s.pos == nil {
		return Position{}, ErrDenied
	}
	p := *s.pos
	p.At = time.Now().UTC()
	return p, nil
}

type reportKey struct{}

type report struct {
	pos    Position
	denied bool
}

// WithReported attaches the position the client obtained for this attempt.
func WithReported(ctx context.Context, pos Position) context.Context {
	return context.WithValue(ctx, reportKey{}, report{pos: pos})
}

// WithDenied records that the client's location prompt was declined.
func WithDenied(ctx context.Context) context.Context {
	return context.WithValue(ctx, reportKey{}, report{denied: true})
}

// Reported reads the position forwarded by the client on the request
// context. A missing report counts as a denial.
type Reported struct{}

func (Reported) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	r, ok := ctx.Value(reportKey{}).(report)
	if !ok || r.denied {
		return Position{}, ErrDenied
	}
	if !r.pos.Valid() {
		return Position{}, ErrDenied
	}
	p := r.pos
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	return p, nil
}
