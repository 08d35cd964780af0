// Package camera owns the kiosk's capture device. The Controller is the only
// component that opens or releases the hardware stream; everything else reads
// frames through it.
//
// While Active, a background pump keeps the latest frame in a single-slot
// mailbox. Stale frames are overwritten, never queued: a presence check wants
// what the camera sees now, not what it saw a second ago.
package camera

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied covers both a declined grant and a missing device.
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNotActive        = errors.New("camera is off")
	// ErrStopped is returned by Start when Stop was called while the
	// device was still being opened.
	ErrStopped = errors.New("camera stopped while starting")
)

type State int

const (
	Off State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "off"
}

// Frame is a single decoded image. Data is packed RGB, row-major, Width*3
// bytes per row. Frames are shared, not copied: treat Data as read-only.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	Source    string
}

// Source opens the hardware stream.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until closed.
type Stream interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

const defaultInterval = 200 * time.Millisecond

type Controller struct {
	src      Source
	interval time.Duration
	logger   *log.Logger

	// stopMu serializes releases so a returning Stop means the device is free.
	stopMu sync.Mutex

	mu       sync.Mutex
	state    State
	starting bool
	gen      uint64
	stream   Stream
	cancel   context.CancelFunc
	done     chan struct{}
	ready    chan struct{}
	latest   *Frame
	seq      uint64
}

// NewController creates a controller in the Off state. interval is the pump
// period; zero selects 200ms.
func NewController(src Source, interval time.Duration, logger *log.Logger) *Controller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Controller{src: src, interval: interval, logger: logger}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Active() bool { return c.State() == Active }

// Start requests the device. It is a no-op while Active or while another
// Start is in flight.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Active || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	gen := c.gen
	c.mu.Unlock()

	st, err := c.src.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if err != nil {
		return err
	}
	if c.gen != gen {
		_ = st.Close()
		return ErrStopped
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.state = Active
	c.stream = st
	c.cancel = cancel
	c.done = make(chan struct{})
	c.ready = make(chan struct{})
	c.latest = nil

	go c.pump(pumpCtx, st, c.ready, c.done)
	c.logger.Printf("camera started")
	return nil
}

// Stop releases the device and returns once the stream is closed. Safe to
// call in any state.
func (c *Controller) Stop() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	c.mu.Lock()
	c.gen++
	if c.state == Off {
		c.mu.Unlock()
		return
	}
	cancel, done, st := c.cancel, c.done, c.stream
	c.state = Off
	c.stream = nil
	c.cancel = nil
	c.ready = nil
	c.latest = nil
	c.mu.Unlock()

	cancel()
	<-done
	if err := st.Close(); err != nil {
		c.logger.Printf("camera close error: %v", err)
	}
	c.logger.Printf("camera stopped")
}

// Frame returns the most recent frame, waiting for the first one after Start.
func (c *Controller) Frame(ctx context.Context) (Frame, error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return Frame{}, ErrNotActive
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Frame{}, ErrNotActive
	}
	return *c.latest, nil
}

func (c *Controller) pump(ctx context.Context, st Stream, ready, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	first := true
	for {
		f, err := st.Read(ctx)
		switch {
		case err == nil:
			c.publish(f, ready, first)
			first = false
		case ctx.Err() != nil:
			return
		default:
			c.logger.Printf("camera read error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) publish(f Frame, ready chan struct{}, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready != ready {
		// stream was replaced or stopped
		return
	}
	c.seq++
	f.Seq = c.seq
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	c.latest = &f
	if first {
		close(ready)
	}
}
