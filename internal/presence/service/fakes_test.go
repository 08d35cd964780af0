package service_test

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/ecstasyos/presence/server/internal/presence/camera"
	"github.com/ecstasyos/presence/server/internal/presence/capture"
	"github.com/ecstasyos/presence/server/internal/presence/location"
	"github.com/ecstasyos/presence/server/internal/presence/service"
)

func silentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type stubCamera struct {
	mu     sync.Mutex
	active bool
}

func (c *stubCamera) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	return nil
}

func (c *stubCamera) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

func (c *stubCamera) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *stubCamera) Frame(context.Context) (camera.Frame, error) {
	return camera.Frame{Width: 1, Height: 1, Data: []byte{1, 2, 3}}, nil
}

type readyModels struct{}

func (readyModels) Load(context.Context)     {}
func (readyModels) Ready() bool              { return true }
func (readyModels) OnSettled(fn func(error)) { fn(nil) }

type fixedDetector struct{ faces int }

func (d fixedDetector) DetectFaces(context.Context, camera.Frame) (int, error) {
	return d.faces, nil
}

// sessionDeps returns deps whose cameras are recorded so tests can check
// which handle each session got.
func sessionDeps(faces int) (service.SessionDeps, *[]*stubCamera) {
	var cams []*stubCamera
	var mu sync.Mutex
	return service.SessionDeps{
		NewCamera: func() capture.Camera {
			mu.Lock()
			defer mu.Unlock()
			c := &stubCamera{}
			cams = append(cams, c)
			return c
		},
		Models:   readyModels{},
		Probe:    location.NewStatic(&location.Position{Lat: -6.2, Lng: 106.8}),
		Detector: fixedDetector{faces: faces},
	}, &cams
}
