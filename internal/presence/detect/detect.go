// Package detect counts faces in a single camera frame.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pigo "github.com/esimov/pigo/core"

	"github.com/ecstasyos/presence/server/internal/presence/camera"
)

var (
	ErrNotLoaded    = errors.New("detector model not loaded")
	ErrInvalidFrame = errors.New("invalid frame")
)

// Detector runs exactly one inference per call and does not retain the frame.
type Detector interface {
	DetectFaces(ctx context.Context, f camera.Frame) (int, error)
}

// FaceFinderAsset is the cascade the in-process detector is built from.
const FaceFinderAsset = "facefinder"

type CascadeConfig struct {
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	// IoUThreshold merges overlapping detections of the same face.
	IoUThreshold float64
	// QualityFloor drops weak detections (pigo's Q score).
	QualityFloor float64
}

func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		MinSize:      40,
		MaxSize:      800,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		QualityFloor: 5.0,
	}
}

// PigoDetector runs the pigo pixel-intensity cascade in process.
type PigoDetector struct {
	cfg CascadeConfig

	mu         sync.RWMutex
	classifier *pigo.Pigo
}

func NewPigoDetector(cfg CascadeConfig) *PigoDetector {
	return &PigoDetector{cfg: cfg}
}

// Compile unpacks the facefinder cascade. It is the model.Compiler hook.
func (d *PigoDetector) Compile(_ context.Context, assets map[string][]byte) (err error) {
	data, ok := assets[FaceFinderAsset]
	if !ok || len(data) == 0 {
		return fmt.Errorf("missing %s cascade", FaceFinderAsset)
	}

	// Unpack indexes into the blob without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unpack %s: corrupt cascade: %v", FaceFinderAsset, r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return fmt.Errorf("unpack %s: %w", FaceFinderAsset, err)
	}

	d.mu.Lock()
	d.classifier = classifier
	d.mu.Unlock()
	return nil
}

func (d *PigoDetector) DetectFaces(ctx context.Context, f camera.Frame) (int, error) {
	d.mu.RLock()
	classifier := d.classifier
	d.mu.RUnlock()
	if classifier == nil {
		return 0, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pixels, err := grayscale(f)
	if err != nil {
		return 0, err
	}

	params := pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     d.cfg.MaxSize,
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   f.Height,
			Cols:   f.Width,
			Dim:    f.Width,
		},
	}

	dets := classifier.RunCascade(params, 0.0)
	dets = classifier.ClusterDetections(dets, d.cfg.IoUThreshold)

	faces := 0
	for _, det := range dets {
		if float64(det.Q) >= d.cfg.QualityFloor {
			faces++
		}
	}
	return faces, nil
}

// grayscale converts packed RGB to 8-bit luma (ITU-R BT.601 weights).
func grayscale(f camera.Frame) ([]uint8, error) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < f.Width*f.Height*3 {
		return nil, ErrInvalidFrame
	}
	out := make([]uint8, f.Width*f.Height)
	for i := range out {
		r := uint32(f.Data[i*3])
		g := uint32(f.Data[i*3+1])
		b := uint32(f.Data[i*3+2])
		out[i] = uint8((299*r + 587*g + 114*b) / 1000)
	}
	return out, nil
}
