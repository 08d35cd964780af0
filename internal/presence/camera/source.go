package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// maxSnapshotBytes caps a single snapshot body. A 1080p JPEG is well under
// 1 MiB; 8 MiB leaves room for PNG snapshots.
const maxSnapshotBytes = 8 << 20

// maxDecodedPixels bounds the canvas a snapshot header may declare. It is
// checked before any pixels are decoded.
const maxDecodedPixels = 8192 * 8192

var ErrFrameTooLarge = errors.New("snapshot dimensions too large")

// SnapshotSource polls an HTTP still-image endpoint, the interface most USB
// capture daemons and IP cameras expose (e.g. /snapshot.jpg).
type SnapshotSource struct {
	URL     string
	Client  *http.Client
	MaxEdge int
}

func NewSnapshotSource(url string, maxEdge int) *SnapshotSource {
	return &SnapshotSource{
		URL:     url,
		Client:  &http.Client{Timeout: 5 * time.Second},
		MaxEdge: maxEdge,
	}
}

// Open fetches one frame to confirm the device answers and grants access.
func (s *SnapshotSource) Open(ctx context.Context) (Stream, error) {
	st := &snapshotStream{src: s}
	f, err := st.fetch(ctx)
	if err != nil {
		return nil, err
	}
	st.pending = &f
	return st, nil
}

type snapshotStream struct {
	src     *SnapshotSource
	pending *Frame
}

func (st *snapshotStream) Read(ctx context.Context) (Frame, error) {
	if st.pending != nil {
		f := *st.pending
		st.pending = nil
		return f, nil
	}
	return st.fetch(ctx)
}

func (st *snapshotStream) Close() error { return nil }

func (st *snapshotStream) fetch(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, st.src.URL, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	resp, err := st.src.Client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: no device: %v", ErrPermissionDenied, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Frame{}, fmt.Errorf("%w: snapshot endpoint answered %d", ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Frame{}, fmt.Errorf("%w: snapshot endpoint answered %d", ErrPermissionDenied, resp.StatusCode)
	}

	f, err := decodeFrame(resp.Body, st.src.MaxEdge)
	if err != nil {
		return Frame{}, err
	}
	f.Source = st.src.URL
	return f, nil
}

// FileSource serves a still image from disk. Development kiosks without a
// device point it at a photo.
type FileSource struct {
	Path    string
	MaxEdge int
}

func (s *FileSource) Open(_ context.Context) (Stream, error) {
	fh, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: no device: %v", ErrPermissionDenied, err)
	}
	defer fh.Close()

	f, err := decodeFrame(fh, s.MaxEdge)
	if err != nil {
		return nil, err
	}
	f.Source = s.Path
	return &stillStream{frame: f}, nil
}

type stillStream struct {
	frame Frame
}

func (st *stillStream) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	f := st.frame
	f.Timestamp = time.Now().UTC()
	return f, nil
}

func (st *stillStream) Close() error { return nil }

func decodeFrame(r io.Reader, maxEdge int) (Frame, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSnapshotBytes))
	if err != nil {
		return Frame{}, fmt.Errorf("read snapshot: %w", err)
	}

	webP := isWebP(data)
	var cfg image.Config
	if webP {
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return Frame{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxDecodedPixels {
		return Frame{}, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	var img image.Image
	if webP {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return Frame{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return FromImage(img, maxEdge), nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// FromImage packs img into an RGB frame, shrinking it so neither edge exceeds
// maxEdge (0 keeps the original size).
func FromImage(img image.Image, maxEdge int) Frame {
	b := img.Bounds()
	if maxEdge > 0 && (b.Dx() > maxEdge || b.Dy() > maxEdge) {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Linear)
	}
	nrgba := imaging.Clone(img)

	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	data := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			data = append(data, row[x], row[x+1], row[x+2])
		}
	}
	return Frame{
		Timestamp: time.Now().UTC(),
		Width:     w,
		Height:    h,
		Data:      data,
	}
}

// Unavailable is the source of a kiosk with no camera configured. Every
// grant is refused.
type Unavailable struct{}

func (Unavailable) Open(context.Context) (Stream, error) {
	return nil, fmt.Errorf("%w: no camera configured", ErrPermissionDenied)
}
