package detect

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ecstasyos/presence/server/internal/presence/camera"
)

const (
	// ServiceName is the face detector's gRPC service, also the name its
	// health status is published under.
	ServiceName  = "presence.detector.v1.FaceDetector"
	detectMethod = "/" + ServiceName + "/Detect"
)

// RemoteDetector delegates inference to a detector service over gRPC.
// Requests and replies are google.protobuf.Struct:
//
//	request:  {width, height, format: "rgb24", seq, data: base64}
//	reply:    {faces: number}
type RemoteDetector struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration
	ready   atomic.Bool
}

// DialRemote connects to addr without TLS; the detector runs on the kiosk's
// loopback or a private network segment.
func DialRemote(addr string, timeout time.Duration) (*RemoteDetector, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial detector %s: %w", addr, err)
	}
	return NewRemoteDetector(conn, timeout), nil
}

func NewRemoteDetector(conn *grpc.ClientConn, timeout time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteDetector{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
	}
}

// Compile checks that the remote model is serving. The weights live with the
// detector service, so local assets are ignored.
func (d *RemoteDetector) Compile(ctx context.Context, _ map[string][]byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("detector health: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("detector health: %s", resp.GetStatus())
	}
	d.ready.Store(true)
	return nil
}

func (d *RemoteDetector) DetectFaces(ctx context.Context, f camera.Frame) (int, error) {
	if !d.ready.Load() {
		return 0, ErrNotLoaded
	}
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < f.Width*f.Height*3 {
		return 0, ErrInvalidFrame
	}

	req, err := structpb.NewStruct(map[string]any{
		"width":  f.Width,
		"height": f.Height,
		"format": "rgb24",
		"seq":    f.Seq,
		"data":   base64.StdEncoding.EncodeToString(f.Data),
	})
	if err != nil {
		return 0, fmt.Errorf("encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := d.conn.Invoke(ctx, detectMethod, req, resp); err != nil {
		return 0, fmt.Errorf("remote detect: %w", err)
	}

	v, ok := resp.GetFields()["faces"]
	if !ok {
		return 0, fmt.Errorf("remote detect: reply has no faces field")
	}
	n := v.GetNumberValue()
	// NaN fails the Trunc comparison
	if n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
		return 0, fmt.Errorf("remote detect: bad face count %v", n)
	}
	return int(n), nil
}

func (d *RemoteDetector) Close() error {
	return d.conn.Close()
}
