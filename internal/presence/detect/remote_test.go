package detect_test

import (
	"context"
	"encoding/base64"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ecstasyos/presence/server/internal/presence/camera"
	"github.com/ecstasyos/presence/server/internal/presence/detect"
)

type detectorServer interface {
	Detect(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var detectorDesc = grpc.ServiceDesc{
	ServiceName: detect.ServiceName,
	HandlerType: (*detectorServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Detect",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(detectorServer).Detect(ctx, in)
		},
	}},
	Metadata: "presence/detector/v1/detector.proto",
}

// fakeDetector answers a fixed face count and remembers the last request.
type fakeDetector struct {
	faces float64
	last  *structpb.Struct
}

func (f *fakeDetector) Detect(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.last = in
	return structpb.NewStruct(map[string]any{"faces": f.faces})
}

func newRemote(t *testing.T, fake *fakeDetector, status healthpb.HealthCheckResponse_ServingStatus) *detect.RemoteDetector {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&detectorDesc, fake)
	hs := health.NewServer()
	hs.SetServingStatus(detect.ServiceName, status)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	d := detect.NewRemoteDetector(conn, 2*time.Second)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func frame() camera.Frame {
	return camera.Frame{Seq: 7, Width: 2, Height: 2, Data: make([]byte, 12)}
}

func TestRemoteDetector_CountsFaces(t *testing.T) {
	fake := &fakeDetector{faces: 1}
	d := newRemote(t, fake, healthpb.HealthCheckResponse_SERVING)

	require.NoError(t, d.Compile(context.Background(), nil))

	n, err := d.DetectFaces(context.Background(), frame())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fields := fake.last.GetFields()
	assert.Equal(t, 2.0, fields["width"].GetNumberValue())
	assert.Equal(t, "rgb24", fields["format"].GetStringValue())
	raw, err := base64.StdEncoding.DecodeString(fields["data"].GetStringValue())
	require.NoError(t, err)
	assert.Len(t, raw, 12)
}

func TestRemoteDetector_NotServing(t *testing.T) {
	d := newRemote(t, &fakeDetector{}, healthpb.HealthCheckResponse_NOT_SERVING)

	assert.Error(t, d.Compile(context.Background(), nil))

	_, err := d.DetectFaces(context.Background(), frame())
	assert.ErrorIs(t, err, detect.ErrNotLoaded)
}

func TestRemoteDetector_RejectsBadCount(t *testing.T) {
	for name, faces := range map[string]float64{
		"negative":     -1,
		"fractional":   1.5,
		"out of range": 1e12,
		"huge":         math.MaxFloat64,
	} {
		t.Run(name, func(t *testing.T) {
			d := newRemote(t, &fakeDetector{faces: faces}, healthpb.HealthCheckResponse_SERVING)
			require.NoError(t, d.Compile(context.Background(), nil))

			_, err := d.DetectFaces(context.Background(), frame())
			assert.Error(t, err)
		})
	}
}

func TestRemoteDetector_InvalidFrame(t *testing.T) {
	d := newRemote(t, &fakeDetector{faces: 1}, healthpb.HealthCheckResponse_SERVING)
	require.NoError(t, d.Compile(context.Background(), nil))

	_, err := d.DetectFaces(context.Background(), camera.Frame{Width: 4, Height: 4})
	assert.ErrorIs(t, err, detect.ErrInvalidFrame)
}
