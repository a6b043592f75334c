package ocr

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/resilience"
)

// fakeOCRServer answers ExtractText with a canned reply after failing the
// first `failures` calls with Unavailable.
type fakeOCRServer struct {
	calls    atomic.Int32
	failures int32
	code     codes.Code
	reply    string
	gotBytes atomic.Int32
}

func (s *fakeOCRServer) extract(_ context.Context, req *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	n := s.calls.Add(1)
	s.gotBytes.Store(int32(len(req.GetValue())))
	if n <= s.failures {
		return nil, status.Error(s.code, "model warming up")
	}
	return wrapperspb.String(s.reply), nil
}

func startFakeServer(t *testing.T, srv *fakeOCRServer) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	gs.RegisterService(&grpc.ServiceDesc{
		ServiceName: "vidscribe.ocr.v1.OCRService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "ExtractText",
			Handler: func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := &wrapperspb.BytesValue{}
				if err := dec(req); err != nil {
					return nil, err
				}
				return srv.extract(ctx, req)
			},
		}},
	}, srv)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func newTestClient(t *testing.T, srv *fakeOCRServer, opts GRPCOptions) *GRPCClient {
	t.Helper()
	opts.DialOpts = append(opts.DialOpts, startFakeServer(t, srv))
	c, err := NewGRPCClient("passthrough:///bufnet", opts)
	if err != nil {
		t.Fatalf("NewGRPCClient() error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func quickRetry() resilience.Policy {
	return resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestGRPCClient_ExtractText(t *testing.T) {
	srv := &fakeOCRServer{reply: "Roadmap 2025"}
	c := newTestClient(t, srv, GRPCOptions{Retry: quickRetry()})

	f := twoTone(8, 8)
	text, err := c.ExtractText(context.Background(), &f)
	if err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if text != "Roadmap 2025" {
		t.Errorf("text = %q", text)
	}
	if srv.gotBytes.Load() == 0 {
		t.Error("server received an empty image")
	}
	if c.Name() != "grpc" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestGRPCClient_RetriesUnavailable(t *testing.T) {
	srv := &fakeOCRServer{reply: "ok", failures: 2, code: codes.Unavailable}
	c := newTestClient(t, srv, GRPCOptions{Retry: quickRetry()})

	f := twoTone(4, 4)
	if _, err := c.ExtractText(context.Background(), &f); err != nil {
		t.Fatalf("ExtractText() error: %v", err)
	}
	if srv.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", srv.calls.Load())
	}
}

func TestGRPCClient_NoRetryOnInvalidArgument(t *testing.T) {
	srv := &fakeOCRServer{failures: 10, code: codes.InvalidArgument}
	c := newTestClient(t, srv, GRPCOptions{Retry: quickRetry()})

	f := twoTone(4, 4)
	_, err := c.ExtractText(context.Background(), &f)
	if !apperrors.IsCode(err, apperrors.OCRExtractFailed) {
		t.Fatalf("error = %v, want OCR_EXTRACT_FAILED", err)
	}
	if srv.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", srv.calls.Load())
	}
}

func TestGRPCClient_BreakerOpens(t *testing.T) {
	srv := &fakeOCRServer{failures: 100, code: codes.Unavailable}
	c := newTestClient(t, srv, GRPCOptions{
		Retry:   resilience.Policy{Attempts: 1},
		Breaker: resilience.BreakerConfig{Threshold: 2, Cooldown: time.Hour},
	})

	f := twoTone(4, 4)
	for i := 0; i < 2; i++ {
		_, _ = c.ExtractText(context.Background(), &f)
	}
	if c.Breaker().State() != resilience.Open {
		t.Fatalf("breaker state = %v, want open", c.Breaker().State())
	}
	_, err := c.ExtractText(context.Background(), &f)
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("error = %v, want ErrOpen", err)
	}
	if srv.calls.Load() != 2 {
		t.Errorf("calls = %d, open breaker should not reach the server", srv.calls.Load())
	}
}

func TestGRPCClient_InvalidFrame(t *testing.T) {
	srv := &fakeOCRServer{reply: "x"}
	c := newTestClient(t, srv, GRPCOptions{})
	if _, err := c.ExtractText(context.Background(), &media.Frame{}); !apperrors.IsCode(err, apperrors.FrameInvalid) {
		t.Errorf("error = %v, want FRAME_INVALID", err)
	}
	if srv.calls.Load() != 0 {
		t.Error("invalid frame reached the server")
	}
}
