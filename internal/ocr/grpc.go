package ocr

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
	"github.com/GriffinCanCode/vidscribe/internal/media"
	"github.com/GriffinCanCode/vidscribe/internal/metrics"
	"github.com/GriffinCanCode/vidscribe/internal/resilience"
	"github.com/GriffinCanCode/vidscribe/internal/trace"
)

// ExtractTextMethod is the unary RPC served by the inference server. The
// request is a PNG wrapped in BytesValue, the reply a StringValue.
const ExtractTextMethod = "/vidscribe.ocr.v1.OCRService/ExtractText"

const (
	DefaultTimeout = 10 * time.Second
	breakerName    = "ocr-grpc"

	keepaliveTime    = 10 * time.Second
	keepaliveTimeout = 3 * time.Second
)

// GRPCOptions configures GRPCClient.
type GRPCOptions struct {
	Timeout  time.Duration // per attempt
	Rate     float64       // requests per second, 0 = unlimited
	Burst    int
	Breaker  resilience.BreakerConfig
	Retry    resilience.Policy
	DialOpts []grpc.DialOption
}

// GRPCClient calls a remote OCR model.
type GRPCClient struct {
	conn    *grpc.ClientConn
	opts    GRPCOptions
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewGRPCClient creates a client for addr. The connection is established
// lazily on the first call.
func NewGRPCClient(addr string, opts GRPCOptions) (*GRPCClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	burst := max(opts.Burst, 1)

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: keepaliveTime, Timeout: keepaliveTimeout}),
	}, opts.DialOpts...)
	conn, err := grpc.NewClient(addr, dial...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.OCRUnavailable, "dial ocr server %s", addr)
	}

	breaker := resilience.NewBreaker(breakerName, opts.Breaker).
		OnStateChange(func(name string, _, to resilience.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		})
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.Closed))

	return &GRPCClient{
		conn:    conn,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}, nil
}

// Name implements Extractor.
func (c *GRPCClient) Name() string { return "grpc" }

// Close closes the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

// Breaker exposes the circuit breaker for health reporting.
func (c *GRPCClient) Breaker() *resilience.Breaker { return c.breaker }

// ExtractText implements Extractor.
func (c *GRPCClient) ExtractText(ctx context.Context, frame *media.Frame) (string, error) {
	img, err := media.EncodePNG(frame)
	if err != nil {
		return "", err
	}
	req := wrapperspb.Bytes(img)

	var text string
	err = resilience.Retry(ctx, c.opts.Retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Do(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
			reply := &wrapperspb.StringValue{}
			if err := c.conn.Invoke(ctx, ExtractTextMethod, req, reply); err != nil {
				return apperrors.FromGRPCError(err)
			}
			text = reply.GetValue()
			return nil
		})
	})
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.OCRExtractFailed, "ocr frame %d", frame.Index)
	}
	return text, nil
}
