// Package trace carries W3C trace context through jobs, HTTP requests and OCR
// calls, and tags log records with it.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Header is the W3C trace context header, also used as gRPC metadata key.
const Header = "traceparent"

type ctxKey struct{}

// Context identifies the current span.
type Context struct {
	TraceID  string // 32 hex chars
	SpanID   string // 16 hex chars
	ParentID string
	JobID    string
}

// New returns a root context with fresh ids.
func New() Context {
	return Context{TraceID: randomHex(16), SpanID: randomHex(8)}
}

// Child returns a new span under c.
func (c Context) Child() Context {
	if c.TraceID == "" {
		n := New()
		n.JobID = c.JobID
		return n
	}
	return Context{TraceID: c.TraceID, SpanID: randomHex(8), ParentID: c.SpanID, JobID: c.JobID}
}

// Traceparent renders c as a traceparent header value.
func (c Context) Traceparent() string {
	return fmt.Sprintf("00-%s-%s-01", c.TraceID, c.SpanID)
}

// Parse reads a traceparent header value. The returned context is a child of
// the remote span.
func Parse(header string) (Context, bool) {
	parts := strings.Split(strings.TrimSpace(header), "-")
	if len(parts) != 4 || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return Context{}, false
	}
	if !isHex(parts[1]) || !isHex(parts[2]) {
		return Context{}, false
	}
	return Context{TraceID: parts[1], SpanID: randomHex(8), ParentID: parts[2]}, true
}

// FromContext returns the trace context stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// WithJob starts a root span for a job.
func WithJob(ctx context.Context, jobID string) context.Context {
	tc, ok := FromContext(ctx)
	if ok {
		tc = tc.Child()
	} else {
		tc = New()
	}
	tc.JobID = jobID
	return WithContext(ctx, tc)
}

// Logger returns slog.Default() tagged with the trace ids in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := []any{"trace_id", tc.TraceID, "span_id", tc.SpanID}
	if tc.JobID != "" {
		args = append(args, "job_id", tc.JobID)
	}
	return slog.Default().With(args...)
}

// Span is a timed operation.
type Span struct {
	Name  string
	Ctx   Context
	start time.Time
	attrs []any
}

// StartSpan opens a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := &Span{Name: name, Ctx: parent.Child(), start: time.Now()}
	return WithContext(ctx, s.Ctx), s
}

// SetAttr attaches a key/value logged when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, key, val)
}

// End logs the span at debug level, or warn if err is non-nil, and returns
// its duration.
func (s *Span) End(err error) time.Duration {
	d := time.Since(s.start)
	log := Logger(WithContext(context.Background(), s.Ctx)).With(s.attrs...)
	if err != nil {
		log.Warn("span failed", "span", s.Name, "duration", d, "error", err)
	} else {
		log.Debug("span finished", "span", s.Name, "duration", d)
	}
	return d
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
