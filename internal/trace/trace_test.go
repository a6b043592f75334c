package trace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestNew(t *testing.T) {
	tc := New()
	if len(tc.TraceID) != 32 || len(tc.SpanID) != 16 {
		t.Errorf("ids = %q/%q, want 32/16 hex chars", tc.TraceID, tc.SpanID)
	}
	if New().TraceID == tc.TraceID {
		t.Error("trace ids should be unique")
	}
}

func TestChild(t *testing.T) {
	parent := New()
	parent.JobID = "job-1"
	child := parent.Child()
	if child.TraceID != parent.TraceID || child.ParentID != parent.SpanID || child.JobID != "job-1" {
		t.Errorf("child = %+v, parent = %+v", child, parent)
	}
	if child.SpanID == parent.SpanID {
		t.Error("child reused parent span id")
	}

	orphan := Context{JobID: "job-2"}.Child()
	if orphan.TraceID == "" || orphan.JobID != "job-2" {
		t.Errorf("child of empty context = %+v", orphan)
	}
}

func TestParse(t *testing.T) {
	tc := New()
	got, ok := Parse(tc.Traceparent())
	if !ok {
		t.Fatalf("Parse(%q) failed", tc.Traceparent())
	}
	if got.TraceID != tc.TraceID || got.ParentID != tc.SpanID {
		t.Errorf("Parse() = %+v", got)
	}

	for _, bad := range []string{"", "00-abc-def-01", "00-" + tc.TraceID + "-zzzzzzzzzzzzzzzz-01"} {
		if _, ok := Parse(bad); ok {
			t.Errorf("Parse(%q) accepted malformed header", bad)
		}
	}
}

func TestWithJob(t *testing.T) {
	ctx := WithJob(context.Background(), "abc")
	tc, ok := FromContext(ctx)
	if !ok || tc.JobID != "abc" || tc.TraceID == "" {
		t.Errorf("WithJob() context = %+v, %v", tc, ok)
	}
	if Logger(ctx) == nil || Logger(context.Background()) == nil {
		t.Error("Logger returned nil")
	}
}

func TestStartSpan(t *testing.T) {
	root := WithContext(context.Background(), New())
	ctx, span := StartSpan(root, "extract")
	parent, _ := FromContext(root)
	tc, _ := FromContext(ctx)
	if tc.ParentID != parent.SpanID || span.Ctx != tc {
		t.Errorf("span ctx = %+v, parent = %+v", tc, parent)
	}
	span.SetAttr("frames", 3)
	if d := span.End(errors.New("x")); d < 0 {
		t.Errorf("negative duration %v", d)
	}
}

func TestMiddleware(t *testing.T) {
	var seen Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	remote := New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set(Header, remote.Traceparent())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen.TraceID != remote.TraceID || seen.ParentID != remote.SpanID {
		t.Errorf("handler saw %+v, want child of %+v", seen, remote)
	}
	if rec.Header().Get(Header) == "" {
		t.Error("response missing traceparent")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen.TraceID == "" {
		t.Error("middleware should start a trace when none is sent")
	}
}

func TestUnaryClientInterceptor(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)
	var got []string
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		got = md.Get(Header)
		return nil
	}
	if err := UnaryClientInterceptor()(ctx, "/m", nil, nil, nil, invoker); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("traceparent metadata = %v", got)
	}
	parsed, ok := Parse(got[0])
	if !ok || parsed.TraceID != tc.TraceID {
		t.Errorf("propagated %q, want trace %s", got[0], tc.TraceID)
	}
}
