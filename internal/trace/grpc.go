package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryClientInterceptor sends the current span as traceparent metadata.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		tc, ok := FromContext(ctx)
		if !ok {
			tc = New()
		}
		ctx = metadata.AppendToOutgoingContext(ctx, Header, tc.Child().Traceparent())
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
