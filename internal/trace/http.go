package trace

import "net/http"

// Middleware continues the caller's trace or starts a new one, and echoes
// the span in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := Parse(r.Header.Get(Header))
		if !ok {
			tc = New()
		}
		w.Header().Set(Header, tc.Traceparent())
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}
