package invocation

import (
	"net/http"
)

// Header is the HTTP header used to exchange invocation ids.
const Header = "X-Invocation-ID"

// Middleware begins an invocation for each request. A well-formed id supplied
// by the client in header is adopted instead of generating a new one. The id in
// use is echoed back in the response header.
func Middleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = Header
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if inbound := r.Header.Get(header); Valid(inbound) {
				ctx = With(ctx, inbound)
			} else {
				ctx = Begin(ctx)
			}

			w.Header().Set(header, Current(ctx))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
