// Package requestid provides middleware that assigns every inbound request a
// correlation ID. Callers may supply their own via the X-Request-ID header;
// otherwise one is minted. The ID is echoed on the response and stored in the
// context for log correlation.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"arbiter/pkg/requestcontext"
)

// Header carries the correlation ID on requests and responses.
const Header = "X-Request-ID"

// Middleware injects the correlation ID into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(Header)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), rid)
		w.Header().Set(Header, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
