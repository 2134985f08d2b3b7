package middleware

import (
	"net/http"

	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/registry"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// MaxBodySize rejects declared-oversize bodies with 413 and caps the rest with
// http.MaxBytesReader. Rejections are counted on c.
func MaxBodySize(max int64, c Counter) func(http.Handler) http.Handler {
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > max {
				add(c, registry.CounterOversizedBodies)
				metrics.MiddlewareBlocksTotal.WithLabelValues("body_too_large").Inc()
				writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
