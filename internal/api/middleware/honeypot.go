package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/registry"
)

// Honeypot answers decoy paths with 404 and raises a medium honeypot alert.
// Matching ignores case and a trailing slash.
func Honeypot(paths []string, sink AlertSink, c Counter, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	decoys := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			decoys[p] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := decoys[normalizePath(r.URL.Path)]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			add(c, registry.CounterHoneypotHits)
			metrics.MiddlewareBlocksTotal.WithLabelValues("honeypot").Inc()
			raise(r, sink, log, requestAlert(r, "honey", models.TypeHoneypot, models.SeverityMedium,
				"Honeypot endpoint accessed", map[string]any{
					"endpoint": r.URL.Path,
					"method":   r.Method,
				}))
			writeError(w, http.StatusNotFound, "Not found")
		})
	}
}

func normalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
