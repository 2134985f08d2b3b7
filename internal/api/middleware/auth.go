package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/auth"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/registry"
)

// ResetChecker reports accounts that must reset their password before acting.
type ResetChecker interface {
	MustReset(user string) bool
}

// AuthConfig configures AuthGuard.
type AuthConfig struct {
	// Secret enables the guard; empty disables it.
	Secret  string
	Resets  ResetChecker
	Alerts  AlertSink
	Auth    Counter // auth-security
	Session Counter // secure-session
	Log     *zap.Logger
}

// AuthGuard requires an HS256 bearer token on mutating requests. Reads pass
// through, picking up claims when a valid token is present. A failure returns
// 401 and raises a medium authentication alert.
func AuthGuard(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			mutating := r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions
			token := extractBearer(r)

			var (
				claims *auth.Claims
				err    error
			)
			if token != "" {
				claims, err = auth.ValidateToken(cfg.Secret, token)
			}
			if claims != nil {
				r = r.WithContext(auth.WithClaims(r.Context(), claims))
			}
			if !mutating {
				next.ServeHTTP(w, r)
				return
			}

			if claims == nil {
				reason := "missing bearer token"
				if token != "" {
					reason = "invalid bearer token"
					if errors.Is(err, jwt.ErrTokenExpired) {
						reason = "expired bearer token"
					}
					add(cfg.Session, registry.CounterInvalidTokens)
				}
				add(cfg.Auth, registry.CounterFailedAuth)
				metrics.MiddlewareBlocksTotal.WithLabelValues("unauthenticated").Inc()
				raise(r, cfg.Alerts, cfg.Log, requestAlert(r, "auth", models.TypeAuthentication, models.SeverityMedium,
					"Failed authentication for security API", map[string]any{
						"endpoint": r.URL.Path,
						"method":   r.Method,
						"reason":   reason,
					}))
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if cfg.Resets != nil && cfg.Resets.MustReset(claims.Subject) {
				metrics.MiddlewareBlocksTotal.WithLabelValues("password_reset").Inc()
				writeError(w, http.StatusForbidden, "Password reset required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	s := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):])
	}
	return ""
}
