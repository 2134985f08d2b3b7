package middleware

import (
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
	"github.com/shatzii/sentinel/internal/registry"
)

const (
	defaultRatePerMinute = 120
	defaultRateClients   = 10000
	// one rate_limit alert per client per window
	rateAlertWindow = time.Minute
)

// Watchlist reports clients under increased monitoring. Watched clients get
// half the normal budget.
type Watchlist interface {
	Watched(ip string) bool
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
	// MaxClients bounds the number of tracked clients; least recently seen are evicted.
	MaxClients int
	Watchlist  Watchlist
	Alerts     AlertSink
	Counter    Counter
	Log        *zap.Logger
}

type rateLimiter struct {
	cfg      RateLimitConfig
	limiters *lru.Cache[string, *rate.Limiter]
	alerted  *expirable.LRU[string, struct{}]
}

// RateLimit returns middleware that limits requests per client IP. /health and
// /metrics are exempt. Limited requests get 429 with Retry-After and raise a
// medium rate_limit alert at most once per client per minute.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = defaultRatePerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.PerMinute
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaultRateClients
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	limiters, _ := lru.New[string, *rate.Limiter](cfg.MaxClients)
	rl := &rateLimiter{
		cfg:      cfg,
		limiters: limiters,
		alerted:  expirable.NewLRU[string, struct{}](cfg.MaxClients, nil, rateAlertWindow),
	}
	return rl.middleware
}

func (l *rateLimiter) limiter(ip string) (*rate.Limiter, int) {
	perMin, burst, key := l.cfg.PerMinute, l.cfg.Burst, ip
	if l.cfg.Watchlist != nil && l.cfg.Watchlist.Watched(ip) {
		perMin, burst, key = max(perMin/2, 1), max(burst/2, 1), "watch:"+ip
	}
	if lim, ok := l.limiters.Get(key); ok {
		return lim, perMin
	}
	lim := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst)
	// a concurrent first request may have created one already
	if prev, ok, _ := l.limiters.PeekOrAdd(key, lim); ok {
		return prev, perMin
	}
	return lim, perMin
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		ip := ClientIP(r)
		limiter, perMin := l.limiter(ip)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMin))

		reservation := limiter.Reserve()
		if delay := reservation.Delay(); !reservation.OK() || delay > 0 {
			reservation.Cancel()
			retryAfter := int(delay.Seconds()) + 1
			if !reservation.OK() || retryAfter > 60 {
				retryAfter = 60
			}
			l.reject(w, r, ip, perMin, retryAfter)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(int(limiter.Tokens()), 0)))
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) reject(w http.ResponseWriter, r *http.Request, ip string, perMin, retryAfter int) {
	add(l.cfg.Counter, registry.CounterLimitedRequests)
	metrics.MiddlewareBlocksTotal.WithLabelValues("rate_limit").Inc()

	if !l.alerted.Contains(ip) {
		l.alerted.Add(ip, struct{}{})
		raise(r, l.cfg.Alerts, l.cfg.Log, requestAlert(r, "rate", models.TypeRateLimit, models.SeverityMedium,
			"API rate limit exceeded", map[string]any{
				"endpoint": r.URL.Path,
				"method":   r.Method,
				"limit":    perMin,
			}))
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(retryAfter)*time.Second).Unix(), 10))
	writeError(w, http.StatusTooManyRequests, "Too many requests. Please retry later.")
}
