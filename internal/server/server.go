// Package server wires the Sentinel components into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/alert"
	"github.com/shatzii/sentinel/internal/api/middleware"
	"github.com/shatzii/sentinel/internal/api/rest"
	"github.com/shatzii/sentinel/internal/api/websocket"
	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/config"
	"github.com/shatzii/sentinel/internal/logs"
	"github.com/shatzii/sentinel/internal/metrics"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/logger"
	"github.com/shatzii/sentinel/internal/pkg/tracing"
	"github.com/shatzii/sentinel/internal/registry"
	"github.com/shatzii/sentinel/internal/scan"
)

// Server represents the Sentinel security service.
type Server struct {
	cfg *config.Config

	loggers  *logger.Loggers
	auditLog audit.Logger
	alerts   *alert.Service
	catalog  *registry.Catalog
	engine   *scan.Engine
	hub      *websocket.Hub
	handler  http.Handler

	trustedProxies []netip.Prefix

	httpServer      *http.Server
	listener        net.Listener
	shutdownTracing func(context.Context) error
	started         time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New builds every component from cfg. Call Shutdown to release files and the store.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	srvCtx, cancel := context.WithCancel(ctx)
	s := &Server{cfg: cfg, ctx: srvCtx, cancel: cancel, started: time.Now()}
	if err := s.initializeComponents(); err != nil {
		cancel()
		s.closeComponents()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return s, nil
}

func (s *Server) initializeComponents() error {
	lc := s.cfg.Logging

	// 1. Loggers
	loggers, err := logger.New(logger.Config{
		Level:        lc.Level,
		Format:       lc.Format,
		SecurityPath: lc.SecurityPath(),
		ErrorPath:    lc.ErrorPath(),
		MaxSize:      lc.MaxSizeMB,
		MaxBackups:   lc.MaxBackups,
		MaxAge:       lc.MaxAgeDays,
		Compress:     lc.Compress,
	})
	if err != nil {
		return fmt.Errorf("loggers: %w", err)
	}
	s.loggers = loggers
	log := loggers.App

	// 2. Audit log
	auditLog, err := audit.NewLogger(&audit.Config{
		Path:       lc.AuditPath(),
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	})
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	s.auditLog = auditLog

	// 3. Tracing
	s.shutdownTracing, err = tracing.Init(s.ctx, s.cfg.Tracing.ServiceName, s.cfg.Tracing.Endpoint, s.cfg.Tracing.SamplingRate)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	// 4. Alert store and service
	store, err := openStore(s.cfg.Store)
	if err != nil {
		return fmt.Errorf("alert store: %w", err)
	}
	s.alerts = alert.NewService(store, auditLog, loggers.Security, log)

	// 5. Module catalog and scan engine
	sec := s.cfg.Security
	s.catalog = registry.NewCatalog(registry.Options{
		AuthEnabled:        sec.JWTSecret != "",
		TLSEnabled:         s.cfg.Server.TLSEnabled,
		SecureHeaders:      sec.SecureHeaders,
		BlockThreats:       sec.BlockThreats,
		PersistentStore:    s.cfg.Store.Backend == "sqlite",
		MaxBodyBytes:       s.cfg.Server.MaxBodyBytes,
		RateLimitPerMinute: sec.RateLimitPerMinute,
		HoneypotPaths:      len(sec.HoneypotPaths),
		BlockDuration:      sec.BlockDuration(),
		DisabledModules:    sec.DisabledModules,
	}, log)
	s.engine = scan.NewEngine(s.catalog, s.alerts, auditLog, log,
		scan.WithTimeout(sec.ScanTimeout()),
		scan.WithCounter(s.catalog.Scanner))

	// 6. Alert stream
	s.hub = websocket.NewHub(s.ctx, log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()
	s.alerts.Subscribe(s.hub.Publish)

	s.trustedProxies, err = middleware.ParseTrustedProxies(s.cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	s.handler = s.buildHandler()
	return nil
}

func openStore(cfg config.StoreConfig) (alert.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		return alert.NewSQLiteStore(cfg.SQLitePath, cfg.Capacity)
	case "memory", "":
		return alert.NewMemoryStore(cfg.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildHandler assembles routes and the middleware chain. Request guards wrap
// the router so decoy and blocked requests never reach route matching.
func (s *Server) buildHandler() http.Handler {
	log := s.loggers.App
	sec := s.cfg.Security
	c := s.catalog

	lc := s.cfg.Logging
	h := rest.NewHandler(s.alerts, c, s.engine,
		logs.NewReader(lc.SecurityPath(), lc.AuditPath(), lc.ErrorPath()), s.auditLog, log)
	h.Stream = websocket.NewHandler(s.hub, s.cfg.Server.AllowedOrigins).ServeWS
	h.System = s.systemStatus
	h.EnableTestData = sec.EnableTestData

	router := mux.NewRouter()
	router.Use(middleware.StructuredLog(log))
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api/security").Subrouter()
	if c.Enabled(registry.ModuleAuthSecurity) {
		api.Use(middleware.AuthGuard(middleware.AuthConfig{
			Secret:  sec.JWTSecret,
			Resets:  c.Auth,
			Alerts:  s.alerts,
			Auth:    c.Auth,
			Session: c.SecureSession,
			Log:     log,
		}))
	}
	rest.SetupRoutes(api, h)

	var handler http.Handler = router
	if c.Enabled(registry.ModuleHoneypot) {
		handler = middleware.Honeypot(sec.HoneypotPaths, s.alerts, c.Honeypot, log)(handler)
	}
	if c.Enabled(registry.ModuleRateLimiter) {
		handler = middleware.RateLimit(middleware.RateLimitConfig{
			PerMinute:  sec.RateLimitPerMinute,
			Burst:      sec.RateLimitBurst,
			MaxClients: sec.RateLimitClients,
			Watchlist:  c.RateLimiter,
			Alerts:     s.alerts,
			Counter:    c.RateLimiter,
			Log:        log,
		})(handler)
	}
	if c.Enabled(registry.ModuleThreatIntel) || c.Enabled(registry.ModuleIPBlocker) {
		handler = middleware.ThreatDetector(middleware.ThreatConfig{
			Block:     sec.BlockThreats,
			Blocklist: c.IPBlocker,
			Alerts:    s.alerts,
			Counters: middleware.ThreatCounters{
				Injection: c.DBMonitor,
				XSS:       c.ContentSecurity,
				Threats:   c.ThreatIntel,
				Blocked:   c.IPBlocker,
			},
			Log: log,
		})(handler)
	}
	handler = middleware.MaxBodySize(s.cfg.Server.MaxBodyBytes, c.FileGuard)(handler)
	if sec.SecureHeaders && c.Enabled(registry.ModuleContentSecurity) {
		handler = middleware.SecureHeaders(s.cfg.Server.TLSEnabled)(handler)
	}
	handler = middleware.ProxyHeaders(s.trustedProxies)(handler)
	handler = middleware.Recovery(log)(handler)
	handler = middleware.RequestID(handler)

	handler = cors.New(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.ResponseRequestIDHeader},
		ExposedHeaders:   []string{middleware.ResponseRequestIDHeader, "Retry-After"},
		AllowCredentials: true,
	}).Handler(handler)

	return tracing.Middleware("sentinel.http")(handler)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Catalog exposes the module catalog.
func (s *Server) Catalog() *registry.Catalog { return s.catalog }

// Alerts exposes the alert service.
func (s *Server) Alerts() *alert.Service { return s.alerts }

// Logger returns the application logger.
func (s *Server) Logger() *zap.Logger { return s.loggers.App }

func (s *Server) systemStatus() metrics.SystemStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	active := 0
	for _, v := range s.catalog.Views() {
		if v.Status == models.ModuleActive {
			active++
		}
	}
	return metrics.SystemStatus{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryUsageMB: float64(ms.HeapAlloc) / (1 << 20),
		ActiveModules: active,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"sentinel"}`))
}
