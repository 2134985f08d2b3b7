package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/audit"
	"github.com/shatzii/sentinel/internal/config"
)

// Start binds the listener and serves in the background. Bind errors are returned.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server is already running")
	}

	sc := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", sc.Host, sc.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       time.Duration(sc.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(sc.WriteTimeoutSec) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log := s.loggers.App
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if sc.TLSEnabled {
			err = s.httpServer.ServeTLS(ln, sc.TLSCertPath, sc.TLSKeyPath)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
		}
	}()
	s.running = true

	log.Info("sentinel started",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", sc.TLSEnabled),
		zap.String("store", s.cfg.Store.Backend),
		zap.Int("modules", len(s.catalog.Modules())),
	)
	s.writeAudit(audit.NewEvent(audit.EventServerStarted).
		WithAction("start").
		WithMetadata("addr", ln.Addr().String()).
		WithDescription("Sentinel started on %s", ln.Addr()))
	return nil
}

// Addr is the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains HTTP, stops the hub and closes every component.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	var errs []error
	if wasRunning {
		s.writeAudit(audit.NewEvent(audit.EventServerShutdown).
			WithAction("shutdown").
			WithDuration(time.Since(s.started)).
			WithDescription("Sentinel shutting down"))
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.cancel()
	s.wg.Wait()
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}
	errs = append(errs, s.closeComponents()...)
	return errors.Join(errs...)
}

func (s *Server) closeComponents() []error {
	var errs []error
	if s.alerts != nil {
		if err := s.alerts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alert store: %w", err))
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit log: %w", err))
		}
	}
	if s.loggers != nil {
		_ = s.loggers.App.Sync()
		if err := s.loggers.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close loggers: %w", err))
		}
	}
	return errs
}

// ApplyConfig applies the settings that can change without a restart. Only
// the log level is hot-reloaded; other changes are logged and need a restart.
func (s *Server) ApplyConfig(next *config.Config) {
	log := s.loggers.App
	if errs := next.Validate(); len(errs) > 0 {
		log.Warn("ignoring invalid configuration change", zap.Errors("errors", errs))
		return
	}
	prev := s.cfg.Logging.Level
	if next.Logging.Level != prev {
		if err := s.loggers.SetLevel(next.Logging.Level); err != nil {
			log.Warn("log level change failed", zap.Error(err))
			return
		}
		log.Info("log level changed", zap.String("from", prev), zap.String("to", next.Logging.Level))
		s.writeAudit(audit.NewEvent(audit.EventConfigChanged).
			WithAction("reload").
			WithResource("logging.level", "config").
			WithMetadata("from", prev).
			WithMetadata("to", next.Logging.Level).
			WithDescription("Log level changed from %s to %s", prev, next.Logging.Level))
		s.cfg.Logging.Level = next.Logging.Level
	}
}

// WatchConfig applies reloaded configs until ctx is done.
func (s *Server) WatchConfig(ctx context.Context, mgr config.ConfigManager) {
	updates := mgr.Watch(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case cfg := <-updates:
				s.ApplyConfig(&cfg)
			}
		}
	}()
}

func (s *Server) writeAudit(e *audit.Event) {
	if err := s.auditLog.Log(s.ctx, e); err != nil {
		s.loggers.App.Warn("audit write failed", zap.String("event", string(e.EventType)), zap.Error(err))
	}
}
