// Package registry holds the catalog of security modules, runs their scans and
// routes remediation actions to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shatzii/sentinel/internal/models"
)

// scanConcurrency bounds how many module scans run at once.
const scanConcurrency = 4

// ScanReport is the raw output of Registry.Scan.
type ScanReport struct {
	ModulesScanned  int
	Vulnerabilities []models.Vulnerability
	Errors          []models.ModuleError
}

// Registry is an ordered, fixed set of modules.
type Registry struct {
	modules  []Module
	byID     map[string]Module
	breakers map[string]*gobreaker.CircuitBreaker
	log      *zap.Logger
}

// New builds a registry over modules, in the given order.
func New(log *zap.Logger, modules ...Module) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		modules:  modules,
		byID:     make(map[string]Module, len(modules)),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(modules)),
		log:      log,
	}
	for _, m := range modules {
		r.byID[m.ID()] = m
		r.breakers[m.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        m.ID(),
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Only module faults count toward tripping. An alert that cannot be
			// remediated says nothing about the module's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotApplicable) || errors.Is(err, ErrUnsupportedAction)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("remediation breaker state changed",
					zap.String("module", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
	}
	return r
}

// Modules returns the catalog in order.
func (r *Registry) Modules() []Module {
	return append([]Module(nil), r.modules...)
}

// Module looks up a module by id.
func (r *Registry) Module(id string) (Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Views snapshots every module for the dashboard.
func (r *Registry) Views() []models.ModuleView {
	out := make([]models.ModuleView, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, models.ModuleView{
			ID:          m.ID(),
			Name:        m.Name(),
			Description: m.Description(),
			Status:      m.Status(),
			Metrics:     m.Metrics(),
		})
	}
	return out
}

// Scan runs every module's checks concurrently. A failing module is recorded in
// the report and does not stop the others; only cancellation of ctx fails the scan.
func (r *Registry) Scan(ctx context.Context) (ScanReport, error) {
	type result struct {
		vulns []models.Vulnerability
		err   error
	}
	results := make([]result, len(r.modules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	var mu sync.Mutex
	for i, m := range r.modules {
		g.Go(func() error {
			vulns, err := m.Scan(gctx)
			mu.Lock()
			results[i] = result{vulns: vulns, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ScanReport{}, fmt.Errorf("scan aborted: %w", err)
	}

	report := ScanReport{ModulesScanned: len(r.modules)}
	for i, res := range results {
		report.Vulnerabilities = append(report.Vulnerabilities, res.vulns...)
		if res.err != nil {
			id := r.modules[i].ID()
			r.log.Warn("module scan failed", zap.String("module", id), zap.Error(res.err))
			report.Errors = append(report.Errors, models.ModuleError{ModuleID: id, Error: res.err.Error()})
		}
	}
	return report, nil
}

// RemediateVulnerability applies action through the module's circuit breaker.
func (r *Registry) RemediateVulnerability(ctx context.Context, moduleID string, req models.RemediationRequest) (models.RemediationResult, error) {
	m, ok := r.byID[moduleID]
	if !ok {
		return models.RemediationResult{}, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	out, err := r.breakers[moduleID].Execute(func() (interface{}, error) {
		return m.Remediate(ctx, req)
	})
	if err != nil {
		return models.RemediationResult{}, fmt.Errorf("remediate %s via %s: %w", req.Action, moduleID, err)
	}
	return out.(models.RemediationResult), nil
}
