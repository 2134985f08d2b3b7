package metrics

import (
	"sort"
	"strings"

	"github.com/shatzii/sentinel/internal/models"
)

const (
	baseSecurityScore = 85
	recentEventLimit  = 5
	topListLimit      = 5
)

// typeBuckets classifies every AlertType. A test keeps it exhaustive.
var typeBuckets = map[models.AlertType]TypeBucket{
	models.TypeAuthentication:     BucketAuthentication,
	models.TypeAuthorization:      BucketAuthorization,
	models.TypeInjection:          BucketInjection,
	models.TypeSQLInjection:       BucketInjection,
	models.TypeXSS:                BucketInjection,
	models.TypeRateLimit:          BucketRateLimit,
	models.TypeFileUpload:         BucketFileUpload,
	models.TypeAPIKey:             BucketAPIAbuse,
	models.TypeAPIAbuse:           BucketAPIAbuse,
	models.TypeHoneypot:           BucketHoneypot,
	models.TypeSuspiciousActivity: BucketSystem,
	models.TypeVulnerability:      BucketSystem,
	models.TypeThreatIntel:        BucketSystem,
	models.TypeSystem:             BucketSystem,
}

// anomalyTypes are alert types that describe unusual client behavior.
var anomalyTypes = map[models.AlertType]bool{
	models.TypeSuspiciousActivity: true,
	models.TypeThreatIntel:        true,
	models.TypeHoneypot:           true,
}

// BucketFor returns the dashboard column for t.
func BucketFor(t models.AlertType) TypeBucket {
	if b, ok := typeBuckets[t]; ok {
		return b
	}
	return BucketSystem
}

// Input is everything Aggregate reads.
type Input struct {
	Alerts  []models.SecurityAlert // newest first
	Modules []models.ModuleView
	System  SystemStatus
}

// Aggregate builds the dashboard snapshot. Breakdown tables count every alert;
// the score and threat level count only active alerts.
func Aggregate(in Input) SecurityMetrics {
	m := SecurityMetrics{
		RecentEvents:         []RecentEvent{},
		AttackSources:        []AttackSource{},
		TopAttackedEndpoints: []EndpointCount{},
		SecurityChecks:       []SecurityCheck{},
		SystemStatus:         in.System,
	}

	var active AlertsBySeverity
	sources := map[string]int{}
	endpoints := map[string]int{}

	for _, a := range in.Alerts {
		m.AlertsByType.add(BucketFor(a.Type))
		m.AlertsBySeverity.add(a.Severity)

		switch {
		case a.IsActive():
			m.Incidents.Open++
			active.add(a.Severity)
		case a.Status == models.StatusAcknowledged:
			m.Incidents.Mitigated++
		case a.Status == models.StatusResolved:
			m.Incidents.Resolved++
			if IsFalsePositive(a) {
				m.Incidents.FalsePositive++
			}
		}

		if anomalyTypes[a.Type] {
			m.Anomalies.Total++
			if a.Status == models.StatusAcknowledged {
				m.Anomalies.Acknowledged++
			}
			if a.Status == models.StatusResolved && IsFalsePositive(a) {
				m.Anomalies.FalsePositive++
			}
		}
		if a.IP != "" {
			sources[a.IP]++
		}
		if ep := a.DetailString("endpoint"); ep != "" {
			endpoints[ep]++
		}
	}

	var failed, inactive int
	for _, mod := range in.Modules {
		check := SecurityCheck{Name: mod.Name, Status: "passed", Description: mod.Description}
		switch mod.Status {
		case models.ModuleFailed:
			failed++
			check.Status = "failed"
		case models.ModuleInactive:
			inactive++
			check.Status = "warning"
		}
		m.SecurityChecks = append(m.SecurityChecks, check)
	}

	m.SecurityScore = clamp(baseSecurityScore - 10*failed - 5*inactive -
		8*active.Critical - 3*active.High - active.Medium)
	m.ThreatLevel = clamp(15*active.Critical + 8*active.High + 3*active.Medium + active.Low +
		20*failed + 10*inactive)
	m.SecurityGrade = Grade(m.SecurityScore)
	m.ActiveThreats = m.Incidents.Open + m.Incidents.Mitigated
	m.MitigatedThreats = m.Incidents.Resolved

	for i, a := range in.Alerts {
		if i == recentEventLimit {
			break
		}
		m.RecentEvents = append(m.RecentEvents, RecentEvent{
			ID:        a.ID,
			Type:      string(a.Type),
			Severity:  strings.ToLower(string(a.Severity)),
			Summary:   a.Message,
			Timestamp: a.Timestamp.UnixMilli(),
			Source:    a.IP,
		})
	}
	for _, kv := range topN(sources) {
		m.AttackSources = append(m.AttackSources, AttackSource{Source: kv.key, Count: kv.count})
	}
	for _, kv := range topN(endpoints) {
		m.TopAttackedEndpoints = append(m.TopAttackedEndpoints, EndpointCount{Endpoint: kv.key, Count: kv.count})
	}
	return m
}

// IsFalsePositive reports a resolved alert flagged as a false positive, either
// explicitly or in its resolution text.
func IsFalsePositive(a models.SecurityAlert) bool {
	if a.Details == nil {
		return false
	}
	if fp, ok := a.Details["falsePositive"].(bool); ok && fp {
		return true
	}
	return strings.Contains(strings.ToLower(a.DetailString("resolution")), "false positive")
}

// Grade converts a 0-100 score to a letter.
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	}
	return "F"
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (t *AlertsByType) add(b TypeBucket) {
	switch b {
	case BucketAuthentication:
		t.Authentication++
	case BucketAuthorization:
		t.Authorization++
	case BucketInjection:
		t.Injection++
	case BucketRateLimit:
		t.RateLimit++
	case BucketFileUpload:
		t.FileUpload++
	case BucketAPIAbuse:
		t.APIAbuse++
	case BucketHoneypot:
		t.Honeypot++
	default:
		t.System++
	}
}

func (s *AlertsBySeverity) add(sev models.Severity) {
	switch sev {
	case models.SeverityCritical:
		s.Critical++
	case models.SeverityHigh:
		s.High++
	case models.SeverityMedium:
		s.Medium++
	case models.SeverityLow:
		s.Low++
	}
}

type keyCount struct {
	key   string
	count int
}

// topN returns the most frequent keys, ties broken alphabetically.
func topN(counts map[string]int) []keyCount {
	out := make([]keyCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, keyCount{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if len(out) > topListLimit {
		out = out[:topListLimit]
	}
	return out
}
