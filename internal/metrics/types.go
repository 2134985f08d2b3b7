// Package metrics derives the security dashboard snapshot from alerts and
// module state. Prometheus instrumentation lives in internal/pkg/metrics.
package metrics

// TypeBucket is a dashboard column for alert types.
type TypeBucket string

const (
	BucketAuthentication TypeBucket = "authentication"
	BucketAuthorization  TypeBucket = "authorization"
	BucketInjection      TypeBucket = "injection"
	BucketRateLimit      TypeBucket = "rateLimit"
	BucketFileUpload     TypeBucket = "fileUpload"
	BucketAPIAbuse       TypeBucket = "apiAbuse"
	BucketHoneypot       TypeBucket = "honeypot"
	BucketSystem         TypeBucket = "system"
)

type AlertsByType struct {
	Authentication int `json:"authentication"`
	Authorization  int `json:"authorization"`
	Injection      int `json:"injection"`
	RateLimit      int `json:"rateLimit"`
	FileUpload     int `json:"fileUpload"`
	APIAbuse       int `json:"apiAbuse"`
	Honeypot       int `json:"honeypot"`
	System         int `json:"system"`
}

type AlertsBySeverity struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

type Incidents struct {
	Open          int `json:"open"`
	Mitigated     int `json:"mitigated"`
	Resolved      int `json:"resolved"`
	FalsePositive int `json:"falsePositive"`
}

type RecentEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Summary   string `json:"summary"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Source    string `json:"source,omitempty"`
}

type SecurityCheck struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // passed, warning, failed
	Description string `json:"description"`
}

type AttackSource struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int    `json:"count"`
}

type Anomalies struct {
	Total         int `json:"total"`
	Acknowledged  int `json:"acknowledged"`
	FalsePositive int `json:"falsePositive"`
}

// SystemStatus is sampled by the caller so Aggregate stays pure.
type SystemStatus struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Goroutines    int     `json:"goroutines"`
	MemoryUsageMB float64 `json:"memoryUsageMB"`
	ActiveModules int     `json:"activeModules"`
}

// SecurityMetrics is the dashboard snapshot.
type SecurityMetrics struct {
	ThreatLevel          int              `json:"threatLevel"`
	SecurityScore        int              `json:"securityScore"`
	SecurityGrade        string           `json:"securityGrade"`
	ActiveThreats        int              `json:"activeThreats"`
	MitigatedThreats     int              `json:"mitigatedThreats"`
	Incidents            Incidents        `json:"incidents"`
	AlertsByType         AlertsByType     `json:"alertsByType"`
	AlertsBySeverity     AlertsBySeverity `json:"alertsBySeverity"`
	RecentEvents         []RecentEvent    `json:"recentEvents"`
	AttackSources        []AttackSource   `json:"attackSources"`
	TopAttackedEndpoints []EndpointCount  `json:"topAttackedEndpoints"`
	Anomalies            Anomalies        `json:"anomalies"`
	SystemStatus         SystemStatus     `json:"systemStatus"`
	SecurityChecks       []SecurityCheck  `json:"securityChecks"`
}
