package middleware

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/auth"
	"github.com/shatzii/sentinel/internal/models"
)

// AlertSink receives alerts raised while serving requests.
type AlertSink interface {
	StoreAlert(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error)
}

// Counter is a module metric counter.
type Counter interface {
	Add(counter string, delta int64)
}

func add(c Counter, name string) {
	if c != nil {
		c.Add(name, 1)
	}
}

// requestAlert fills the provenance fields of an alert from r.
func requestAlert(r *http.Request, prefix string, typ models.AlertType, sev models.Severity, msg string, details map[string]any) models.SecurityAlert {
	user := "unknown"
	if s := auth.Subject(r.Context()); s != "" {
		user = s
	}
	now := time.Now().UTC()
	return models.SecurityAlert{
		ID:        fmt.Sprintf("%s-%d-%d", prefix, now.UnixMilli(), rand.IntN(1000)),
		Severity:  sev,
		Type:      typ,
		Message:   msg,
		Details:   details,
		Timestamp: now,
		User:      user,
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
		Status:    models.StatusActive,
	}
}

// raise stores a on a context detached from the request so a client hanging
// up does not lose the alert.
func raise(r *http.Request, sink AlertSink, log *zap.Logger, a models.SecurityAlert) {
	if sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if _, err := sink.StoreAlert(ctx, a); err != nil {
		log.Warn("failed to store request alert",
			zap.String("alert_id", a.ID), zap.String("type", string(a.Type)), zap.Error(err))
	}
}
