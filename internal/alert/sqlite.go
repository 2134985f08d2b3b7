package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/shatzii/sentinel/internal/models"
)

// migrations are applied in order and tracked in schema_versions.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS alerts (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL,
    severity        TEXT NOT NULL,
    type            TEXT NOT NULL,
    message         TEXT NOT NULL DEFAULT '',
    details         TEXT NOT NULL DEFAULT '{}',
    timestamp       TEXT NOT NULL,
    user            TEXT NOT NULL DEFAULT '',
    ip              TEXT NOT NULL DEFAULT '',
    user_agent      TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'active',
    acknowledged_by TEXT NOT NULL DEFAULT '',
    acknowledged_at TEXT NOT NULL DEFAULT '',
    resolved_by     TEXT NOT NULL DEFAULT '',
    resolved_at     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_alerts_id ON alerts(id);
`,
	},
}

const alertColumns = `seq, id, severity, type, message, details, timestamp, user, ip, user_agent,
    status, acknowledged_by, acknowledged_at, resolved_by, resolved_at`

// SQLiteStore persists the bounded alert log in SQLite so it survives restarts
// and can be shared by several processes on one host.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
	now      func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func NewSQLiteStore(path string, capacity int) (*SQLiteStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, capacity: capacity, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Store(ctx context.Context, a models.SecurityAlert) (models.SecurityAlert, error) {
	a = normalize(a, s.now)
	details, err := marshalDetails(a.Details)
	if err != nil {
		return models.SecurityAlert{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO alerts
        (id, severity, type, message, details, timestamp, user, ip, user_agent, status,
         acknowledged_by, acknowledged_at, resolved_by, resolved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Severity), string(a.Type), a.Message, details, formatTime(&a.Timestamp),
		a.User, a.IP, a.UserAgent, string(a.Status),
		a.AcknowledgedBy, formatTime(a.AcknowledgedAt), a.ResolvedBy, formatTime(a.ResolvedAt))
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("insert alert: %w", err)
	}

	// Eviction is by insertion order only, regardless of status.
	_, err = tx.ExecContext(ctx, `DELETE FROM alerts WHERE seq NOT IN
        (SELECT seq FROM alerts ORDER BY seq DESC LIMIT ?)`, s.capacity)
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("evict alerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.SecurityAlert{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]models.SecurityAlert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := []models.SecurityAlert{}
	for rows.Next() {
		_, a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.SecurityAlert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ? ORDER BY seq DESC LIMIT 1`, id)
	_, a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SecurityAlert{}, ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) Acknowledge(ctx context.Context, id, user string) (models.SecurityAlert, error) {
	return s.update(ctx, id, func(a *models.SecurityAlert, now time.Time) error {
		return a.Acknowledge(user, now)
	})
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, res models.Resolution) (models.SecurityAlert, error) {
	return s.update(ctx, id, func(a *models.SecurityAlert, now time.Time) error {
		return a.Resolve(res, now)
	})
}

func (s *SQLiteStore) update(ctx context.Context, id string, apply func(*models.SecurityAlert, time.Time) error) (models.SecurityAlert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ? ORDER BY seq DESC LIMIT 1`, id)
	seq, a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SecurityAlert{}, ErrNotFound
	}
	if err != nil {
		return models.SecurityAlert{}, err
	}
	if err := apply(&a, s.now().UTC()); err != nil {
		return models.SecurityAlert{}, err
	}
	details, err := marshalDetails(a.Details)
	if err != nil {
		return models.SecurityAlert{}, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE alerts SET status = ?, details = ?,
        acknowledged_by = ?, acknowledged_at = ?, resolved_by = ?, resolved_at = ?
        WHERE seq = ?`,
		string(a.Status), details, a.AcknowledgedBy, formatTime(a.AcknowledgedAt),
		a.ResolvedBy, formatTime(a.ResolvedAt), seq)
	if err != nil {
		return models.SecurityAlert{}, fmt.Errorf("update alert %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return models.SecurityAlert{}, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(r rowScanner) (int64, models.SecurityAlert, error) {
	var (
		seq                            int64
		a                              models.SecurityAlert
		severity, typ, status, details string
		ts, ackAt, resAt               string
	)
	err := r.Scan(&seq, &a.ID, &severity, &typ, &a.Message, &details, &ts, &a.User, &a.IP, &a.UserAgent,
		&status, &a.AcknowledgedBy, &ackAt, &a.ResolvedBy, &resAt)
	if err != nil {
		return 0, a, err
	}
	a.Severity = models.Severity(severity)
	a.Type = models.AlertType(typ)
	a.Status = models.AlertStatus(status)
	if details != "" && details != "{}" {
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return 0, a, fmt.Errorf("decode details of %s: %w", a.ID, err)
		}
	}
	if t := parseTime(ts); t != nil {
		a.Timestamp = *t
	}
	a.AcknowledgedAt = parseTime(ackAt)
	a.ResolvedAt = parseTime(resAt)
	return seq, a, nil
}

func marshalDetails(d map[string]any) (string, error) {
	if len(d) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode details: %w", err)
	}
	return string(b), nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}
