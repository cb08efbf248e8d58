// Package store persists incidents and LLM usage records over
// modernc.org/sqlite (pure Go, no cgo), with schema migrations managed
// by github.com/pressly/goose/v3.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store persists incidents and LLM usage records.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if absent) the sqlite database at path and
// applies any pending migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errkind.NewConfiguration("failed to open sqlite store", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, errkind.NewConfiguration("failed to set goose dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, errkind.NewConfiguration("failed to run migrations", err)
	}

	return &Store{db: db, logger: logger.With().Str("component", "store").Logger()}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// CreateIncident persists a newly fired incident.
func (s *Store) CreateIncident(ctx context.Context, inc models.Incident) error {
	tags, err := json.Marshal(inc.Tags)
	if err != nil {
		return errkind.NewProgrammer("marshal incident tags", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, external_id, monitor_id, service_name, severity, status, investigation_tier,
			metric_name, metric_value, baseline_value, threshold_value, deviation_percentage,
			error_message, stack_trace, detected_at, resolved_at, created_at, updated_at, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inc.ID, inc.ExternalID, inc.MonitorID, inc.ServiceName, inc.Severity, inc.Status, inc.InvestigationTier,
		inc.MetricName, inc.MetricValue, inc.BaselineValue, inc.ThresholdValue, inc.DeviationPercentage,
		inc.ErrorMessage, inc.StackTrace, inc.DetectedAt, inc.ResolvedAt, inc.CreatedAt, inc.UpdatedAt, string(tags),
	)
	if err != nil {
		return errkind.NewDegradedExternal("create incident failed", err)
	}
	return nil
}

// GetRecentIncidents returns incidents for monitorID detected within
// the last withinMinutes, used by the detection scheduler's
// deduplication step.
func (s *Store) GetRecentIncidents(ctx context.Context, monitorID string, withinMinutes int) ([]models.Incident, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(withinMinutes) * time.Minute)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, monitor_id, service_name, severity, status, investigation_tier,
		       metric_name, metric_value, baseline_value, threshold_value, deviation_percentage,
		       error_message, stack_trace, detected_at, resolved_at, created_at, updated_at, tags
		FROM incidents
		WHERE monitor_id = ? AND detected_at >= ?
		ORDER BY detected_at DESC
	`, monitorID, cutoff)
	if err != nil {
		return nil, errkind.NewDegradedExternal("get recent incidents failed", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, errkind.NewDegradedExternal("scan incident row", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// GetActiveIncidentCount returns the number of incidents currently active.
func (s *Store) GetActiveIncidentCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents WHERE status = ?`, models.IncidentActive).Scan(&count)
	if err != nil {
		return 0, errkind.NewDegradedExternal("get active incident count failed", err)
	}
	return count, nil
}

// LLMUsageRecord is one analysis call's token usage and cost.
type LLMUsageRecord struct {
	IncidentID string
	ModelUsed  string
	Input      int
	Output     int
	Total      int
	CostUSD    float64
	DurationMs int64
	RecordedAt time.Time
}

// StoreLLMUsage persists a usage record. Persistence failure here is
// non-critical: callers log it and never let it fail the surrounding
// analysis.
func (s *Store) StoreLLMUsage(ctx context.Context, rec LLMUsageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (incident_id, model_used, input_tokens, output_tokens, total_tokens, cost_usd, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.IncidentID, rec.ModelUsed, rec.Input, rec.Output, rec.Total, rec.CostUSD, rec.DurationMs, rec.RecordedAt)
	if err != nil {
		return errkind.NewPersistenceNonCritical("store llm usage failed", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(rows rowScanner) (models.Incident, error) {
	var inc models.Incident
	var tags string
	var resolvedAt sql.NullTime

	err := rows.Scan(
		&inc.ID, &inc.ExternalID, &inc.MonitorID, &inc.ServiceName, &inc.Severity, &inc.Status, &inc.InvestigationTier,
		&inc.MetricName, &inc.MetricValue, &inc.BaselineValue, &inc.ThresholdValue, &inc.DeviationPercentage,
		&inc.ErrorMessage, &inc.StackTrace, &inc.DetectedAt, &resolvedAt, &inc.CreatedAt, &inc.UpdatedAt, &tags,
	)
	if err != nil {
		return models.Incident{}, err
	}
	if resolvedAt.Valid {
		inc.ResolvedAt = &resolvedAt.Time
	}
	_ = json.Unmarshal([]byte(tags), &inc.Tags)
	return inc, nil
}
