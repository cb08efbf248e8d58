// Package dbinvestigate implements the DB investigation adapter: a
// read-only Postgres probe over database/sql + github.com/lib/pq.
// Every identifier interpolated into a query is defended against
// injection with a whitelist regexp. Only the schema check and
// missing-index probe run; there is no data-anomaly probe.
package dbinvestigate

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	"github.com/sentinel-ops/incident-pilot/internal/models"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Request scopes a single investigation call.
type Request struct {
	Tables       []string
	Schemas      []string
	ErrorContext string
}

// Result bundles the three finding categories.
type Result struct {
	SchemaFindings      []models.DBFinding
	DataFindings        []models.DBFinding
	PerformanceFindings []models.DBFinding
}

// Adapter opens a read-only connection with a query timeout.
type Adapter struct {
	db      *sql.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// New opens a connection pool against a Postgres DSN. Callers should
// ensure the configured role has read-only privileges; this package
// does not attempt to enforce that itself.
func New(dsn string, timeout time.Duration, logger zerolog.Logger) (*Adapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errkind.NewConfiguration("failed to open db investigation connection", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{db: db, timeout: timeout, logger: logger.With().Str("component", "adapters.dbinvestigate").Logger()}, nil
}

// NewFromDB wraps an already-open *sql.DB, used by tests with sqlmock.
func NewFromDB(db *sql.DB, timeout time.Duration, logger zerolog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{db: db, timeout: timeout, logger: logger.With().Str("component", "adapters.dbinvestigate").Logger()}
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error { return a.db.Close() }

// Investigate runs the schema check and missing-index probe across the
// requested tables/schemas, tolerating per-table failures (each failed
// table contributes nothing, not an error for the whole call).
func (a *Adapter) Investigate(ctx context.Context, req Request) (Result, error) {
	for _, t := range req.Tables {
		if !identifierPattern.MatchString(t) {
			return Result{}, errkind.NewProgrammer(fmt.Sprintf("invalid table identifier %q", t), nil)
		}
	}
	for _, s := range req.Schemas {
		if !identifierPattern.MatchString(s) {
			return Result{}, errkind.NewProgrammer(fmt.Sprintf("invalid schema identifier %q", s), nil)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var result Result
	for _, table := range req.Tables {
		findings, err := a.checkNullableBusinessColumns(ctx, table)
		if err != nil {
			a.logger.Warn().Err(err).Str("table", table).Msg("schema check failed, continuing")
			continue
		}
		result.SchemaFindings = append(result.SchemaFindings, findings...)
	}

	for _, table := range req.Tables {
		findings, err := a.checkMissingIndexes(ctx, table)
		if err != nil {
			a.logger.Warn().Err(err).Str("table", table).Msg("missing-index probe failed, continuing")
			continue
		}
		result.PerformanceFindings = append(result.PerformanceFindings, findings...)
	}

	return result, nil
}

// checkNullableBusinessColumns flags non-primary-key columns that allow
// NULL, a common source of incident-triggering defensive-code bugs.
func (a *Adapter) checkNullableBusinessColumns(ctx context.Context, table string) ([]models.DBFinding, error) {
	query := fmt.Sprintf(`
		SELECT column_name
		FROM information_schema.columns
		WHERE table_name = '%s' AND is_nullable = 'YES'
	`, table)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errkind.NewDegradedExternal("nullable-column query failed", err)
	}
	defer rows.Close()

	var findings []models.DBFinding
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, errkind.NewDegradedExternal("scan nullable-column row", err)
		}
		findings = append(findings, models.DBFinding{
			Kind:     "nullable_business_column",
			Detail:   fmt.Sprintf("%s.%s allows NULL", table, column),
			Severity: models.FindingMedium,
		})
	}
	return findings, rows.Err()
}

// checkMissingIndexes flags foreign-key-shaped columns (ending in
// "_id") that have no supporting index, a common cause of slow queries
// that surface as latency incidents.
func (a *Adapter) checkMissingIndexes(ctx context.Context, table string) ([]models.DBFinding, error) {
	query := fmt.Sprintf(`
		SELECT c.column_name
		FROM information_schema.columns c
		WHERE c.table_name = '%s'
		  AND c.column_name LIKE '%%_id'
		  AND NOT EXISTS (
			SELECT 1 FROM pg_indexes i
			WHERE i.tablename = '%s' AND i.indexdef LIKE '%%' || c.column_name || '%%'
		  )
	`, table, table)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errkind.NewDegradedExternal("missing-index query failed", err)
	}
	defer rows.Close()

	var findings []models.DBFinding
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return nil, errkind.NewDegradedExternal("scan missing-index row", err)
		}
		findings = append(findings, models.DBFinding{
			Kind:     "missing_index",
			Detail:   fmt.Sprintf("%s.%s has no supporting index", table, column),
			Severity: models.FindingHigh,
		})
	}
	return findings, rows.Err()
}
