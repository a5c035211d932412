package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // driver

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
)

// SQLiteStore implements Store using a local SQLite database. It exists for
// local development and tests; deployments use Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLite(path string) (*SQLiteStore, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite tolerates one writer; avoid lock contention from pooling.
	database.SetMaxOpenConns(1)
	return &SQLiteStore{db: database}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ga4_metrics (
	client_id       TEXT NOT NULL,
	date            TEXT NOT NULL,
	total_users     INTEGER NOT NULL DEFAULT 0,
	new_users       INTEGER NOT NULL DEFAULT 0,
	sessions        INTEGER NOT NULL DEFAULT 0,
	page_views      INTEGER NOT NULL DEFAULT 0,
	conversions     INTEGER NOT NULL DEFAULT 0,
	engagement_rate REAL NOT NULL DEFAULT 0,
	bounce_rate     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS gsc_metrics (
	client_id   TEXT NOT NULL,
	date        TEXT NOT NULL,
	clicks      INTEGER NOT NULL DEFAULT 0,
	impressions INTEGER NOT NULL DEFAULT 0,
	ctr         REAL NOT NULL DEFAULT 0,
	position    REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS gbp_metrics (
	client_id          TEXT NOT NULL,
	date               TEXT NOT NULL,
	location_id        TEXT NOT NULL DEFAULT '',
	total_views        INTEGER NOT NULL DEFAULT 0,
	total_searches     INTEGER NOT NULL DEFAULT 0,
	website_clicks     INTEGER NOT NULL DEFAULT 0,
	phone_calls        INTEGER NOT NULL DEFAULT 0,
	direction_requests INTEGER NOT NULL DEFAULT 0,
	total_reviews      INTEGER NOT NULL DEFAULT 0,
	average_rating     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date, location_id)
);

CREATE TABLE IF NOT EXISTS clarity_metrics (
	client_id           TEXT NOT NULL,
	date                TEXT NOT NULL,
	total_sessions      INTEGER NOT NULL DEFAULT 0,
	dead_clicks         INTEGER NOT NULL DEFAULT 0,
	rage_clicks         INTEGER NOT NULL DEFAULT 0,
	bounce_rate         REAL NOT NULL DEFAULT 0,
	avg_scroll_depth    REAL NOT NULL DEFAULT 0,
	avg_engagement_time REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS pms_data (
	client_id              TEXT NOT NULL,
	date                   TEXT NOT NULL,
	referral_source        TEXT NOT NULL DEFAULT '',
	patient_count          INTEGER NOT NULL DEFAULT 0,
	new_patients           INTEGER NOT NULL DEFAULT 0,
	appointments_scheduled INTEGER NOT NULL DEFAULT 0,
	appointments_completed INTEGER NOT NULL DEFAULT 0,
	production_total       REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date, referral_source)
);

CREATE TABLE IF NOT EXISTS vitals_scores (
	client_id  TEXT PRIMARY KEY,
	score      REAL NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_insights (
	id           TEXT PRIMARY KEY,
	client_id    TEXT NOT NULL,
	report_month TEXT NOT NULL,
	generated_by TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	sections     TEXT NOT NULL,
	data_quality TEXT NOT NULL,
	UNIQUE (client_id, report_month)
);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// MetricRows returns the daily rows for one source and client, ordered by
// date ascending. Dates are compared as ISO-8601 strings.
func (s *SQLiteStore) MetricRows(ctx context.Context, source, clientID string, from, to time.Time) ([]metric.Row, error) {
	st, ok := sourceTables[source]
	if !ok {
		return nil, eris.Errorf("store: unknown source %q", source)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE client_id = ? AND date >= ? AND date <= ? ORDER BY date ASC`,
		strings.Join(st.columns, ", "), st.name,
	)

	sqlRows, err := s.db.QueryContext(ctx, query, clientID,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, eris.Wrapf(err, "store: query %s", st.name)
	}
	defer sqlRows.Close()

	var rows []metric.Row
	for sqlRows.Next() {
		values := make([]any, len(st.columns))
		ptrs := make([]any, len(st.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "store: read %s row", st.name)
		}

		row := make(metric.Row, len(st.columns))
		for i, col := range st.columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: iterate %s", st.name)
	}
	return rows, nil
}

// IngestRows upserts daily rows for one source inside a single transaction.
func (s *SQLiteStore) IngestRows(ctx context.Context, source string, rows []metric.Row) (int64, error) {
	st, ok := sourceTables[source]
	if !ok {
		return 0, eris.Errorf("store: unknown source %q", source)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin ingest tx")
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(st.columns)), ",")
	insertSQL := fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		st.name, strings.Join(st.columns, ", "), placeholders,
	)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare ingest for %s", st.name)
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		args := make([]any, len(st.columns))
		for i, col := range st.columns {
			args[i] = row[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: ingest row into %s", st.name)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit ingest")
	}
	return n, nil
}

// PreviousScore returns the persisted composite score for a client.
func (s *SQLiteStore) PreviousScore(ctx context.Context, clientID string) (float64, bool, error) {
	var score float64
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM vitals_scores WHERE client_id = ?`, clientID,
	).Scan(&score)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrap(err, "sqlite: get previous score")
	}
	return score, true, nil
}

// SetPreviousScore overwrites the persisted composite score for a client.
func (s *SQLiteStore) SetPreviousScore(ctx context.Context, clientID string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vitals_scores (client_id, score, updated_at) VALUES (?, ?, ?)
ON CONFLICT (client_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at`,
		clientID, score, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set previous score")
	}
	return nil
}

// InsightReport returns the cached report for a client and month.
func (s *SQLiteStore) InsightReport(ctx context.Context, clientID, month string) (*insight.Report, bool, error) {
	var (
		report      insight.Report
		generatedAt string
		sections    string
		dataQuality string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, client_id, report_month, generated_by, generated_at, sections, data_quality
FROM ai_insights WHERE client_id = ? AND report_month = ?`,
		clientID, month,
	).Scan(&report.ID, &report.ClientID, &report.ReportMonth, &report.GeneratedBy,
		&generatedAt, &sections, &dataQuality)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "sqlite: get insight report")
	}

	if ts, err := time.Parse(time.RFC3339, generatedAt); err == nil {
		report.GeneratedAt = ts
	}
	if err := json.Unmarshal([]byte(sections), &report.Sections); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: decode report sections")
	}
	if err := json.Unmarshal([]byte(dataQuality), &report.DataQuality); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: decode report data quality")
	}
	return &report, true, nil
}

// UpsertInsightReport stores a report, replacing any existing report for the
// same client and month.
func (s *SQLiteStore) UpsertInsightReport(ctx context.Context, report *insight.Report) error {
	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode report sections")
	}
	dataQuality, err := json.Marshal(report.DataQuality)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode report data quality")
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO ai_insights (id, client_id, report_month, generated_by, generated_at, sections, data_quality)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (client_id, report_month) DO UPDATE SET
	id = excluded.id,
	generated_by = excluded.generated_by,
	generated_at = excluded.generated_at,
	sections = excluded.sections,
	data_quality = excluded.data_quality`,
		report.ID, report.ClientID, report.ReportMonth, report.GeneratedBy,
		report.GeneratedAt.UTC().Format(time.RFC3339), string(sections), string(dataQuality),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert insight report")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
