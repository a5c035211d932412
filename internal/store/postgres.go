package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/practicepulse/pulse-cli/internal/db"
	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ga4_metrics (
	client_id       TEXT NOT NULL,
	date            DATE NOT NULL,
	total_users     BIGINT NOT NULL DEFAULT 0,
	new_users       BIGINT NOT NULL DEFAULT 0,
	sessions        BIGINT NOT NULL DEFAULT 0,
	page_views      BIGINT NOT NULL DEFAULT 0,
	conversions     BIGINT NOT NULL DEFAULT 0,
	engagement_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	bounce_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS gsc_metrics (
	client_id   TEXT NOT NULL,
	date        DATE NOT NULL,
	clicks      BIGINT NOT NULL DEFAULT 0,
	impressions BIGINT NOT NULL DEFAULT 0,
	ctr         DOUBLE PRECISION NOT NULL DEFAULT 0,
	position    DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS gbp_metrics (
	client_id          TEXT NOT NULL,
	date               DATE NOT NULL,
	location_id        TEXT NOT NULL DEFAULT '',
	total_views        BIGINT NOT NULL DEFAULT 0,
	total_searches     BIGINT NOT NULL DEFAULT 0,
	website_clicks     BIGINT NOT NULL DEFAULT 0,
	phone_calls        BIGINT NOT NULL DEFAULT 0,
	direction_requests BIGINT NOT NULL DEFAULT 0,
	total_reviews      BIGINT NOT NULL DEFAULT 0,
	average_rating     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date, location_id)
);

CREATE TABLE IF NOT EXISTS clarity_metrics (
	client_id           TEXT NOT NULL,
	date                DATE NOT NULL,
	total_sessions      BIGINT NOT NULL DEFAULT 0,
	dead_clicks         BIGINT NOT NULL DEFAULT 0,
	rage_clicks         BIGINT NOT NULL DEFAULT 0,
	bounce_rate         DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_scroll_depth    DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_engagement_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date)
);

CREATE TABLE IF NOT EXISTS pms_data (
	client_id              TEXT NOT NULL,
	date                   DATE NOT NULL,
	referral_source        TEXT NOT NULL DEFAULT '',
	patient_count          BIGINT NOT NULL DEFAULT 0,
	new_patients           BIGINT NOT NULL DEFAULT 0,
	appointments_scheduled BIGINT NOT NULL DEFAULT 0,
	appointments_completed BIGINT NOT NULL DEFAULT 0,
	production_total       DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (client_id, date, referral_source)
);

CREATE TABLE IF NOT EXISTS vitals_scores (
	client_id  TEXT PRIMARY KEY,
	score      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ai_insights (
	id           TEXT PRIMARY KEY,
	client_id    TEXT NOT NULL,
	report_month TEXT NOT NULL,
	generated_by TEXT NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	sections     JSONB NOT NULL,
	data_quality JSONB NOT NULL,
	UNIQUE (client_id, report_month)
);

CREATE INDEX IF NOT EXISTS idx_ai_insights_client_month ON ai_insights(client_id, report_month);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// MetricRows returns the daily rows for one source and client in the given
// window, ordered by date ascending.
func (s *PostgresStore) MetricRows(ctx context.Context, source, clientID string, from, to time.Time) ([]metric.Row, error) {
	st, ok := sourceTables[source]
	if !ok {
		return nil, eris.Errorf("store: unknown source %q", source)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE client_id = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC`,
		strings.Join(st.columns, ", "), st.name,
	)

	pgxRows, err := s.pool.Query(ctx, query, clientID, from, to)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query %s", st.name)
	}
	defer pgxRows.Close()

	var rows []metric.Row
	for pgxRows.Next() {
		values, err := pgxRows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "store: read %s row", st.name)
		}
		row := make(metric.Row, len(st.columns))
		for i, col := range st.columns {
			if i < len(values) {
				row[col] = values[i]
			}
		}
		rows = append(rows, row)
	}
	if err := pgxRows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: iterate %s", st.name)
	}
	return rows, nil
}

// IngestRows bulk-upserts daily rows for one source. Rows must carry
// client_id and date; unknown columns are dropped, missing ones become nil.
func (s *PostgresStore) IngestRows(ctx context.Context, source string, rows []metric.Row) (int64, error) {
	st, ok := sourceTables[source]
	if !ok {
		return 0, eris.Errorf("store: unknown source %q", source)
	}

	records := make([][]any, len(rows))
	for i, row := range rows {
		record := make([]any, len(st.columns))
		for j, col := range st.columns {
			record[j] = row[col]
		}
		records[i] = record
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        st.name,
		Columns:      st.columns,
		ConflictKeys: st.conflictKeys,
	}, records)
	if err != nil {
		return 0, eris.Wrapf(err, "store: ingest %s", source)
	}
	return n, nil
}

// PreviousScore returns the persisted composite score for a client.
func (s *PostgresStore) PreviousScore(ctx context.Context, clientID string) (float64, bool, error) {
	var score float64
	err := s.pool.QueryRow(ctx,
		`SELECT score FROM vitals_scores WHERE client_id = $1`, clientID,
	).Scan(&score)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrap(err, "store: get previous score")
	}
	return score, true, nil
}

// SetPreviousScore overwrites the persisted composite score for a client.
func (s *PostgresStore) SetPreviousScore(ctx context.Context, clientID string, score float64) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO vitals_scores (client_id, score, updated_at) VALUES ($1, $2, now())
ON CONFLICT (client_id) DO UPDATE SET score = EXCLUDED.score, updated_at = now()`,
		clientID, score,
	)
	if err != nil {
		return eris.Wrap(err, "store: set previous score")
	}
	return nil
}

// InsightReport returns the cached report for a client and month.
func (s *PostgresStore) InsightReport(ctx context.Context, clientID, month string) (*insight.Report, bool, error) {
	var (
		report      insight.Report
		sections    []byte
		dataQuality []byte
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, client_id, report_month, generated_by, generated_at, sections, data_quality
FROM ai_insights WHERE client_id = $1 AND report_month = $2`,
		clientID, month,
	).Scan(&report.ID, &report.ClientID, &report.ReportMonth, &report.GeneratedBy,
		&report.GeneratedAt, &sections, &dataQuality)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "store: get insight report")
	}

	if err := json.Unmarshal(sections, &report.Sections); err != nil {
		return nil, false, eris.Wrap(err, "store: decode report sections")
	}
	if err := json.Unmarshal(dataQuality, &report.DataQuality); err != nil {
		return nil, false, eris.Wrap(err, "store: decode report data quality")
	}
	return &report, true, nil
}

// UpsertInsightReport stores a report, replacing any existing report for the
// same client and month.
func (s *PostgresStore) UpsertInsightReport(ctx context.Context, report *insight.Report) error {
	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return eris.Wrap(err, "store: encode report sections")
	}
	dataQuality, err := json.Marshal(report.DataQuality)
	if err != nil {
		return eris.Wrap(err, "store: encode report data quality")
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO ai_insights (id, client_id, report_month, generated_by, generated_at, sections, data_quality)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (client_id, report_month) DO UPDATE SET
	id = EXCLUDED.id,
	generated_by = EXCLUDED.generated_by,
	generated_at = EXCLUDED.generated_at,
	sections = EXCLUDED.sections,
	data_quality = EXCLUDED.data_quality`,
		report.ID, report.ClientID, report.ReportMonth, report.GeneratedBy,
		report.GeneratedAt, sections, dataQuality,
	)
	if err != nil {
		return eris.Wrap(err, "store: upsert insight report")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
