// Package store persists daily metric rows, the per-client previous
// composite score, and cached monthly insight reports. Two backends exist:
// Postgres for deployments and SQLite for local work.
package store

import (
	"context"
	"time"

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
)

// Store is the persistence interface for the analytics engine. It satisfies
// vitals.ScoreStore and insight.ReportStore. Daily metric rows are written
// only by ingestion; the aggregation and scoring paths read them.
type Store interface {
	// Metric rows
	MetricRows(ctx context.Context, source, clientID string, from, to time.Time) ([]metric.Row, error)
	IngestRows(ctx context.Context, source string, rows []metric.Row) (int64, error)

	// Previous composite score (last write wins, no versioning)
	PreviousScore(ctx context.Context, clientID string) (float64, bool, error)
	SetPreviousScore(ctx context.Context, clientID string, score float64) error

	// Monthly insight reports
	InsightReport(ctx context.Context, clientID, month string) (*insight.Report, bool, error)
	UpsertInsightReport(ctx context.Context, report *insight.Report) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// sourceTable describes the backing table for one data source.
type sourceTable struct {
	name         string
	columns      []string
	conflictKeys []string
}

// sourceTables maps source names to their tables. Column order doubles as
// the ingest column order.
var sourceTables = map[string]sourceTable{
	metric.SourceGA4: {
		name: "ga4_metrics",
		columns: []string{
			"client_id", "date", "total_users", "new_users", "sessions",
			"page_views", "conversions", "engagement_rate", "bounce_rate",
		},
		conflictKeys: []string{"client_id", "date"},
	},
	metric.SourceGSC: {
		name: "gsc_metrics",
		columns: []string{
			"client_id", "date", "clicks", "impressions", "ctr", "position",
		},
		conflictKeys: []string{"client_id", "date"},
	},
	metric.SourceGBP: {
		name: "gbp_metrics",
		columns: []string{
			"client_id", "date", "location_id", "total_views", "total_searches",
			"website_clicks", "phone_calls", "direction_requests",
			"total_reviews", "average_rating",
		},
		conflictKeys: []string{"client_id", "date", "location_id"},
	},
	metric.SourceClarity: {
		name: "clarity_metrics",
		columns: []string{
			"client_id", "date", "total_sessions", "dead_clicks", "rage_clicks",
			"bounce_rate", "avg_scroll_depth", "avg_engagement_time",
		},
		conflictKeys: []string{"client_id", "date"},
	},
	metric.SourcePMS: {
		name: "pms_data",
		columns: []string{
			"client_id", "date", "referral_source", "patient_count", "new_patients",
			"appointments_scheduled", "appointments_completed", "production_total",
		},
		conflictKeys: []string{"client_id", "date", "referral_source"},
	},
}

// TableFor returns the backing table name for a source, reporting whether
// the source is known.
func TableFor(source string) (string, bool) {
	st, ok := sourceTables[source]
	return st.name, ok
}
