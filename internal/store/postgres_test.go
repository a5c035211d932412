package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresMetricRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT client_id, date, clicks, impressions, ctr, position FROM gsc_metrics`).
		WithArgs("clinic-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"client_id", "date", "clicks", "impressions", "ctr", "position"}).
			AddRow("clinic-1", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), int64(40), int64(900), 0.044, 8.2).
			AddRow("clinic-1", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), int64(55), int64(1100), 0.05, 7.9))

	rows, err := s.MetricRows(context.Background(), metric.SourceGSC, "clinic-1",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 40.0, rows[0].Field("clicks"))
	assert.Equal(t, 1100.0, rows[1].Field("impressions"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetricRowsUnknownSource(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.MetricRows(context.Background(), "facebook", "clinic-1", time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestPostgresPreviousScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT score FROM vitals_scores`).
		WithArgs("clinic-1").
		WillReturnRows(pgxmock.NewRows([]string{"score"}).AddRow(72.0))

	score, found, err := s.PreviousScore(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 72.0, score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPreviousScoreNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT score FROM vitals_scores`).
		WithArgs("new-clinic").
		WillReturnRows(pgxmock.NewRows([]string{"score"}))

	score, found, err := s.PreviousScore(context.Background(), "new-clinic")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetPreviousScore(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO vitals_scores .* ON CONFLICT \(client_id\) DO UPDATE SET`).
		WithArgs("clinic-1", 81.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetPreviousScore(context.Background(), "clinic-1", 81.0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsightReportRoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generatedAt := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

	sections := []byte(`{"Awareness":{"key_wins":["Traffic up"],"recommendations":[],"next_best_steps":[]}}`)
	dataQuality := []byte(`{"missing_sources":["pms"]}`)

	mock.ExpectQuery(`SELECT id, client_id, report_month, generated_by, generated_at, sections, data_quality`).
		WithArgs("clinic-1", "2026-08").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "client_id", "report_month", "generated_by", "generated_at", "sections", "data_quality",
		}).AddRow("rep-1", "clinic-1", "2026-08", "rules", generatedAt, sections, dataQuality))

	report, found, err := s.InsightReport(context.Background(), "clinic-1", "2026-08")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rep-1", report.ID)
	assert.Equal(t, generatedAt, report.GeneratedAt)
	assert.Equal(t, []string{"Traffic up"}, report.Sections[insight.StageAwareness].KeyWins)
	assert.Equal(t, []string{"pms"}, report.DataQuality.MissingSources)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsightReportNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, client_id, report_month`).
		WithArgs("clinic-1", "2026-07").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "client_id", "report_month", "generated_by", "generated_at", "sections", "data_quality",
		}))

	report, found, err := s.InsightReport(context.Background(), "clinic-1", "2026-07")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertInsightReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	report := &insight.Report{
		ID:          "rep-2",
		ClientID:    "clinic-1",
		ReportMonth: "2026-08",
		GeneratedBy: "rules",
		GeneratedAt: time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC),
		Sections: map[string]insight.Section{
			insight.StageGrowth: {KeyWins: []string{"Production steady"}},
		},
	}

	mock.ExpectExec(`INSERT INTO ai_insights .* ON CONFLICT \(client_id, report_month\) DO UPDATE SET`).
		WithArgs(report.ID, report.ClientID, report.ReportMonth, report.GeneratedBy,
			report.GeneratedAt, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertInsightReport(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableFor(t *testing.T) {
	name, ok := TableFor(metric.SourcePMS)
	assert.True(t, ok)
	assert.Equal(t, "pms_data", name)

	_, ok = TableFor("yelp")
	assert.False(t, ok)
}
