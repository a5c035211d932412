package main

import (
	"context"
	"time"

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
	"github.com/practicepulse/pulse-cli/internal/store"
	"github.com/practicepulse/pulse-cli/internal/vitals"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	rows    map[string][]metric.Row // keyed by source
	scores  map[string]float64
	reports map[string]*insight.Report // keyed by clientID|month

	rowsErr error
}

func newMemStore() *memStore {
	return &memStore{
		rows:    make(map[string][]metric.Row),
		scores:  make(map[string]float64),
		reports: make(map[string]*insight.Report),
	}
}

func (m *memStore) MetricRows(_ context.Context, source, clientID string, from, to time.Time) ([]metric.Row, error) {
	if m.rowsErr != nil {
		return nil, m.rowsErr
	}
	var out []metric.Row
	for _, row := range m.rows[source] {
		if row["client_id"] != clientID {
			continue
		}
		date, _ := time.Parse("2006-01-02", row["date"].(string))
		if date.Before(from) || date.After(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memStore) IngestRows(_ context.Context, source string, rows []metric.Row) (int64, error) {
	m.rows[source] = append(m.rows[source], rows...)
	return int64(len(rows)), nil
}

func (m *memStore) PreviousScore(_ context.Context, clientID string) (float64, bool, error) {
	score, ok := m.scores[clientID]
	return score, ok, nil
}

func (m *memStore) SetPreviousScore(_ context.Context, clientID string, score float64) error {
	m.scores[clientID] = score
	return nil
}

func (m *memStore) InsightReport(_ context.Context, clientID, month string) (*insight.Report, bool, error) {
	report, ok := m.reports[clientID+"|"+month]
	return report, ok, nil
}

func (m *memStore) UpsertInsightReport(_ context.Context, report *insight.Report) error {
	m.reports[report.ClientID+"|"+report.ReportMonth] = report
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

var _ store.Store = (*memStore)(nil)

// newTestEnv wires an appEnv around a memStore with default weights and the
// rule-based narrative only.
func newTestEnv(st *memStore) *appEnv {
	return &appEnv{
		Store:     st,
		Scorer:    vitals.NewScorer(st, vitals.DefaultConfig()),
		Generator: insight.NewGenerator(st, nil, insight.NewRuleBasedProvider(), 0),
	}
}

// seedGA4 loads a month of healthy GA4 rows for clientID.
func seedGA4(st *memStore, clientID string) {
	for day := 1; day <= 30; day++ {
		st.rows[metric.SourceGA4] = append(st.rows[metric.SourceGA4], metric.Row{
			"client_id":       clientID,
			"date":            time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			"total_users":     50,
			"new_users":       12,
			"sessions":        64,
			"page_views":      180,
			"conversions":     2,
			"engagement_rate": 0.62,
			"bounce_rate":     0.38,
		})
	}
}
