package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ga4Rows(users ...float64) []Row {
	rows := make([]Row, len(users))
	for i, u := range users {
		rows[i] = Row{
			"total_users":     u,
			"sessions":        u * 2,
			"engagement_rate": 0.6,
			"conversions":     1,
		}
	}
	return rows
}

func TestReduceEmptyRows(t *testing.T) {
	for name, cfg := range Sources() {
		t.Run(name, func(t *testing.T) {
			agg := Reduce(nil, cfg)

			assert.Equal(t, TrendStable, agg.Trend)
			assert.Equal(t, "0", agg.ChangePercent)
			assert.Equal(t, 0, agg.Score)
			for f, v := range agg.Totals {
				assert.Zerof(t, v, "total %s", f)
			}
			for f, v := range agg.Rates {
				assert.Zerof(t, v, "rate %s", f)
			}
		})
	}
}

func TestReduceSumsAndRates(t *testing.T) {
	rows := []Row{
		{"total_users": 100, "sessions": 150, "engagement_rate": 0.5, "conversions": 2},
		{"total_users": 200, "sessions": 250, "engagement_rate": 0.7, "conversions": 4},
	}
	agg := Reduce(rows, GA4Config())

	assert.Equal(t, 300.0, agg.Totals["total_users"])
	assert.Equal(t, 400.0, agg.Totals["sessions"])
	assert.Equal(t, 6.0, agg.Totals["conversions"])
	// Fractions are averaged then scaled to percentages.
	assert.InDelta(t, 60.0, agg.Rates["engagement_rate"], 0.001)
}

func TestReduceMalformedValues(t *testing.T) {
	rows := []Row{
		{"clicks": "1,200", "impressions": "45%", "ctr": nil},
		{"clicks": nil, "impressions": "bogus", "ctr": "2%"},
	}
	agg := Reduce(rows, GSCConfig())

	assert.Equal(t, 1200.0, agg.Totals["clicks"])
	assert.Equal(t, 45.0, agg.Totals["impressions"])
	// ctr stored as fraction: (0 + 0.02)/2 * 100
	assert.InDelta(t, 1.0, agg.Rates["ctr"], 0.001)
}

func TestReduceAllTimeFieldsNotSummed(t *testing.T) {
	// Five days of GBP rows carrying the same running totals; the aggregate
	// must reproduce the literal values, not 5x sums or diluted averages.
	var rows []Row
	for i := 0; i < 5; i++ {
		rows = append(rows, Row{
			"total_views":    100,
			"total_reviews":  87,
			"average_rating": 4.6,
		})
	}
	agg := Reduce(rows, GBPConfig())

	assert.Equal(t, 87.0, agg.AllTime["total_reviews"])
	assert.InDelta(t, 4.6, agg.AllTime["average_rating"], 0.001)
	assert.Equal(t, 500.0, agg.Totals["total_views"])
}

func TestReduceRatingIgnoresZeroRows(t *testing.T) {
	rows := []Row{
		{"total_reviews": 80, "average_rating": 0},
		{"total_reviews": 82, "average_rating": 4.5},
		{"total_reviews": 85, "average_rating": 4.7},
	}
	agg := Reduce(rows, GBPConfig())

	assert.Equal(t, 85.0, agg.AllTime["total_reviews"])
	assert.InDelta(t, 4.6, agg.AllTime["average_rating"], 0.001)
}

func TestScoreBounded(t *testing.T) {
	// Extreme volumes must still saturate at 100.
	rows := []Row{
		{"total_users": 1e12, "engagement_rate": 99.0, "conversions": 1e9, "sessions": 1e12},
	}
	agg := Reduce(rows, GA4Config())
	assert.Equal(t, 100, agg.Score)

	// Negative garbage cannot push the score below zero.
	rows = []Row{{"total_users": -5000, "engagement_rate": -1, "conversions": -3}}
	agg = Reduce(rows, GA4Config())
	assert.GreaterOrEqual(t, agg.Score, 0)
	assert.LessOrEqual(t, agg.Score, 100)
}

func TestScoreTermCappedIndividually(t *testing.T) {
	// A wildly over-target engagement term contributes at most its own 35
	// points; it cannot subsidize the users and conversions terms.
	rows := []Row{{"total_users": 0, "engagement_rate": 50, "conversions": 0}}
	agg := Reduce(rows, GA4Config())
	assert.Equal(t, 35, agg.Score)
}

func TestTrendClassificationBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		firstHalf  float64
		secondHalf float64
		want       Trend
		wantChange string
	}{
		{"exactly +5 is stable", 100, 105, TrendStable, "5.0"},
		{"just above +5 is up", 100, 105.01, TrendUp, "5.0"},
		{"well above", 100, 150, TrendUp, "50.0"},
		{"exactly -5 is stable", 100, 95, TrendStable, "5.0"},
		{"below -5 is down", 100, 94, TrendDown, "6.0"},
		{"flat", 100, 100, TrendStable, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := ga4Rows(tt.firstHalf, tt.firstHalf, tt.secondHalf, tt.secondHalf)
			agg := Reduce(rows, GA4Config())
			assert.Equal(t, tt.want, agg.Trend)
			assert.Equal(t, tt.wantChange, agg.ChangePercent)
		})
	}
}

func TestTrendZeroFirstHalf(t *testing.T) {
	agg := Reduce(ga4Rows(0, 0, 50, 50), GA4Config())
	assert.Equal(t, TrendStable, agg.Trend)
	assert.Equal(t, "0", agg.ChangePercent)
}

func TestTrendSingleRow(t *testing.T) {
	agg := Reduce(ga4Rows(100), GA4Config())
	assert.Equal(t, TrendStable, agg.Trend)
	assert.Equal(t, "0", agg.ChangePercent)
}

func TestDerivedRate(t *testing.T) {
	rows := []Row{
		{"appointments_scheduled": 10, "appointments_completed": 9},
		{"appointments_scheduled": 10, "appointments_completed": 9},
	}
	agg := Reduce(rows, PMSConfig())
	assert.InDelta(t, 90.0, agg.Rates["completion_rate"], 0.001)

	agg = Reduce([]Row{{"appointments_scheduled": 0, "appointments_completed": 0}}, PMSConfig())
	assert.Zero(t, agg.Rates["completion_rate"])
}

func TestSourceConfigsScoreBudgets(t *testing.T) {
	for name, cfg := range Sources() {
		t.Run(name, func(t *testing.T) {
			require.NotEmpty(t, cfg.ScoreTerms)
			var sum float64
			for _, term := range cfg.ScoreTerms {
				assert.Positive(t, term.Max)
				assert.Positive(t, term.Target)
				sum += term.Max
			}
			assert.Equal(t, 100.0, sum, "score term budget must sum to 100")
			require.NotEmpty(t, cfg.TrendField)
		})
	}
}

func TestLookup(t *testing.T) {
	cfg, ok := Lookup(SourceGBP)
	require.True(t, ok)
	assert.Equal(t, SourceGBP, cfg.Source)

	_, ok = Lookup("facebook")
	assert.False(t, ok)
}
