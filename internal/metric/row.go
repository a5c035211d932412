// Package metric reduces daily metric rows for a single data source into
// period totals, derived rates, a bounded 0-100 score, and a trend
// classification. One generic Aggregate function is parameterized by a
// per-source Config so all sources share identical reduction semantics.
package metric

// Row is one daily metric row as returned by the store, keyed by column name.
// Values are loosely typed; read them through Number.
type Row map[string]any

// Field returns the numeric value of a column, coerced through Number.
func (r Row) Field(name string) float64 {
	return Number(r[name])
}

// Trend classifies period movement between the first and second half of a
// date window.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// trendThresholdPct is the exclusive boundary for up/down classification:
// a half-over-half change must exceed +5% (or fall below -5%) to leave stable.
const trendThresholdPct = 5.0
