package metric

import (
	"math"
	"strconv"

	"go.uber.org/zap"
)

// RateField describes a stored rate column averaged across the period.
// Fraction marks columns stored as 0..1 fractions; those are scaled to
// percentages in the output. Rates are kept as fractions internally and
// converted exactly once here.
type RateField struct {
	Name     string
	Fraction bool
}

// AllTimeMode selects how an all-time-scoped column is reduced.
type AllTimeMode string

const (
	// AllTimeMax takes the maximum across rows (running totals such as
	// review counts, duplicated identically onto every daily row).
	AllTimeMax AllTimeMode = "max"
	// AllTimePositiveMean averages only rows with a positive value
	// (ratings, where 0 means "not reported" rather than a real score).
	AllTimePositiveMean AllTimeMode = "positive-mean"
)

// AllTimeField describes a column that carries an all-time or event-scoped
// value rather than a per-day delta. These must never enter the sum
// accumulator.
type AllTimeField struct {
	Name string
	Mode AllTimeMode
}

// DerivedRate describes a percentage computed from two period totals.
type DerivedRate struct {
	Name        string
	Numerator   string
	Denominator string
}

// ScoreTerm is one capped additive component of a source score. The term
// contributes value/Target of its Max points, clamped per-term before the
// final sum is clamped.
type ScoreTerm struct {
	Name   string
	Field  string
	From   ValueSource
	Target float64
	Max    float64
}

// ValueSource selects which reduced map a score term reads from.
type ValueSource string

const (
	FromTotal   ValueSource = "total"
	FromRate    ValueSource = "rate"
	FromAllTime ValueSource = "alltime"
)

// ConsistencyCheck flags rows where one column is positive while a related
// column is zero (e.g. reviews without a rating). Hits are logged as
// warnings, never errors.
type ConsistencyCheck struct {
	Positive string
	Zero     string
	Message  string
}

// Config parameterizes Aggregate for one data source.
type Config struct {
	Source        string
	SumFields     []string
	RateFields    []RateField
	AllTimeFields []AllTimeField
	DerivedRates  []DerivedRate
	ScoreTerms    []ScoreTerm
	TrendField    string
	Checks        []ConsistencyCheck
}

// Aggregate is the reduced result for one source over a date window.
type Aggregate struct {
	Source        string             `json:"source"`
	Days          int                `json:"days"`
	Totals        map[string]float64 `json:"totals"`
	Rates         map[string]float64 `json:"rates"`
	AllTime       map[string]float64 `json:"all_time,omitempty"`
	Score         int                `json:"calculated_score"`
	Trend         Trend              `json:"trend"`
	ChangePercent string             `json:"change_percent"`
}

// Reduce aggregates rows (already filtered to the requested window and
// ordered by date ascending) into a single Aggregate. Empty input yields an
// all-zero aggregate with a stable trend; malformed values coerce to zero.
// Reduce never fails.
func Reduce(rows []Row, cfg Config) Aggregate {
	agg := Aggregate{
		Source:        cfg.Source,
		Days:          len(rows),
		Totals:        make(map[string]float64, len(cfg.SumFields)),
		Rates:         make(map[string]float64, len(cfg.RateFields)+len(cfg.DerivedRates)),
		Trend:         TrendStable,
		ChangePercent: "0",
	}
	for _, f := range cfg.SumFields {
		agg.Totals[f] = 0
	}
	for _, rf := range cfg.RateFields {
		agg.Rates[rf.Name] = 0
	}
	for _, dr := range cfg.DerivedRates {
		agg.Rates[dr.Name] = 0
	}
	if len(cfg.AllTimeFields) > 0 {
		agg.AllTime = make(map[string]float64, len(cfg.AllTimeFields))
		for _, af := range cfg.AllTimeFields {
			agg.AllTime[af.Name] = 0
		}
	}

	if len(rows) == 0 {
		agg.Score = scoreOf(&agg, cfg)
		return agg
	}

	for _, f := range cfg.SumFields {
		var sum float64
		for _, r := range rows {
			sum += r.Field(f)
		}
		agg.Totals[f] = sum
	}

	for _, rf := range cfg.RateFields {
		var sum float64
		for _, r := range rows {
			sum += r.Field(rf.Name)
		}
		avg := sum / float64(len(rows))
		if rf.Fraction {
			avg *= 100
		}
		agg.Rates[rf.Name] = avg
	}

	for _, dr := range cfg.DerivedRates {
		var num, den float64
		for _, r := range rows {
			num += r.Field(dr.Numerator)
			den += r.Field(dr.Denominator)
		}
		if den > 0 {
			agg.Rates[dr.Name] = num / den * 100
		}
	}

	// All-time columns carry running totals duplicated onto every daily
	// row; summing them would multiply by the row count.
	for _, af := range cfg.AllTimeFields {
		switch af.Mode {
		case AllTimePositiveMean:
			var sum float64
			var n int
			for _, r := range rows {
				if v := r.Field(af.Name); v > 0 {
					sum += v
					n++
				}
			}
			if n > 0 {
				agg.AllTime[af.Name] = sum / float64(n)
			}
		default:
			var max float64
			for _, r := range rows {
				if v := r.Field(af.Name); v > max {
					max = v
				}
			}
			agg.AllTime[af.Name] = max
		}
	}

	runChecks(rows, cfg)

	agg.Trend, agg.ChangePercent = classifyTrend(rows, cfg.TrendField)
	agg.Score = scoreOf(&agg, cfg)
	return agg
}

// classifyTrend splits rows at floor(n/2) and compares the mean of the
// trend-defining field between halves. The ±5% boundary is exclusive.
func classifyTrend(rows []Row, field string) (Trend, string) {
	mid := len(rows) / 2
	if mid == 0 || field == "" {
		return TrendStable, "0"
	}

	first := meanOf(rows[:mid], field)
	second := meanOf(rows[mid:], field)
	if first <= 0 {
		return TrendStable, "0"
	}

	change := (second - first) * 100 / first
	trend := TrendStable
	switch {
	case change > trendThresholdPct:
		trend = TrendUp
	case change < -trendThresholdPct:
		trend = TrendDown
	}

	return trend, formatChange(math.Abs(change))
}

func meanOf(rows []Row, field string) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += r.Field(field)
	}
	return sum / float64(len(rows))
}

func formatChange(abs float64) string {
	if abs == 0 {
		return "0"
	}
	return strconv.FormatFloat(abs, 'f', 1, 64)
}

// scoreOf sums the per-term contributions, clamping each term to its Max
// before clamping the rounded total to [0,100].
func scoreOf(agg *Aggregate, cfg Config) int {
	var total float64
	for _, t := range cfg.ScoreTerms {
		total += termPoints(agg, t)
	}
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return int(math.Round(total))
}

func termPoints(agg *Aggregate, t ScoreTerm) float64 {
	if t.Target <= 0 || t.Max <= 0 {
		return 0
	}
	var v float64
	switch t.From {
	case FromRate:
		v = agg.Rates[t.Field]
	case FromAllTime:
		v = agg.AllTime[t.Field]
	default:
		v = agg.Totals[t.Field]
	}
	pts := v / t.Target * t.Max
	if pts > t.Max {
		pts = t.Max
	}
	if pts < 0 {
		pts = 0
	}
	return pts
}

func runChecks(rows []Row, cfg Config) {
	for _, c := range cfg.Checks {
		var pos, zero float64
		hit := false
		for _, r := range rows {
			p := r.Field(c.Positive)
			z := r.Field(c.Zero)
			if p > 0 && z == 0 {
				pos, zero = p, z
				hit = true
			}
		}
		if hit {
			zap.L().Warn("metric: data inconsistency",
				zap.String("source", cfg.Source),
				zap.String("check", c.Message),
				zap.Float64(c.Positive, pos),
				zap.Float64(c.Zero, zero),
			)
		}
	}
}
