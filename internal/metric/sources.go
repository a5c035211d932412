package metric

// Source names as they appear in API paths and store table lookups.
const (
	SourceGA4     = "ga4"
	SourceGSC     = "gsc"
	SourceGBP     = "gbp"
	SourceClarity = "clarity"
	SourcePMS     = "pms"
)

// SourceNames lists all known sources in composite-weight order.
var SourceNames = []string{SourceGA4, SourceGBP, SourceGSC, SourceClarity, SourcePMS}

// GA4Config aggregates Google Analytics 4 daily rows. Engagement and bounce
// rates are stored as fractions.
func GA4Config() Config {
	return Config{
		Source: SourceGA4,
		SumFields: []string{
			"total_users", "new_users", "sessions", "page_views", "conversions",
		},
		RateFields: []RateField{
			{Name: "engagement_rate", Fraction: true},
			{Name: "bounce_rate", Fraction: true},
		},
		TrendField: "total_users",
		ScoreTerms: []ScoreTerm{
			{Name: "engagement", Field: "engagement_rate", From: FromRate, Target: 60, Max: 35},
			{Name: "users", Field: "total_users", From: FromTotal, Target: 1000, Max: 25},
			{Name: "conversions", Field: "conversions", From: FromTotal, Target: 50, Max: 40},
		},
	}
}

// GSCConfig aggregates Google Search Console daily rows. CTR is stored as a
// fraction; average position is a plain average, not a percentage.
func GSCConfig() Config {
	return Config{
		Source:    SourceGSC,
		SumFields: []string{"clicks", "impressions"},
		RateFields: []RateField{
			{Name: "ctr", Fraction: true},
			{Name: "position", Fraction: false},
		},
		TrendField: "clicks",
		ScoreTerms: []ScoreTerm{
			{Name: "clicks", Field: "clicks", From: FromTotal, Target: 500, Max: 40},
			{Name: "visibility", Field: "impressions", From: FromTotal, Target: 10000, Max: 30},
			{Name: "ctr", Field: "ctr", From: FromRate, Target: 3, Max: 30},
		},
		Checks: []ConsistencyCheck{
			{Positive: "impressions", Zero: "clicks", Message: "impressions present with zero clicks"},
		},
	}
}

// GBPConfig aggregates Google Business Profile daily rows. Review count and
// average rating are all-time values duplicated across daily rows per
// location, so they are reduced by max and positive-mean rather than summed.
func GBPConfig() Config {
	return Config{
		Source: SourceGBP,
		SumFields: []string{
			"total_views", "total_searches", "website_clicks", "phone_calls", "direction_requests",
		},
		AllTimeFields: []AllTimeField{
			{Name: "total_reviews", Mode: AllTimeMax},
			{Name: "average_rating", Mode: AllTimePositiveMean},
		},
		TrendField: "total_views",
		ScoreTerms: []ScoreTerm{
			{Name: "views", Field: "total_views", From: FromTotal, Target: 2000, Max: 30},
			{Name: "calls", Field: "phone_calls", From: FromTotal, Target: 50, Max: 25},
			{Name: "rating", Field: "average_rating", From: FromAllTime, Target: 5, Max: 25},
			{Name: "reviews", Field: "total_reviews", From: FromAllTime, Target: 100, Max: 20},
		},
		Checks: []ConsistencyCheck{
			{Positive: "total_reviews", Zero: "average_rating", Message: "reviews present with zero rating"},
		},
	}
}

// ClarityConfig aggregates Microsoft Clarity daily rows. Scroll depth is
// already a percentage; bounce rate is a fraction.
func ClarityConfig() Config {
	return Config{
		Source: SourceClarity,
		SumFields: []string{
			"total_sessions", "dead_clicks", "rage_clicks",
		},
		RateFields: []RateField{
			{Name: "bounce_rate", Fraction: true},
			{Name: "avg_scroll_depth", Fraction: false},
			{Name: "avg_engagement_time", Fraction: false},
		},
		TrendField: "total_sessions",
		ScoreTerms: []ScoreTerm{
			{Name: "sessions", Field: "total_sessions", From: FromTotal, Target: 800, Max: 35},
			{Name: "scroll_depth", Field: "avg_scroll_depth", From: FromRate, Target: 60, Max: 25},
			{Name: "engagement_time", Field: "avg_engagement_time", From: FromRate, Target: 120, Max: 40},
		},
	}
}

// PMSConfig aggregates practice-management-system daily rows. Appointment
// completion rate is derived from period totals rather than averaged per day.
func PMSConfig() Config {
	return Config{
		Source: SourcePMS,
		SumFields: []string{
			"patient_count", "new_patients", "appointments_scheduled",
			"appointments_completed", "production_total",
		},
		DerivedRates: []DerivedRate{
			{Name: "completion_rate", Numerator: "appointments_completed", Denominator: "appointments_scheduled"},
		},
		TrendField: "patient_count",
		ScoreTerms: []ScoreTerm{
			{Name: "new_patients", Field: "new_patients", From: FromTotal, Target: 30, Max: 40},
			{Name: "completion", Field: "completion_rate", From: FromRate, Target: 90, Max: 30},
			{Name: "volume", Field: "patient_count", From: FromTotal, Target: 400, Max: 30},
		},
	}
}

// Sources returns the aggregation config for every known source.
func Sources() map[string]Config {
	return map[string]Config{
		SourceGA4:     GA4Config(),
		SourceGSC:     GSCConfig(),
		SourceGBP:     GBPConfig(),
		SourceClarity: ClarityConfig(),
		SourcePMS:     PMSConfig(),
	}
}

// Lookup returns the config for a source name, reporting whether it exists.
func Lookup(source string) (Config, bool) {
	cfg, ok := Sources()[source]
	return cfg, ok
}
