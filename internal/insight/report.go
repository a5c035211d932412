// Package insight generates monthly narrative reports from aggregated
// metrics. A language-model provider produces the primary narrative; a
// deterministic rule-based provider stands in whenever the model is
// unconfigured, fails, or returns an unusable response.
package insight

import (
	"strings"
	"time"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

// Patient journey stages, in presentation order.
const (
	StageAwareness     = "Awareness"
	StageResearch      = "Research"
	StageConsideration = "Consideration"
	StageDecision      = "Decision"
	StageLoyalty       = "Loyalty"
	StageGrowth        = "Growth"
)

// Stages lists the six patient journey stages every report is structured by.
var Stages = []string{
	StageAwareness, StageResearch, StageConsideration,
	StageDecision, StageLoyalty, StageGrowth,
}

// Recommendation is a single actionable suggestion tied to observed data.
type Recommendation struct {
	Text               string `json:"text"`
	SupportingEvidence string `json:"supporting_evidence"`
	Impact             string `json:"impact"`
	Timeframe          string `json:"timeframe"`
}

// Section holds the narrative for one patient journey stage.
type Section struct {
	KeyWins         []string         `json:"key_wins"`
	Recommendations []Recommendation `json:"recommendations"`
	NextBestSteps   []string         `json:"next_best_steps"`
}

// DataQuality accounts for what the report could not see. Missing sources
// are always listed explicitly, never silently omitted.
type DataQuality struct {
	MissingSources []string `json:"missing_sources"`
	DataGaps       []string `json:"data_gaps,omitempty"`
	Anomalies      []string `json:"anomalies,omitempty"`
}

// Report is one monthly insight report for a client.
type Report struct {
	ID          string             `json:"id"`
	ClientID    string             `json:"client_id"`
	ReportMonth string             `json:"report_month"`
	GeneratedBy string             `json:"generated_by"`
	GeneratedAt time.Time          `json:"generated_at"`
	Sections    map[string]Section `json:"sections"`
	DataQuality DataQuality        `json:"data_quality"`
}

// Bundle carries the per-source aggregates available for a client, keyed by
// source name. Absent sources are simply absent from the map.
type Bundle map[string]*metric.Aggregate

// MissingSources returns the known sources absent from the bundle, in
// canonical order.
func (b Bundle) MissingSources() []string {
	var missing []string
	for _, src := range metric.SourceNames {
		if b[src] == nil {
			missing = append(missing, src)
		}
	}
	return missing
}

// MonthKey formats a time as the report-month cache key.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// sourceLabels are the display names used in narrative text.
var sourceLabels = map[string]string{
	metric.SourceGA4:     "Google Analytics",
	metric.SourceGSC:     "Search Console",
	metric.SourceGBP:     "Business Profile",
	metric.SourceClarity: "Clarity",
	metric.SourcePMS:     "practice management data",
}

// citesSource reports whether text mentions the display label or raw name of
// a source.
func citesSource(text, source string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(sourceLabels[source])) {
		return true
	}
	return strings.Contains(lower, strings.ToLower(source))
}
