package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

// memReportStore is an in-memory ReportStore for tests.
type memReportStore struct {
	reports map[string]*Report
	upserts int
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: make(map[string]*Report)}
}

func (m *memReportStore) key(clientID, month string) string { return clientID + "|" + month }

func (m *memReportStore) InsightReport(_ context.Context, clientID, month string) (*Report, bool, error) {
	r, ok := m.reports[m.key(clientID, month)]
	return r, ok, nil
}

func (m *memReportStore) UpsertInsightReport(_ context.Context, report *Report) error {
	m.upserts++
	m.reports[m.key(report.ClientID, report.ReportMonth)] = report
	return nil
}

// stubProvider returns a canned report or error.
type stubProvider struct {
	name   string
	report *Report
	err    error
	calls  int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(context.Context, string, Bundle) (*Report, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

func fullBundle() Bundle {
	b := make(Bundle, len(metric.SourceNames))
	rows := map[string][]metric.Row{
		metric.SourceGA4: {{"total_users": 1500, "engagement_rate": 0.65, "conversions": 40}},
		metric.SourceGSC: {{"clicks": 600, "impressions": 12000, "ctr": 0.04}},
		metric.SourceGBP: {{"total_views": 2500, "phone_calls": 60, "total_reviews": 90, "average_rating": 4.7}},
		metric.SourceClarity: {{
			"total_sessions": 900, "avg_scroll_depth": 70, "avg_engagement_time": 130,
		}},
		metric.SourcePMS: {{
			"patient_count": 420, "new_patients": 35,
			"appointments_scheduled": 100, "appointments_completed": 95,
			"production_total": 85000,
		}},
	}
	for src, cfg := range metric.Sources() {
		agg := metric.Reduce(rows[src], cfg)
		b[src] = &agg
	}
	return b
}

func TestBundleMissingSources(t *testing.T) {
	b := fullBundle()
	assert.Empty(t, b.MissingSources())

	delete(b, metric.SourceClarity)
	delete(b, metric.SourcePMS)
	assert.Equal(t, []string{metric.SourceClarity, metric.SourcePMS}, b.MissingSources())
}

func TestRuleBasedProviderFullBundle(t *testing.T) {
	p := NewRuleBasedProvider()
	report, err := p.Generate(context.Background(), "client-1", fullBundle())
	require.NoError(t, err)

	assert.Len(t, report.Sections, len(Stages))
	assert.Empty(t, report.DataQuality.MissingSources)

	// Strong metrics across the board land as key wins.
	assert.NotEmpty(t, report.Sections[StageAwareness].KeyWins)
	assert.NotEmpty(t, report.Sections[StageLoyalty].KeyWins)
}

func TestRuleBasedRecommendationsCiteLiteralValues(t *testing.T) {
	b := Bundle{}
	agg := metric.Reduce([]metric.Row{
		{"total_views": 100, "phone_calls": 3, "total_reviews": 12, "average_rating": 3.8},
	}, metric.GBPConfig())
	b[metric.SourceGBP] = &agg

	p := NewRuleBasedProvider()
	report, err := p.Generate(context.Background(), "client-1", b)
	require.NoError(t, err)

	loyalty := report.Sections[StageLoyalty]
	require.NotEmpty(t, loyalty.Recommendations)
	assert.Contains(t, loyalty.Recommendations[0].SupportingEvidence, "3.8")
	assert.Contains(t, loyalty.Recommendations[0].SupportingEvidence, "12")
}

func TestRuleBasedNeverCitesMissingSources(t *testing.T) {
	b := Bundle{}
	agg := metric.Reduce([]metric.Row{{"clicks": 10, "impressions": 5000, "ctr": 0.002}}, metric.GSCConfig())
	b[metric.SourceGSC] = &agg

	p := NewRuleBasedProvider()
	report, err := p.Generate(context.Background(), "client-1", b)
	require.NoError(t, err)

	require.Len(t, report.DataQuality.MissingSources, 4)
	assert.NoError(t, checkCitations(report))
}

func TestGeneratorCachesWithinMonth(t *testing.T) {
	store := newMemReportStore()
	g := NewGenerator(store, nil, NewRuleBasedProvider(), time.Second)
	ctx := context.Background()

	first, err := g.Generate(ctx, "client-1", fullBundle(), false)
	require.NoError(t, err)

	second, err := g.Generate(ctx, "client-1", fullBundle(), false)
	require.NoError(t, err)

	// Same month, no force: the cached report comes back unchanged.
	assert.Equal(t, 1, store.upserts)
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestGeneratorForceRefreshRegenerates(t *testing.T) {
	store := newMemReportStore()
	g := NewGenerator(store, nil, NewRuleBasedProvider(), time.Second)
	ctx := context.Background()

	first, err := g.Generate(ctx, "client-1", fullBundle(), false)
	require.NoError(t, err)

	refreshed, err := g.Generate(ctx, "client-1", fullBundle(), true)
	require.NoError(t, err)

	assert.Equal(t, 2, store.upserts)
	assert.NotEqual(t, first.ID, refreshed.ID)
}

func TestGeneratorFallsBackWhenModelFails(t *testing.T) {
	store := newMemReportStore()
	primary := &stubProvider{name: "llm:test", err: errors.New("model unreachable")}
	g := NewGenerator(store, primary, NewRuleBasedProvider(), time.Second)

	report, err := g.Generate(context.Background(), "client-1", fullBundle(), false)
	require.NoError(t, err)
	assert.Equal(t, "rules", report.GeneratedBy)
	assert.Equal(t, 1, primary.calls)
}

func TestGeneratorUsesPrimaryWhenHealthy(t *testing.T) {
	store := newMemReportStore()
	primary := &stubProvider{
		name: "llm:test",
		report: &Report{
			GeneratedBy: "llm:test",
			GeneratedAt: time.Now(),
			Sections:    map[string]Section{StageAwareness: {KeyWins: []string{"win"}}},
		},
	}
	g := NewGenerator(store, primary, NewRuleBasedProvider(), time.Second)

	report, err := g.Generate(context.Background(), "client-1", fullBundle(), false)
	require.NoError(t, err)
	assert.Equal(t, "llm:test", report.GeneratedBy)
	assert.NotEmpty(t, report.ID)
}

// scriptedChat returns canned completions.
type scriptedChat struct {
	response string
	err      error
	lastUser string
}

func (s *scriptedChat) Complete(_ context.Context, _, user string) (string, error) {
	s.lastUser = user
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func llmResponse(t *testing.T, sections map[string]Section) string {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"sections": sections})
	require.NoError(t, err)
	return string(raw)
}

func TestLLMProviderParsesResponse(t *testing.T) {
	chat := &scriptedChat{response: llmResponse(t, map[string]Section{
		StageAwareness: {KeyWins: []string{"Google Analytics traffic grew."}},
	})}
	p := NewLLMProvider(chat, "test-model")

	report, err := p.Generate(context.Background(), "client-1", fullBundle())
	require.NoError(t, err)
	assert.Equal(t, "llm:test-model", report.GeneratedBy)
	assert.Contains(t, report.Sections, StageAwareness)
}

func TestLLMProviderPromptContainsOnlyPresentMetrics(t *testing.T) {
	b := Bundle{}
	agg := metric.Reduce([]metric.Row{{"clicks": 600, "impressions": 12000, "ctr": 0.04}}, metric.GSCConfig())
	b[metric.SourceGSC] = &agg

	chat := &scriptedChat{response: llmResponse(t, map[string]Section{
		StageResearch: {KeyWins: []string{"Search Console clicks at 600."}},
	})}
	p := NewLLMProvider(chat, "test-model")

	_, err := p.Generate(context.Background(), "client-1", b)
	require.NoError(t, err)

	assert.Contains(t, chat.lastUser, "clicks=600")
	assert.NotContains(t, chat.lastUser, "Google Analytics (score")
	assert.Contains(t, chat.lastUser, "Missing sources (do not reference)")
}

func TestLLMProviderRejectsEmptySections(t *testing.T) {
	chat := &scriptedChat{response: `{"sections": {}}`}
	p := NewLLMProvider(chat, "test-model")

	_, err := p.Generate(context.Background(), "client-1", fullBundle())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty sections")
}

func TestLLMProviderRejectsUnparsableResponse(t *testing.T) {
	chat := &scriptedChat{response: "Here are your insights! Enjoy."}
	p := NewLLMProvider(chat, "test-model")

	_, err := p.Generate(context.Background(), "client-1", fullBundle())
	require.Error(t, err)
}

func TestLLMProviderRejectsMissingSourceCitations(t *testing.T) {
	b := Bundle{}
	agg := metric.Reduce([]metric.Row{{"clicks": 600, "impressions": 12000}}, metric.GSCConfig())
	b[metric.SourceGSC] = &agg

	chat := &scriptedChat{response: llmResponse(t, map[string]Section{
		StageLoyalty: {KeyWins: []string{"Business Profile rating is excellent."}},
	})}
	p := NewLLMProvider(chat, "test-model")

	_, err := p.Generate(context.Background(), "client-1", b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cites missing source")
}

func TestLLMProviderTrimsProseAroundJSON(t *testing.T) {
	inner := llmResponse(t, map[string]Section{
		StageGrowth: {NextBestSteps: []string{"Review production mix."}},
	})
	chat := &scriptedChat{response: fmt.Sprintf("Sure, here is the report:\n%s\nLet me know!", inner)}
	p := NewLLMProvider(chat, "test-model")

	report, err := p.Generate(context.Background(), "client-1", fullBundle())
	require.NoError(t, err)
	assert.Contains(t, report.Sections, StageGrowth)
}

func TestMonthKey(t *testing.T) {
	ts := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09", MonthKey(ts))
	assert.True(t, strings.HasPrefix(MonthKey(time.Now()), "20"))
}
