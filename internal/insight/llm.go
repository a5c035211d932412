package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

// ChatClient abstracts a chat-completion call: one system prompt, one user
// prompt, one text answer. Both the Anthropic SDK wrapper and the
// OpenAI-compatible HTTP client satisfy it through thin adapters.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLMProvider generates the narrative through a language model, demanding a
// strict JSON object back and schema-checking the result.
type LLMProvider struct {
	client ChatClient
	model  string
	now    func() time.Time
}

// NewLLMProvider creates a model-backed narrative provider. The model name
// is recorded on generated reports for attribution.
func NewLLMProvider(client ChatClient, model string) *LLMProvider {
	return &LLMProvider{client: client, model: model, now: time.Now}
}

// Name implements Provider.
func (p *LLMProvider) Name() string { return "llm:" + p.model }

const systemPrompt = `You are a marketing analyst for dental practices. You receive aggregated
marketing metrics and produce a monthly insight report.

Respond with a single JSON object and nothing else, shaped as:
{"sections": {"<stage>": {"key_wins": [..], "recommendations":
[{"text": "..", "supporting_evidence": "..", "impact": "..", "timeframe": ".."}],
"next_best_steps": [..]}}}

Stages are exactly: Awareness, Research, Consideration, Decision, Loyalty, Growth.
Cite only numbers that appear in the supplied metrics. Never invent values.
Never mention a data source that is listed as missing.`

// Generate implements Provider.
func (p *LLMProvider) Generate(ctx context.Context, clientID string, bundle Bundle) (*Report, error) {
	prompt := buildPrompt(bundle)

	raw, err := p.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, eris.Wrap(err, "insight: model call")
	}

	var parsed struct {
		Sections map[string]Section `json:"sections"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, eris.Wrap(err, "insight: parse model response")
	}
	if len(parsed.Sections) == 0 {
		return nil, eris.New("insight: model returned empty sections")
	}

	report := &Report{
		ClientID:    clientID,
		ReportMonth: MonthKey(p.now()),
		GeneratedBy: p.Name(),
		GeneratedAt: p.now(),
		Sections:    parsed.Sections,
		DataQuality: DataQuality{MissingSources: bundle.MissingSources()},
	}

	if err := checkCitations(report); err != nil {
		return nil, err
	}

	zap.L().Info("insight: model narrative generated",
		zap.String("client_id", clientID),
		zap.String("model", p.model),
		zap.Int("sections", len(parsed.Sections)),
	)
	return report, nil
}

// buildPrompt renders the present metrics as compact text. Absent sources
// are named so the model can acknowledge the gap without inventing data.
func buildPrompt(bundle Bundle) string {
	var b strings.Builder
	b.WriteString("Metrics for the current period:\n")

	for _, src := range metric.SourceNames {
		agg := bundle[src]
		if agg == nil {
			continue
		}
		fmt.Fprintf(&b, "\n%s (score %d/100, trend %s, change %s%%):\n",
			sourceLabels[src], agg.Score, agg.Trend, agg.ChangePercent)
		writeSorted(&b, agg.Totals, "%s=%.0f\n")
		writeSorted(&b, agg.Rates, "%s=%.2f\n")
		writeSorted(&b, agg.AllTime, "%s=%.2f\n")
	}

	if missing := bundle.MissingSources(); len(missing) > 0 {
		fmt.Fprintf(&b, "\nMissing sources (do not reference): %s\n", strings.Join(missing, ", "))
	}
	return b.String()
}

func writeSorted(b *strings.Builder, values map[string]float64, format string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  "+format, k, values[k])
	}
}

// extractJSON trims any prose the model wrapped around the JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

// checkCitations rejects reports whose narrative references a source the
// bundle does not contain.
func checkCitations(r *Report) error {
	for stage, section := range r.Sections {
		texts := make([]string, 0, len(section.KeyWins)+len(section.Recommendations)+len(section.NextBestSteps))
		texts = append(texts, section.KeyWins...)
		for _, rec := range section.Recommendations {
			texts = append(texts, rec.Text, rec.SupportingEvidence)
		}
		texts = append(texts, section.NextBestSteps...)

		for _, missing := range r.DataQuality.MissingSources {
			for _, text := range texts {
				if citesSource(text, missing) {
					return eris.Errorf("insight: %s section cites missing source %s", stage, missing)
				}
			}
		}
	}
	return nil
}
