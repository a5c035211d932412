package vitals

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

const (
	// neutralScore stands in for sources with no data for the period. A
	// missing integration is not a failing one.
	neutralScore = 50

	// defaultPreviousScore seeds monthlyChange for clients scored for the
	// first time.
	defaultPreviousScore = 80
)

// ScoreStore persists the most recent composite score per client so the next
// computation can diff against it. Last write wins; there is no versioning.
type ScoreStore interface {
	PreviousScore(ctx context.Context, clientID string) (float64, bool, error)
	SetPreviousScore(ctx context.Context, clientID string, score float64) error
}

// Score is the composite Vital Signs result.
type Score struct {
	Score         int            `json:"score"`
	Grade         string         `json:"grade"`
	MonthlyChange float64        `json:"monthly_change"`
	Trend         metric.Trend   `json:"trend"`
	Breakdown     map[string]int `json:"breakdown"`
}

// Scorer computes composite scores. The previous score is read from and then
// overwritten in the injected store as a side effect of computing, so two
// back-to-back computations for the same client yield a zero monthlyChange
// on the second call.
type Scorer struct {
	store ScoreStore
	cfg   Config
}

// NewScorer creates a Scorer with the given score store and weights.
func NewScorer(store ScoreStore, cfg Config) *Scorer {
	return &Scorer{store: store, cfg: cfg}
}

// Compute derives the composite score from the per-source scores present in
// scores. Absent sources default to the neutral 50.
func (s *Scorer) Compute(ctx context.Context, clientID string, scores map[string]int) (*Score, error) {
	weights := s.cfg.Weights()

	breakdown := make(map[string]int, len(metric.SourceNames))
	var weighted float64
	for _, src := range metric.SourceNames {
		v, ok := scores[src]
		if !ok {
			v = neutralScore
		}
		breakdown[src] = v
		weighted += weights[src] * float64(v)
	}
	current := int(math.Round(weighted))

	previous := float64(defaultPreviousScore)
	if prev, ok, err := s.store.PreviousScore(ctx, clientID); err != nil {
		return nil, eris.Wrap(err, "vitals: read previous score")
	} else if ok {
		previous = prev
	}

	if err := s.store.SetPreviousScore(ctx, clientID, float64(current)); err != nil {
		return nil, eris.Wrap(err, "vitals: persist score")
	}

	change := float64(current) - previous
	result := &Score{
		Score:         current,
		Grade:         GradeFor(current),
		MonthlyChange: change,
		Trend:         classify(change),
		Breakdown:     breakdown,
	}

	zap.L().Info("vitals: computed composite score",
		zap.String("client_id", clientID),
		zap.Int("score", current),
		zap.String("grade", result.Grade),
		zap.Float64("monthly_change", change),
	)

	return result, nil
}

// GradeFor maps a composite score to its letter grade. The boundaries are
// user-visible and exact.
func GradeFor(score int) string {
	switch {
	case score >= 97:
		return "A+"
	case score >= 93:
		return "A"
	case score >= 90:
		return "A-"
	case score >= 87:
		return "B+"
	case score >= 83:
		return "B"
	case score >= 80:
		return "B-"
	case score >= 77:
		return "C+"
	case score >= 73:
		return "C"
	case score >= 70:
		return "C-"
	case score >= 65:
		return "D"
	default:
		return "F"
	}
}

// classify mirrors the per-source trend thresholds: the ±5 boundary is
// exclusive.
func classify(change float64) metric.Trend {
	switch {
	case change > 5:
		return metric.TrendUp
	case change < -5:
		return metric.TrendDown
	default:
		return metric.TrendStable
	}
}
