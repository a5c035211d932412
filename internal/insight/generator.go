package insight

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/resilience"
)

// ReportStore persists monthly insight reports, keyed by (client, month).
type ReportStore interface {
	InsightReport(ctx context.Context, clientID, month string) (*Report, bool, error)
	UpsertInsightReport(ctx context.Context, report *Report) error
}

// Generator produces monthly reports through a provider fallback chain with
// a read-through cache: one report per client per calendar month unless
// forceRefresh is set.
type Generator struct {
	store    ReportStore
	primary  Provider // nil when no model is configured
	fallback Provider
	timeout  time.Duration
	now      func() time.Time
}

// NewGenerator creates a Generator. primary may be nil, in which case every
// report comes from the fallback provider.
func NewGenerator(store ReportStore, primary Provider, fallback Provider, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Generator{
		store:    store,
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Generate returns the report for the current calendar month, producing and
// storing one if needed. A model failure is logged and recovered through the
// rule-based path; it never surfaces to the caller.
func (g *Generator) Generate(ctx context.Context, clientID string, bundle Bundle, forceRefresh bool) (*Report, error) {
	month := MonthKey(g.now())

	if !forceRefresh {
		cached, ok, err := g.store.InsightReport(ctx, clientID, month)
		if err != nil {
			return nil, eris.Wrap(err, "insight: read cached report")
		}
		if ok {
			return cached, nil
		}
	}

	report := g.produce(ctx, clientID, bundle)
	report.ID = uuid.NewString()
	report.ClientID = clientID
	report.ReportMonth = month

	if err := g.store.UpsertInsightReport(ctx, report); err != nil {
		return nil, eris.Wrap(err, "insight: store report")
	}
	return report, nil
}

// produce runs the provider chain. The model gets one retry on transient
// failure inside a bounded timeout before the rules take over.
func (g *Generator) produce(ctx context.Context, clientID string, bundle Bundle) *Report {
	if g.primary != nil {
		modelCtx, cancel := context.WithTimeout(ctx, g.timeout)
		report, err := resilience.DoVal(modelCtx, resilience.RetryConfig{
			MaxAttempts: 2,
			OnRetry:     resilience.RetryLogger("insight", "generate"),
		}, func(ctx context.Context) (*Report, error) {
			return g.primary.Generate(ctx, clientID, bundle)
		})
		cancel()
		if err == nil {
			return report
		}
		zap.L().Warn("insight: model provider failed, using rule-based narrative",
			zap.String("client_id", clientID),
			zap.String("provider", g.primary.Name()),
			zap.Error(err),
		)
	}

	// The rule-based provider cannot fail.
	report, _ := g.fallback.Generate(ctx, clientID, bundle)
	return report
}
