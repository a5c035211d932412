package main

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
	"github.com/practicepulse/pulse-cli/internal/store"
	"github.com/practicepulse/pulse-cli/internal/vitals"
	anthropicpkg "github.com/practicepulse/pulse-cli/pkg/anthropic"
	"github.com/practicepulse/pulse-cli/pkg/openaichat"
)

// appEnv holds the initialized store and engines shared by the commands.
type appEnv struct {
	Store     store.Store
	Scorer    *vitals.Scorer
	Generator *insight.Generator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for the given mode, opens the store, runs
// migrations, and wires the scorer and insight generator. Callers should
// defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	primary := initProvider()
	generator := insight.NewGenerator(st, primary, insight.NewRuleBasedProvider(),
		time.Duration(cfg.Insight.TimeoutSecs)*time.Second)

	return &appEnv{
		Store:     st,
		Scorer:    vitals.NewScorer(st, cfg.Vitals),
		Generator: generator,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initProvider builds the model-backed narrative provider, or nil when the
// rule-based path should carry every report.
func initProvider() insight.Provider {
	switch cfg.Insight.Provider {
	case "anthropic":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		completer := anthropicpkg.NewCompleter(client, cfg.Anthropic.Model,
			anthropicpkg.WithMaxTokens(cfg.Anthropic.MaxTokens))
		return insight.NewLLMProvider(completer, cfg.Anthropic.Model)
	case "openai":
		client := openaichat.NewClient(cfg.OpenAI.Key,
			openaichat.WithBaseURL(cfg.OpenAI.BaseURL),
			openaichat.WithModel(cfg.OpenAI.Model),
			openaichat.WithRateLimit(float64(cfg.OpenAI.RequestsPerMinute)/60),
		)
		return insight.NewLLMProvider(client, cfg.OpenAI.Model)
	default:
		zap.L().Info("no model provider configured, reports use the rule-based narrative")
		return nil
	}
}

// collectBundle aggregates all five sources concurrently for one client and
// window. A source with no rows in the window is left out of the bundle.
func collectBundle(ctx context.Context, st store.Store, clientID string, from, to time.Time) (insight.Bundle, error) {
	bundle := make(insight.Bundle, len(metric.SourceNames))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, source := range metric.SourceNames {
		g.Go(func() error {
			rows, err := st.MetricRows(ctx, source, clientID, from, to)
			if err != nil {
				return eris.Wrapf(err, "aggregate %s", source)
			}
			if len(rows) == 0 {
				return nil
			}
			srcCfg, _ := metric.Lookup(source)
			agg := metric.Reduce(rows, srcCfg)
			mu.Lock()
			bundle[source] = &agg
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// sourceScores extracts the per-source health scores from a bundle.
func sourceScores(bundle insight.Bundle) map[string]int {
	scores := make(map[string]int, len(bundle))
	for source, agg := range bundle {
		scores[source] = agg.Score
	}
	return scores
}

// parseWindow resolves the --start/--end flags. An empty window defaults to
// the trailing 30 days.
func parseWindow(start, end string) (time.Time, time.Time, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := now.AddDate(0, 0, -30), now

	if start != "" {
		t, err := time.Parse("2006-01-02", start)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrapf(err, "parse start date %q", start)
		}
		from = t
	}
	if end != "" {
		t, err := time.Parse("2006-01-02", end)
		if err != nil {
			return time.Time{}, time.Time{}, eris.Wrapf(err, "parse end date %q", end)
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, eris.Errorf("end date %s is before start date %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return from, to, nil
}
