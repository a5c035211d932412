package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Aggregate one source and print its period metrics",
	Long: `Aggregate the daily rows of one data source over a date window and
print the period totals, rates, health score, and trend.

Examples:
  # Last 30 days of Google Analytics for a client
  score --source ga4 --client clinic-1

  # A specific window, as YAML
  score --source gbp --client clinic-1 --start 2026-08-01 --end 2026-08-31 --output yaml`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.String("source", "", "data source: "+strings.Join(metric.SourceNames, ", "))
	f.String("client", "", "client ID")
	f.String("start", "", "window start (YYYY-MM-DD, default 30 days ago)")
	f.String("end", "", "window end (YYYY-MM-DD, default today)")
	f.String("output", "json", "output format: json or yaml")
	_ = scoreCmd.MarkFlagRequired("source")
	_ = scoreCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, _ := cmd.Flags().GetString("source")
	clientID, _ := cmd.Flags().GetString("client")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	format, _ := cmd.Flags().GetString("output")

	srcCfg, ok := metric.Lookup(source)
	if !ok {
		return eris.Errorf("unknown source %q (want one of %s)", source, strings.Join(metric.SourceNames, ", "))
	}

	from, to, err := parseWindow(start, end)
	if err != nil {
		return err
	}

	env, err := initEnv(ctx, "score")
	if err != nil {
		return err
	}
	defer env.Close()

	rows, err := env.Store.MetricRows(ctx, source, clientID, from, to)
	if err != nil {
		return eris.Wrapf(err, "load %s rows", source)
	}

	agg := metric.Reduce(rows, srcCfg)
	zap.L().Info("source aggregated",
		zap.String("client_id", clientID),
		zap.String("source", source),
		zap.Int("days", agg.Days),
		zap.Int("score", agg.Score),
	)

	return writeOutput(os.Stdout, agg, format)
}
