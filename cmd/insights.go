package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Generate the monthly insight report for a client",
	Long: `Generate (or fetch from the monthly cache) the narrative insight
report for a client. The report is produced by the configured model provider
when one is available and by the deterministic rule-based narrative
otherwise; a model failure falls back to the rules silently.

Use --force-refresh to regenerate even when a report for the current month
already exists.`,
	RunE: runInsights,
}

func init() {
	f := insightsCmd.Flags()
	f.String("client", "", "client ID")
	f.String("start", "", "window start (YYYY-MM-DD, default 30 days ago)")
	f.String("end", "", "window end (YYYY-MM-DD, default today)")
	f.Bool("force-refresh", false, "regenerate even if a report exists for this month")
	f.String("output", "json", "output format: json or yaml")
	_ = insightsCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(insightsCmd)
}

func runInsights(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, _ := cmd.Flags().GetString("client")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
	format, _ := cmd.Flags().GetString("output")

	from, to, err := parseWindow(start, end)
	if err != nil {
		return err
	}

	env, err := initEnv(ctx, "insights")
	if err != nil {
		return err
	}
	defer env.Close()

	bundle, err := collectBundle(ctx, env.Store, clientID, from, to)
	if err != nil {
		return err
	}

	report, err := env.Generator.Generate(ctx, clientID, bundle, forceRefresh)
	if err != nil {
		return err
	}

	zap.L().Info("insight report ready",
		zap.String("client_id", clientID),
		zap.String("report_month", report.ReportMonth),
		zap.String("generated_by", report.GeneratedBy),
	)

	return writeOutput(os.Stdout, report, format)
}
