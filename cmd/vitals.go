package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/practicepulse/pulse-cli/internal/vitals"
)

var vitalsCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Compute the composite Vital Signs score for a client",
	Long: `Aggregate all five data sources over a date window, combine their
health scores into the weighted composite Vital Signs score, and print the
score, grade, month-over-month change, and per-source breakdown.

Sources with no data in the window enter the composite at the neutral 50.`,
	RunE: runVitals,
}

func init() {
	f := vitalsCmd.Flags()
	f.String("client", "", "client ID")
	f.String("start", "", "window start (YYYY-MM-DD, default 30 days ago)")
	f.String("end", "", "window end (YYYY-MM-DD, default today)")
	f.String("output", "json", "output format: json or yaml")
	_ = vitalsCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(vitalsCmd)
}

// vitalsResult pairs the composite with the per-source aggregates it was
// derived from.
type vitalsResult struct {
	ClientID   string        `json:"client_id" yaml:"client_id"`
	VitalSigns *vitals.Score `json:"vital_signs" yaml:"vital_signs"`
}

func runVitals(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, _ := cmd.Flags().GetString("client")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	format, _ := cmd.Flags().GetString("output")

	from, to, err := parseWindow(start, end)
	if err != nil {
		return err
	}

	env, err := initEnv(ctx, "vitals")
	if err != nil {
		return err
	}
	defer env.Close()

	bundle, err := collectBundle(ctx, env.Store, clientID, from, to)
	if err != nil {
		return err
	}

	score, err := env.Scorer.Compute(ctx, clientID, sourceScores(bundle))
	if err != nil {
		return err
	}

	return writeOutput(os.Stdout, vitalsResult{ClientID: clientID, VitalSigns: score}, format)
}
