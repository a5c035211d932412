package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/insight"
	"github.com/practicepulse/pulse-cli/internal/metric"
	"github.com/practicepulse/pulse-cli/internal/vitals"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write period aggregates and vital signs to an .xlsx workbook",
	Long: `Aggregate all five data sources over a date window and write the
results to an Excel workbook: one sheet per source plus a Vital Signs
summary sheet.

Example:
  export --client clinic-1 --start 2026-08-01 --end 2026-08-31 --file august.xlsx`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.String("client", "", "client ID")
	f.String("start", "", "window start (YYYY-MM-DD, default 30 days ago)")
	f.String("end", "", "window end (YYYY-MM-DD, default today)")
	f.String("file", "pulse-report.xlsx", "output workbook path")
	_ = exportCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(exportCmd)
}

// sheetNames maps source names to workbook sheet titles.
var sheetNames = map[string]string{
	metric.SourceGA4:     "Google Analytics",
	metric.SourceGSC:     "Search Console",
	metric.SourceGBP:     "Business Profile",
	metric.SourceClarity: "Clarity",
	metric.SourcePMS:     "Practice Management",
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, _ := cmd.Flags().GetString("client")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	path, _ := cmd.Flags().GetString("file")

	from, to, err := parseWindow(start, end)
	if err != nil {
		return err
	}

	env, err := initEnv(ctx, "export")
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

	file, err := buildWorkbook(bundle, score)
	if err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "save workbook %s", path)
	}

	zap.L().Info("workbook exported",
		zap.String("client_id", clientID),
		zap.String("path", path),
	)
	fmt.Printf("Wrote %s\n", path)

	return nil
}

// buildWorkbook lays out one sheet per present source plus the composite
// summary sheet.
func buildWorkbook(bundle insight.Bundle, score *vitals.Score) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Vital Signs")
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	addKV(summary, "Score", fmt.Sprintf("%d", score.Score))
	addKV(summary, "Grade", score.Grade)
	addKV(summary, "Monthly Change", fmt.Sprintf("%.1f", score.MonthlyChange))
	addKV(summary, "Trend", string(score.Trend))
	summary.AddRow()
	header := summary.AddRow()
	header.AddCell().SetString("Source")
	header.AddCell().SetString("Score")
	for _, src := range metric.SourceNames {
		row := summary.AddRow()
		row.AddCell().SetString(sheetNames[src])
		row.AddCell().SetInt(score.Breakdown[src])
	}

	for _, src := range metric.SourceNames {
		agg := bundle[src]
		if agg == nil {
			continue
		}
		sheet, err := f.AddSheet(sheetNames[src])
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet for %s", src)
		}
		addAggregate(sheet, agg)
	}

	return f, nil
}

func addAggregate(sheet *xlsx.Sheet, agg *metric.Aggregate) {
	header := sheet.AddRow()
	header.AddCell().SetString("Metric")
	header.AddCell().SetString("Value")

	addKV(sheet, "Days", fmt.Sprintf("%d", agg.Days))
	for _, name := range sortedKeys(agg.Totals) {
		addNumber(sheet, name, agg.Totals[name])
	}
	for _, name := range sortedKeys(agg.Rates) {
		addNumber(sheet, name, agg.Rates[name])
	}
	for _, name := range sortedKeys(agg.AllTime) {
		addNumber(sheet, name, agg.AllTime[name])
	}
	addKV(sheet, "Score", fmt.Sprintf("%d", agg.Score))
	addKV(sheet, "Trend", string(agg.Trend))
	addKV(sheet, "Change %", agg.ChangePercent)
}

func addKV(sheet *xlsx.Sheet, name, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	row.AddCell().SetString(value)
}

func addNumber(sheet *xlsx.Sheet, name string, value float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	row.AddCell().SetFloat(value)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
