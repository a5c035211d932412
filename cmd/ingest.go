package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/practicepulse/pulse-cli/internal/metric"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a JSON file of daily rows for one source",
	Long: `Bulk-upsert daily metric rows from a JSON file into the store. The
file holds an array of objects keyed by column name; every row needs at
least client_id and date (YYYY-MM-DD). Re-delivering an overlapping window
overwrites the existing rows.

Example:
  ingest --source ga4 --file august-ga4.json`,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.String("source", "", "data source: "+strings.Join(metric.SourceNames, ", "))
	f.String("file", "", "path to the JSON rows file")
	_ = ingestCmd.MarkFlagRequired("source")
	_ = ingestCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, _ := cmd.Flags().GetString("source")
	path, _ := cmd.Flags().GetString("file")

	if _, ok := metric.Lookup(source); !ok {
		return eris.Errorf("unknown source %q (want one of %s)", source, strings.Join(metric.SourceNames, ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read rows file %s", path)
	}

	var rows []metric.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return eris.Wrapf(err, "parse rows file %s", path)
	}
	for i, row := range rows {
		if row["client_id"] == nil || row["date"] == nil {
			return eris.Errorf("row %d is missing client_id or date", i)
		}
	}

	env, err := initEnv(ctx, "ingest")
	if err != nil {
		return err
	}
	defer env.Close()

	n, err := env.Store.IngestRows(ctx, source, rows)
	if err != nil {
		return err
	}

	zap.L().Info("rows ingested",
		zap.String("source", source),
		zap.Int64("rows", n),
	)
	fmt.Printf("Ingested %d rows into %s\n", n, source)

	return nil
}
