package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
	"github.com/dylanpieper/batchGPT/pkg/query"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	exportCheckpoint string
	exportRun        string
	exportFormat     string
	exportOut        string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export a run's output table",
		Long:  "Write the stored output snapshot of a run to CSV, TSV, XLSX, or JSON",
		Example: `  batchctl export --run reviews_9f8e7d6c
  batchctl export --run reviews_9f8e7d6c --format xlsx --out results.xlsx
  batchctl export --run reviews_9f8e7d6c --format json`,
		RunE: exportRunOutput,
	}
)

func init() {
	exportCmd.Flags().StringVar(&exportCheckpoint, "checkpoint", "", "checkpoint store path (default from config)")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "run key to export (required)")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "export format: csv, tsv, xlsx, or json")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default: <run key>.<format>)")
	exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}

func exportRunOutput(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(exportCheckpoint)
	if err != nil {
		return fmt.Errorf("loading checkpoint store: %w", err)
	}

	table, err := query.GetOutput(store, exportRun)
	if err != nil {
		return err
	}

	format := strings.ToLower(exportFormat)
	if format == "" {
		format = cliConfig().ExportFormat
	}

	outPath := exportOut
	if outPath == "" {
		outPath = exportRun + "." + format
	}

	switch format {
	case "csv", "tsv", "xlsx":
		if err := dataset.WriteFile(outPath, table); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
	case "json":
		data, err := json.MarshalIndent(table, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}

	fmt.Println(color.GreenString("✅ Exported %d rows to %s", table.NumRows(), outPath))
	return nil
}
