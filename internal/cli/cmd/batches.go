package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dylanpieper/batchGPT/pkg/query"
	"github.com/spf13/cobra"
)

var (
	batchesCheckpoint string
	batchesOutput     string
	batchesRun        string
	batchesColumn     string

	batchesCmd = &cobra.Command{
		Use:   "batches",
		Short: "List batch records from the checkpoint store",
		Long:  "Report every recorded batch with its status, timing, and model parameters",
		Example: `  batchctl batches
  batchctl batches --run reviews_9f8e7d6c
  batchctl batches --output json`,
		RunE: listBatches,
	}
)

func init() {
	batchesCmd.Flags().StringVar(&batchesCheckpoint, "checkpoint", "", "checkpoint store path (default from config)")
	batchesCmd.Flags().StringVarP(&batchesOutput, "output", "o", "", "output format: table or json")
	batchesCmd.Flags().StringVar(&batchesRun, "run", "", "only show batches for this run key")
	batchesCmd.Flags().StringVar(&batchesColumn, "column", "", "only show batches for this output column")
	rootCmd.AddCommand(batchesCmd)
}

func listBatches(cmd *cobra.Command, args []string) error {
	store, path, err := openStore(batchesCheckpoint)
	if err != nil {
		return fmt.Errorf("loading checkpoint store: %w", err)
	}

	rows := query.ListBatches(store, query.Filter{RunKey: batchesRun, Column: batchesColumn})

	switch format := outputFormat(batchesOutput); format {
	case "json":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "table":
		if len(rows) == 0 {
			fmt.Printf("No batches recorded in %s\n", path)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tCOLUMN\tBATCH\tSTATUS\tTIME(S)\tPROVIDER\tMODEL\tTIMESTAMP")
		fmt.Fprintln(w, "---\t------\t-----\t------\t-------\t--------\t-----\t---------")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.1f\t%s\t%s\t%s\n",
				row.Dataset, row.Column, row.BatchNumber, row.Status, row.TotalTime,
				row.Provider, row.Model, row.Timestamp.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	return nil
}
