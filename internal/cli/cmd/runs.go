package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dylanpieper/batchGPT/internal/cli/config"
	"github.com/dylanpieper/batchGPT/pkg/checkpoint"
	"github.com/dylanpieper/batchGPT/pkg/query"
	"github.com/spf13/cobra"
)

var (
	runsCheckpoint string
	runsOutput     string

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the checkpoint store",
		Long:  "Summarize every run in the checkpoint store with its row, column, and batch counts",
		Example: `  batchctl runs
  batchctl runs --checkpoint custom.json --output json`,
		RunE: listRuns,
	}
)

func init() {
	runsCmd.Flags().StringVar(&runsCheckpoint, "checkpoint", "", "checkpoint store path (default from config)")
	runsCmd.Flags().StringVarP(&runsOutput, "output", "o", "", "output format: table or json")
	rootCmd.AddCommand(runsCmd)
}

// cliConfig loads batchctl settings, falling back to defaults when the
// config cannot be read.
func cliConfig() *config.CLIConfig {
	cfg, err := config.Load()
	if err != nil {
		return &config.CLIConfig{CheckpointPath: "checkpoints.json", OutputFormat: "table", ExportFormat: "csv"}
	}
	return cfg
}

// openStore loads the checkpoint store named by the flag, falling back to
// the configured default path.
func openStore(flagPath string) (*checkpoint.Store, string, error) {
	path := flagPath
	if path == "" {
		path = cliConfig().CheckpointPath
	}

	manager, err := checkpoint.NewManager(path)
	if err != nil {
		return nil, path, err
	}
	store, err := manager.Load()
	if err != nil {
		return nil, path, err
	}
	return store, path, nil
}

// outputFormat resolves the per-command flag against the configured default.
func outputFormat(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cliConfig().OutputFormat
}

func listRuns(cmd *cobra.Command, args []string) error {
	store, path, err := openStore(runsCheckpoint)
	if err != nil {
		return fmt.Errorf("loading checkpoint store: %w", err)
	}

	summaries := query.Runs(store)

	switch format := outputFormat(runsOutput); format {
	case "json":
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "table":
		if len(summaries) == 0 {
			fmt.Printf("No runs recorded in %s\n", path)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tROWS\tCOLUMNS\tBATCHES\tUPDATED")
		fmt.Fprintln(w, "---\t----\t-------\t-------\t-------")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
				s.RunKey, s.Rows, s.Columns, s.Batches, s.Updated.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	return nil
}
