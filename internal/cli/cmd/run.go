package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dylanpieper/batchGPT/internal/cli/runner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// dryRun flag for validation only
	dryRun bool

	runCmd = &cobra.Command{
		Use:   "run [job file]",
		Short: "Run classification jobs from a job file",
		Long:  "Execute every job in the specified YAML job file, resuming from checkpoints where prior work exists",
		Args:  cobra.ExactArgs(1),
		Example: `  batchctl run jobs.yaml
  batchctl run config/reviews.yaml
  batchctl run --dry-run jobs.yaml`,
		RunE: runJobs,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the job file without calling any provider")
	rootCmd.AddCommand(runCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	configFile := args[0]

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("job file not found: %s", configFile)
	}

	jobRunner := runner.New(runner.Options{
		ConfigFile: configFile,
		Verbose:    verbose,
		DryRun:     dryRun,
	})

	if dryRun {
		fmt.Println(color.YellowString("🔍 Validating jobs from %s", configFile))

		if err := jobRunner.Validate(); err != nil {
			return fmt.Errorf("job validation failed: %w", err)
		}

		fmt.Println(color.GreenString("✅ Job file is valid"))
		return nil
	}

	fmt.Println(color.GreenString("🚀 Starting jobs from %s", configFile))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := jobRunner.Run(ctx); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Println(color.GreenString("✅ All jobs completed"))
	return nil
}
