package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dylanpieper/batchGPT/internal/cli/runner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Job file management commands",
	Long:  `Commands for validating and inspecting job files.`,
}

// validateCmd validates a job file without running it
var validateCmd = &cobra.Command{
	Use:   "validate [job file]",
	Short: "Validate a job file",
	Long:  `Validate a YAML job file and report any errors before running it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := args[0]

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return fmt.Errorf("job file does not exist: %s", configFile)
		}

		jobRunner := runner.New(runner.Options{ConfigFile: configFile, Verbose: verbose})
		if err := jobRunner.Validate(); err != nil {
			color.Red("❌ Job file has errors:\n")
			fmt.Printf("  • %v\n", err)
			return fmt.Errorf("job file validation failed")
		}

		color.Green("✅ Job file is valid!")
		return nil
	},
}

// showCmd renders a parsed job file back as YAML
var showCmd = &cobra.Command{
	Use:   "show [job file]",
	Short: "Show the parsed contents of a job file",
	Long:  `Parse a job file and print each job with its resolved source, provider, and sink configuration.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := args[0]

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return fmt.Errorf("job file does not exist: %s", configFile)
		}

		config, err := runner.LoadConfig(configFile)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(config.Jobs))
		for name := range config.Jobs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			job := config.Jobs[name]

			color.Cyan("Job: %s\n", name)
			fmt.Println(strings.Repeat("─", 40))

			fmt.Printf("\n📥 Source: %s\n", job.Source.Type)
			fmt.Printf("🤖 Provider: %s (%s)\n", job.Provider, job.Model)
			if len(job.Processors) > 0 {
				fmt.Printf("⚙️  Processors (%d):\n", len(job.Processors))
				for i, proc := range job.Processors {
					fmt.Printf("   %d. %s\n", i+1, proc.Type)
				}
			}
			if len(job.Consumers) > 0 {
				fmt.Printf("💾 Consumers (%d):\n", len(job.Consumers))
				for i, cons := range job.Consumers {
					fmt.Printf("   %d. %s\n", i+1, cons.Type)
				}
			}

			yamlData, err := yaml.Marshal(map[string]runner.JobConfig{name: job})
			if err != nil {
				return fmt.Errorf("rendering job %s: %w", name, err)
			}
			fmt.Printf("\n%s\n", string(yamlData))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(showCmd)
}
