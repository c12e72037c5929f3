package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dylanpieper/batchGPT/consumer"
	"github.com/dylanpieper/batchGPT/engine"
	"github.com/dylanpieper/batchGPT/pkg/checkpoint"
	"github.com/dylanpieper/batchGPT/pkg/pipeline"
	"github.com/dylanpieper/batchGPT/pkg/transform"
	"github.com/dylanpieper/batchGPT/processor"
	"github.com/dylanpieper/batchGPT/provider"
	"github.com/dylanpieper/batchGPT/source"
	"gopkg.in/yaml.v2"
)

// Options configures a Runner invocation.
type Options struct {
	ConfigFile string
	Verbose    bool
	DryRun     bool
}

// Runner loads a job file and executes every job in it sequentially.
type Runner struct {
	opts Options
}

// Config is the top-level shape of a job file.
type Config struct {
	Jobs map[string]JobConfig `yaml:"jobs"`
}

// JobConfig describes one classification job: where the dataset comes
// from, which column to process, how to call the model, and where the
// results go.
type JobConfig struct {
	Name        string                      `yaml:"name"`
	Source      source.SourceConfig         `yaml:"source"`
	Column      string                      `yaml:"column"`
	Provider    string                      `yaml:"provider"`
	Model       string                      `yaml:"model"`
	Temperature float64                     `yaml:"temperature"`
	Prompt      string                      `yaml:"prompt"`
	MaxTokens   int                         `yaml:"max_tokens"`
	Batch       BatchConfig                 `yaml:"batch"`
	Retry       RetryConfig                 `yaml:"retry"`
	Sanitize    bool                        `yaml:"sanitize"`
	SanitizeTag string                      `yaml:"sanitize_tag"`
	Case        string                      `yaml:"case"`
	Checkpoint  string                      `yaml:"checkpoint"`
	Processors  []processor.ProcessorConfig `yaml:"processors"`
	Consumers   []consumer.ConsumerConfig   `yaml:"consumers"`
}

// BatchConfig sets the batch size and the pause between batches.
type BatchConfig struct {
	Size  int    `yaml:"size"`
	Delay string `yaml:"delay"`
}

// RetryConfig sets the per-row retry policy.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

// Defaults applied to job fields left unset in the file.
const (
	DefaultCheckpointPath = "checkpoints.json"
	DefaultBatchSize      = 10
	DefaultMaxTokens      = 500
)

func New(opts Options) *Runner {
	return &Runner{opts: opts}
}

// LoadConfig reads and parses a job file without executing it.
func LoadConfig(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if len(config.Jobs) == 0 {
		return nil, fmt.Errorf("config file %s defines no jobs", path)
	}
	return &config, nil
}

// Run executes every job in the config file. Jobs run one after another;
// a failed job is logged and the remaining jobs still run.
func (r *Runner) Run(ctx context.Context) error {
	config, err := LoadConfig(r.opts.ConfigFile)
	if err != nil {
		return err
	}

	creds := provider.CredentialsFromEnv()

	for name, jobConfig := range config.Jobs {
		log.Printf("Starting job: %s", name)
		err := r.runJob(ctx, name, jobConfig, creds)
		if r.opts.Verbose {
			log.Printf("DEBUG: runJob returned error: %v", err)
		}
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Job %s interrupted: %v", name, err)
				return err
			}
			log.Printf("Job error: error in job %s: %v", name, err)
		}
	}

	log.Printf("All jobs finished.")
	return nil
}

// Validate checks every job in the config file without calling any
// provider: sources, processors, consumers, and engine settings are all
// constructed, then consumers are closed again.
func (r *Runner) Validate() error {
	config, err := LoadConfig(r.opts.ConfigFile)
	if err != nil {
		return err
	}

	for name, jobConfig := range config.Jobs {
		if _, err := source.NewDatasetSource(jobConfig.Source); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		if _, err := r.engineConfig(name, jobConfig); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		if _, err := processor.NewProcessors(jobConfig.Processors); err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		consumers, err := consumer.NewConsumers(jobConfig.Consumers)
		if err != nil {
			return fmt.Errorf("job %s: %w", name, err)
		}
		closeConsumers(consumers)
	}
	return nil
}

func (r *Runner) runJob(ctx context.Context, name string, jobConfig JobConfig, creds provider.Credentials) error {
	cfg, err := r.engineConfig(name, jobConfig)
	if err != nil {
		return err
	}

	if creds.KeyFor(cfg.Provider) == "" {
		return fmt.Errorf("no API key in environment for provider %s", cfg.Provider)
	}

	datasetSource, err := source.NewDatasetSource(jobConfig.Source)
	if err != nil {
		return fmt.Errorf("error creating source: %w", err)
	}

	processors, err := processor.NewProcessors(jobConfig.Processors)
	if err != nil {
		return fmt.Errorf("error creating processors: %w", err)
	}

	consumers, err := consumer.NewConsumers(jobConfig.Consumers)
	if err != nil {
		return fmt.Errorf("error creating consumers: %w", err)
	}
	defer closeConsumers(consumers)

	checkpointPath := jobConfig.Checkpoint
	if checkpointPath == "" {
		checkpointPath = DefaultCheckpointPath
	}
	manager, err := checkpoint.NewManager(checkpointPath)
	if err != nil {
		return fmt.Errorf("error opening checkpoint store: %w", err)
	}

	table, err := datasetSource.Load(ctx)
	if err != nil {
		return fmt.Errorf("error loading dataset: %w", err)
	}

	controller := engine.NewController(provider.NewDispatcher(creds), manager)
	for _, head := range pipeline.BuildProcessorChain(processors, consumers) {
		controller.Subscribe(head)
	}

	result, err := controller.Run(ctx, table, cfg)
	if err != nil {
		return err
	}

	log.Printf("Job %s done: run %s, %d rows in %d batches (%.1fs)",
		name, result.RunKey, result.Rows, result.Batches, result.TotalTime)
	return nil
}

// engineConfig translates a job block into the engine's configuration,
// applying defaults and validating enumerated fields.
func (r *Runner) engineConfig(name string, jobConfig JobConfig) (engine.Config, error) {
	if jobConfig.Column == "" {
		return engine.Config{}, fmt.Errorf("column must be specified")
	}
	if jobConfig.Prompt == "" {
		return engine.Config{}, fmt.Errorf("prompt must be specified")
	}
	if jobConfig.Model == "" {
		return engine.Config{}, fmt.Errorf("model must be specified")
	}

	providerName, err := provider.ParseName(jobConfig.Provider)
	if err != nil {
		return engine.Config{}, err
	}

	delay, err := engine.ParseDelay(jobConfig.Batch.Delay)
	if err != nil {
		return engine.Config{}, err
	}

	caseMode, err := transform.ParseCaseMode(jobConfig.Case)
	if err != nil {
		return engine.Config{}, err
	}

	retry := engine.DefaultRetry
	if jobConfig.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = jobConfig.Retry.MaxAttempts
	}
	if jobConfig.Retry.BackoffSeconds > 0 {
		retry.Backoff = time.Duration(jobConfig.Retry.BackoffSeconds) * time.Second
	}

	batchSize := jobConfig.Batch.Size
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	maxTokens := jobConfig.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	label := jobConfig.Name
	if label == "" {
		label = name
	}

	return engine.Config{
		DatasetLabel: label,
		Column:       jobConfig.Column,
		Provider:     providerName,
		Model:        jobConfig.Model,
		Temperature:  jobConfig.Temperature,
		Prompt:       jobConfig.Prompt,
		BatchSize:    batchSize,
		Delay:        delay,
		MaxTokens:    maxTokens,
		Sanitize:     jobConfig.Sanitize,
		SanitizeTag:  jobConfig.SanitizeTag,
		Case:         caseMode,
		Retry:        retry,
	}, nil
}

// closeConsumers flushes buffered output. Runs after the engine has
// finished so consumers see every event before closing.
func closeConsumers(consumers []processor.Processor) {
	for _, cons := range consumers {
		if closer, ok := cons.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("Error closing consumer %T: %v", cons, closeErr)
			}
		}
	}
}
