package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJobFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing job file: %v", err)
	}
	return path
}

const validJob = `
jobs:
  reviews:
    source:
      type: fs
      config:
        path: reviews.csv
    column: text
    provider: openai
    model: gpt-4o-mini
    temperature: 0.2
    prompt: "Classify the sentiment as positive, negative, or neutral."
    batch:
      size: 5
      delay: "seconds:2"
    retry:
      max_attempts: 4
      backoff_seconds: 2
    sanitize: true
    case: lower
`

func TestLoadConfigParsesJobs(t *testing.T) {
	path := writeJobFile(t, validJob)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	job, ok := config.Jobs["reviews"]
	if !ok {
		t.Fatal("expected job 'reviews'")
	}
	if job.Source.Type != "fs" {
		t.Errorf("source type = %q, want fs", job.Source.Type)
	}
	if job.Batch.Size != 5 || job.Batch.Delay != "seconds:2" {
		t.Errorf("batch = %+v", job.Batch)
	}
	if job.Retry.MaxAttempts != 4 {
		t.Errorf("retry attempts = %d, want 4", job.Retry.MaxAttempts)
	}
}

func TestLoadConfigRejectsEmptyJobs(t *testing.T) {
	path := writeJobFile(t, "jobs: {}\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for file with no jobs")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEngineConfigDefaults(t *testing.T) {
	r := New(Options{})
	cfg, err := r.engineConfig("reviews", JobConfig{
		Column:   "text",
		Provider: "anthropic",
		Model:    "claude-3-5-haiku-latest",
		Prompt:   "Classify the sentiment.",
	})
	if err != nil {
		t.Fatalf("engineConfig: %v", err)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("batch size = %d, want %d", cfg.BatchSize, DefaultBatchSize)
	}
	if cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("max tokens = %d, want %d", cfg.MaxTokens, DefaultMaxTokens)
	}
	if cfg.DatasetLabel != "reviews" {
		t.Errorf("dataset label = %q, want job key fallback", cfg.DatasetLabel)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("retry attempts = %d, want default 3", cfg.Retry.MaxAttempts)
	}
}

func TestEngineConfigRetryOverride(t *testing.T) {
	r := New(Options{})
	cfg, err := r.engineConfig("reviews", JobConfig{
		Column:   "text",
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Prompt:   "Classify.",
		Retry:    RetryConfig{MaxAttempts: 5, BackoffSeconds: 30},
	})
	if err != nil {
		t.Fatalf("engineConfig: %v", err)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Backoff != 30*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
}

func TestEngineConfigValidation(t *testing.T) {
	r := New(Options{})
	cases := []struct {
		name string
		job  JobConfig
	}{
		{"missing column", JobConfig{Provider: "openai", Model: "gpt-4o-mini", Prompt: "p"}},
		{"missing prompt", JobConfig{Column: "text", Provider: "openai", Model: "gpt-4o-mini"}},
		{"missing model", JobConfig{Column: "text", Provider: "openai", Prompt: "p"}},
		{"unknown provider", JobConfig{Column: "text", Provider: "cohere", Model: "m", Prompt: "p"}},
		{"bad delay", JobConfig{Column: "text", Provider: "openai", Model: "m", Prompt: "p", Batch: BatchConfig{Delay: "fortnights:1"}}},
		{"bad case", JobConfig{Column: "text", Provider: "openai", Model: "m", Prompt: "p", Case: "title"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := r.engineConfig("job", tc.job); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateChecksEveryJob(t *testing.T) {
	path := writeJobFile(t, `
jobs:
  good:
    source:
      type: fs
      config:
        path: data.csv
    column: text
    provider: google
    model: gemini-2.0-flash
    prompt: "Classify."
  bad:
    source:
      type: ftp
      config: {}
    column: text
    provider: google
    model: gemini-2.0-flash
    prompt: "Classify."
`)
	r := New(Options{ConfigFile: path})
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation to reject unsupported source type")
	}
}

func TestValidateAcceptsWellFormedFile(t *testing.T) {
	path := writeJobFile(t, validJob)
	r := New(Options{ConfigFile: path, DryRun: true})
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
