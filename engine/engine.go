package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/guregu/null"

	"github.com/dylanpieper/batchGPT/pkg/checkpoint"
	"github.com/dylanpieper/batchGPT/pkg/dataset"
	"github.com/dylanpieper/batchGPT/pkg/fingerprint"
	"github.com/dylanpieper/batchGPT/pkg/transform"
	"github.com/dylanpieper/batchGPT/processor"
	"github.com/dylanpieper/batchGPT/provider"
)

// DefaultSanitizeTag is the tag models are asked to wrap answers in when
// sanitization is on.
const DefaultSanitizeTag = "results"

// CompletionClient is the provider surface the engine drives. Satisfied by
// provider.Dispatcher.
type CompletionClient interface {
	Complete(ctx context.Context, req provider.Request) (string, error)
}

// Config describes one unit of work: a column of a labeled dataset pushed
// through one completion configuration.
type Config struct {
	DatasetLabel string
	Column       string
	Provider     provider.Name
	Model        string
	Temperature  float64
	Prompt       string
	BatchSize    int
	Delay        DelayPolicy
	MaxTokens    int
	Sanitize     bool
	SanitizeTag  string
	Case         transform.CaseMode
	Retry        RetryPolicy

	// RowJitter bounds the randomized pause between rows in a batch.
	// Zero means the default bound.
	RowJitter time.Duration
}

// fingerprint maps the config onto the identity tuple. The delay policy is
// rendered in canonical form so equivalent spellings hash alike.
func (cfg Config) fingerprint() fingerprint.Config {
	return fingerprint.Config{
		Provider:    string(cfg.Provider),
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Prompt:      cfg.Prompt,
		BatchSize:   cfg.BatchSize,
		BatchDelay:  cfg.Delay.String(),
		MaxTokens:   cfg.MaxTokens,
		Sanitize:    cfg.Sanitize,
	}
}

// Result summarizes a finished run.
type Result struct {
	RunKey       string
	OutputColumn string
	Output       *dataset.Table
	Batches      int
	Rows         int
	TotalTime    float64
}

// Controller drives a run batch by batch: it resolves identity keys, loads
// prior state, schedules the unprocessed rows, applies the retry policy,
// and persists the store after every batch.
//
// Scheduling is single-threaded and blocking. No batch begins
// until the prior batch's checkpoint write has completed, which is what
// keeps the resume argument simple: killing the process at any point leaves
// the store at the last fully written state.
type Controller struct {
	client     CompletionClient
	manager    *checkpoint.Manager
	processors []processor.Processor
}

// NewController creates a controller over a completion client and a
// checkpoint store manager.
func NewController(client CompletionClient, manager *checkpoint.Manager) *Controller {
	return &Controller{client: client, manager: manager}
}

// Subscribe registers a downstream processor to receive engine events.
func (c *Controller) Subscribe(p processor.Processor) {
	c.processors = append(c.processors, p)
}

// emit forwards an event to the subscribed processors. Event delivery is a
// side channel: a failing subscriber is logged and never alters run state.
func (c *Controller) emit(ctx context.Context, eventType, runKey string, payload interface{}) {
	if len(c.processors) == 0 {
		return
	}
	if err := processor.ForwardEvent(ctx, eventType, runKey, payload, c.processors); err != nil {
		log.Printf("[ERROR] Failed to forward %s event: %v", eventType, err)
	}
}

func validate(table *dataset.Table, cfg Config) error {
	if table == nil || table.NumRows() == 0 {
		return &ValidationError{Field: "dataset", Reason: "no rows to process"}
	}
	if strings.TrimSpace(cfg.DatasetLabel) == "" {
		return &ValidationError{Field: "dataset_label", Reason: "cannot be empty"}
	}
	if !table.HasColumn(cfg.Column) {
		return &ValidationError{Field: "column", Reason: fmt.Sprintf("%q not found in dataset", cfg.Column)}
	}
	if _, err := provider.ParseName(string(cfg.Provider)); err != nil {
		return &ValidationError{Field: "provider", Reason: err.Error()}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return &ValidationError{Field: "model", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "cannot be empty"}
	}
	if cfg.BatchSize < 1 {
		return &ValidationError{Field: "batch_size", Reason: "must be at least 1"}
	}
	if cfg.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Reason: "must be at least 1"}
	}
	return nil
}

// systemPrompt builds the instruction sent as the system turn. With
// sanitization on, the model is told to wrap its answer in the tag the
// transform step extracts.
func systemPrompt(cfg Config) string {
	if !cfg.Sanitize {
		return cfg.Prompt
	}
	return fmt.Sprintf("%s Wrap your final answer in <%s></%s> tags.", cfg.Prompt, cfg.SanitizeTag, cfg.SanitizeTag)
}

// Run processes the configured column of the dataset, resuming from the
// checkpoint store when prior work exists. On success the returned result
// holds the full output snapshot. On retry exhaustion the failing batch is
// recorded as interrupted and the store saved before an ExhaustionError is
// returned; a later run resumes from the last completed batch.
func (c *Controller) Run(ctx context.Context, table *dataset.Table, cfg Config) (*Result, error) {
	if err := validate(table, cfg); err != nil {
		return nil, err
	}
	if cfg.SanitizeTag == "" {
		cfg.SanitizeTag = DefaultSanitizeTag
	}
	cfg.Retry = cfg.Retry.normalized()

	values, err := table.Column(cfg.Column)
	if err != nil {
		return nil, err
	}
	runKey := fingerprint.RunKey(cfg.DatasetLabel, values)
	configKey, err := fingerprint.HashConfig(cfg.fingerprint())
	if err != nil {
		return nil, err
	}
	outputColumn := fingerprint.OutputColumn(cfg.Column, configKey)

	store, err := c.manager.Load()
	if err != nil {
		return nil, err
	}

	snapshot := table.Clone()
	snapshot.EnsureColumn(outputColumn)
	if err := store.UpsertOutput(runKey, snapshot, cfg.Column); err != nil {
		return nil, fmt.Errorf("failed to merge dataset into checkpoint store: %w", err)
	}

	rec := store.GetRun(runKey)
	work := rec.Output

	outputs, err := work.Column(outputColumn)
	if err != nil {
		return nil, err
	}
	if fullyPopulated(outputs) {
		log.Printf("[INFO] Run %s column %s is already fully processed, returning stored output", runKey, outputColumn)
		if err := c.manager.Save(store); err != nil {
			return nil, err
		}
		result := &Result{RunKey: runKey, OutputColumn: outputColumn, Output: work.Clone()}
		c.report(ctx, cfg, result, checkpoint.StatusCompleted, nil, work)
		return result, nil
	}

	spans := partition(work.NumRows(), cfg.BatchSize)
	total := len(spans)
	start := rec.Column(outputColumn).HighestCompleted() + 1
	if start > 1 {
		log.Printf("[INFO] Resuming run %s at batch %d/%d", runKey, start, total)
	}

	runStart := time.Now()
	batchesRun := 0
	rowsRun := 0

	for n := start; n <= total; n++ {
		sp := spans[n-1]

		record := c.batchRecord(cfg, checkpoint.StatusInProgress, runStart)
		store.UpsertBatch(runKey, outputColumn, n, record)
		if err := c.manager.Save(store); err != nil {
			return nil, fmt.Errorf("failed to checkpoint batch %d of %d: %w", n, total, err)
		}
		c.checkpointEvent(ctx, runKey, outputColumn, n, total, sp.size(), record)

		attempts := 0
		for {
			attempts++
			processed, err := c.runBatch(ctx, work, sp, n, total, cfg, runKey, outputColumn)
			if err == nil {
				rowsRun += processed
				break
			}
			if retryable(err) && attempts < cfg.Retry.MaxAttempts {
				log.Printf("[WARN] Batch %d/%d attempt %d failed: %v (retrying)", n, total, attempts, err)
				cfg.Retry.wait()
				continue
			}

			// Terminal: persist the interrupted state, including any rows
			// this attempt already wrote, before surfacing the error.
			record := c.batchRecord(cfg, checkpoint.StatusInterrupted, runStart)
			store.UpsertBatch(runKey, outputColumn, n, record)
			if saveErr := c.manager.Save(store); saveErr != nil {
				log.Printf("[ERROR] Failed to save interrupted checkpoint: %v", saveErr)
			}
			c.checkpointEvent(ctx, runKey, outputColumn, n, total, sp.size(), record)

			var terminal error
			if retryable(err) {
				terminal = &ExhaustionError{Batch: n, Total: total, Attempts: attempts, Cause: err}
			} else {
				terminal = fmt.Errorf("batch %d of %d failed: %w", n, total, err)
			}
			result := &Result{
				RunKey:       runKey,
				OutputColumn: outputColumn,
				Batches:      batchesRun,
				Rows:         rowsRun,
				TotalTime:    time.Since(runStart).Seconds(),
			}
			c.report(ctx, cfg, result, checkpoint.StatusInterrupted, terminal, work)
			return nil, terminal
		}

		record = c.batchRecord(cfg, checkpoint.StatusCompleted, runStart)
		store.UpsertBatch(runKey, outputColumn, n, record)
		if err := c.manager.Save(store); err != nil {
			return nil, fmt.Errorf("failed to checkpoint batch %d of %d: %w", n, total, err)
		}
		c.checkpointEvent(ctx, runKey, outputColumn, n, total, sp.size(), record)

		batchesRun++
		log.Printf("[INFO] Batch %d/%d completed", n, total)

		if n < total {
			cfg.Delay.Wait()
		}
	}

	log.Printf("[INFO] Run %s completed: %d batches, %d rows processed", runKey, batchesRun, rowsRun)
	result := &Result{
		RunKey:       runKey,
		OutputColumn: outputColumn,
		Output:       work.Clone(),
		Batches:      batchesRun,
		Rows:         rowsRun,
		TotalTime:    time.Since(runStart).Seconds(),
	}
	c.report(ctx, cfg, result, checkpoint.StatusCompleted, nil, work)
	return result, nil
}

// runBatch processes the rows of one batch whose output cell is still
// missing, in ascending row order. Rows with a missing source cell are
// recorded as skips without a provider call. Any row failure aborts the
// attempt; rows already written stay written, so the next attempt's
// missing-scan does not recompute them.
func (c *Controller) runBatch(ctx context.Context, work *dataset.Table, sp span, batch, total int, cfg Config, runKey, outputColumn string) (int, error) {
	rows, err := rowsToProcess(work, outputColumn, sp)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		log.Printf("[INFO] Batch %d/%d has no rows left to process", batch, total)
		return 0, nil
	}
	log.Printf("[INFO] Processing batch %d/%d (%d rows)", batch, total, len(rows))

	system := systemPrompt(cfg)
	for i, row := range rows {
		if i > 0 {
			time.Sleep(rowJitter(cfg.RowJitter))
		}

		source, err := work.Get(row, cfg.Column)
		if err != nil {
			return i, err
		}
		if dataset.IsMissing(source) {
			c.emit(ctx, EventRowResult, runKey, RowResult{
				Type:      EventRowResult,
				RunKey:    runKey,
				Column:    outputColumn,
				Batch:     batch,
				Row:       row,
				Input:     source,
				Skipped:   true,
				Timestamp: time.Now().UTC(),
			})
			log.Printf("[INFO] Row %d/%d in batch %d/%d skipped (missing source)", i+1, len(rows), batch, total)
			continue
		}

		rowStart := time.Now()
		text, err := c.client.Complete(ctx, provider.Request{
			Provider:     cfg.Provider,
			Model:        cfg.Model,
			SystemPrompt: system,
			UserContent:  source,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		})
		if err != nil {
			log.Printf("[ERROR] Row %d/%d in batch %d/%d failed: %v", i+1, len(rows), batch, total, err)
			return i, err
		}

		if cfg.Sanitize {
			text = transform.Sanitize(text, cfg.SanitizeTag)
		}
		text = transform.CaseConvert(text, cfg.Case)

		if err := work.Set(row, outputColumn, text); err != nil {
			return i, err
		}

		output := null.String{}
		if !dataset.IsMissing(text) {
			output = null.StringFrom(text)
		}
		c.emit(ctx, EventRowResult, runKey, RowResult{
			Type:      EventRowResult,
			RunKey:    runKey,
			Column:    outputColumn,
			Batch:     batch,
			Row:       row,
			Input:     source,
			Output:    output,
			ElapsedMS: time.Since(rowStart).Milliseconds(),
			Timestamp: time.Now().UTC(),
		})
		log.Printf("[INFO] Row %d/%d in batch %d/%d done", i+1, len(rows), batch, total)
	}

	return len(rows), nil
}

func (c *Controller) batchRecord(cfg Config, status checkpoint.BatchStatus, runStart time.Time) checkpoint.BatchRecord {
	return checkpoint.BatchRecord{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		TotalTime:   time.Since(runStart).Seconds(),
		Prompt:      cfg.Prompt,
		Provider:    string(cfg.Provider),
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
}

func (c *Controller) checkpointEvent(ctx context.Context, runKey, outputColumn string, batch, total, rows int, record checkpoint.BatchRecord) {
	c.emit(ctx, EventBatchCheckpoint, runKey, BatchCheckpoint{
		Type:         EventBatchCheckpoint,
		RunKey:       runKey,
		Column:       outputColumn,
		Batch:        batch,
		TotalBatches: total,
		Status:       string(record.Status),
		Rows:         rows,
		TotalTime:    record.TotalTime,
		Timestamp:    record.Timestamp,
	})
}

func (c *Controller) report(ctx context.Context, cfg Config, result *Result, status checkpoint.BatchStatus, terminal error, work *dataset.Table) {
	errText := null.String{}
	if terminal != nil {
		errText = null.StringFrom(terminal.Error())
	}
	c.emit(ctx, EventRunReport, result.RunKey, RunReport{
		Type:      EventRunReport,
		RunKey:    result.RunKey,
		Column:    result.OutputColumn,
		Provider:  string(cfg.Provider),
		Model:     cfg.Model,
		Status:    string(status),
		Batches:   result.Batches,
		Rows:      result.Rows,
		TotalTime: result.TotalTime,
		Error:     errText,
		Timestamp: time.Now().UTC(),
		Output:    work,
	})
}

// fullyPopulated reports whether every cell already holds a usable value,
// in which case the run short-circuits with zero provider calls.
func fullyPopulated(outputs []string) bool {
	for _, v := range outputs {
		if dataset.IsMissing(v) {
			return false
		}
	}
	return true
}
