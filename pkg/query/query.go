// Package query is the read-only reporting surface over a checkpoint
// store: flattened batch history and stored run outputs.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dylanpieper/batchGPT/pkg/checkpoint"
	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// BatchRow is one flattened batch record.
type BatchRow struct {
	Dataset     string    `json:"dataset"`
	Column      string    `json:"column"`
	BatchNumber int       `json:"batch_number"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	TotalTime   float64   `json:"total_time"`
	Prompt      string    `json:"prompt"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
}

// Filter narrows ListBatches output. The zero value matches everything.
type Filter struct {
	RunKey string
	Column string
}

func (f Filter) matches(runKey, column string) bool {
	if f.RunKey != "" && f.RunKey != runKey {
		return false
	}
	if f.Column != "" && f.Column != column {
		return false
	}
	return true
}

// ListBatches flattens every batch record in the store into report rows,
// ordered by run key, then column, then batch number.
func ListBatches(store *checkpoint.Store, filter Filter) []BatchRow {
	var rows []BatchRow
	for _, runKey := range store.RunKeys() {
		rec := store.GetRun(runKey)
		if rec == nil {
			continue
		}

		columns := make([]string, 0, len(rec.Metadata))
		for name := range rec.Metadata {
			columns = append(columns, name)
		}
		sort.Strings(columns)

		for _, column := range columns {
			if !filter.matches(runKey, column) {
				continue
			}
			col := rec.Metadata[column]
			for _, n := range col.BatchNumbers() {
				record := col.Batches[strconv.Itoa(n)]
				rows = append(rows, BatchRow{
					Dataset:     runKey,
					Column:      column,
					BatchNumber: n,
					Status:      string(record.Status),
					Timestamp:   record.Timestamp,
					TotalTime:   record.TotalTime,
					Prompt:      record.Prompt,
					Provider:    record.Provider,
					Model:       record.Model,
					Temperature: record.Temperature,
				})
			}
		}
	}
	return rows
}

// GetOutput returns the stored output table for a run key.
func GetOutput(store *checkpoint.Store, runKey string) (*dataset.Table, error) {
	rec := store.GetRun(runKey)
	if rec == nil {
		return nil, fmt.Errorf("run %q not found in checkpoint store", runKey)
	}
	if rec.Output == nil {
		return nil, fmt.Errorf("run %q has no stored output", runKey)
	}
	return rec.Output.Clone(), nil
}

// RunSummary describes one run for listings.
type RunSummary struct {
	RunKey  string    `json:"run_key"`
	Rows    int       `json:"rows"`
	Columns int       `json:"columns"`
	Batches int       `json:"batches"`
	Updated time.Time `json:"updated"`
}

// Runs summarizes every run in the store in run-key order.
func Runs(store *checkpoint.Store) []RunSummary {
	var summaries []RunSummary
	for _, runKey := range store.RunKeys() {
		rec := store.GetRun(runKey)
		if rec == nil {
			continue
		}

		summary := RunSummary{RunKey: runKey, Columns: len(rec.Metadata)}
		if rec.Output != nil {
			summary.Rows = rec.Output.NumRows()
		}
		for _, col := range rec.Metadata {
			summary.Batches += len(col.Batches)
			for _, record := range col.Batches {
				if record.Timestamp.After(summary.Updated) {
					summary.Updated = record.Timestamp
				}
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
