package engine

import (
	"time"

	"github.com/guregu/null"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// Event type tags carried in both the payload body and the message metadata.
const (
	EventRowResult       = "row_result"
	EventBatchCheckpoint = "batch_checkpoint"
	EventRunReport       = "run_report"
)

// RowResult is emitted once per row the scheduler visits, including rows
// skipped because their source cell is missing.
type RowResult struct {
	Type      string      `json:"type"`
	RunKey    string      `json:"run_key"`
	Column    string      `json:"column"`
	Batch     int         `json:"batch"`
	Row       int         `json:"row"`
	Input     string      `json:"input"`
	Output    null.String `json:"output"`
	Skipped   bool        `json:"skipped"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Timestamp time.Time   `json:"timestamp"`
}

// BatchCheckpoint is emitted every time a batch record is persisted, so
// downstream sinks can mirror the store's batch history.
type BatchCheckpoint struct {
	Type         string    `json:"type"`
	RunKey       string    `json:"run_key"`
	Column       string    `json:"column"`
	Batch        int       `json:"batch"`
	TotalBatches int       `json:"total_batches"`
	Status       string    `json:"status"`
	Rows         int       `json:"rows"`
	TotalTime    float64   `json:"total_time"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunReport is emitted once at the end of a run, successful or not. It
// carries the full output snapshot so sink consumers can persist results
// without reading the checkpoint store themselves.
type RunReport struct {
	Type      string         `json:"type"`
	RunKey    string         `json:"run_key"`
	Column    string         `json:"column"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Status    string         `json:"status"`
	Batches   int            `json:"batches"`
	Rows      int            `json:"rows"`
	TotalTime float64        `json:"total_time"`
	Error     null.String    `json:"error"`
	Timestamp time.Time      `json:"timestamp"`
	Output    *dataset.Table `json:"output"`
}
