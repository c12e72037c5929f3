package consumer

import (
	"time"

	"github.com/guregu/null"
	"github.com/tidwall/gjson"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// Event type tags, matching the engine's payload bodies. Consumers parse
// events from the forwarded JSON bytes rather than importing the engine.
const (
	eventRowResult       = "row_result"
	eventBatchCheckpoint = "batch_checkpoint"
	eventRunReport       = "run_report"
)

type rowResultEvent struct {
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

type batchCheckpointEvent struct {
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

type runReportEvent struct {
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

// eventType reads the type tag without decoding the whole payload.
func eventType(jsonBytes []byte) string {
	return gjson.GetBytes(jsonBytes, "type").String()
}
