package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanpieper/batchGPT/processor"
)

func newSQLiteConsumer(t *testing.T) *SaveToSQLite {
	t.Helper()

	c, err := NewSaveToSQLite(map[string]interface{}{
		"db_path": filepath.Join(t.TempDir(), "runs.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func eventMessage(t *testing.T, payload interface{}) processor.Message {
	t.Helper()

	jsonBytes, err := json.Marshal(payload)
	require.NoError(t, err)
	return processor.Message{Payload: jsonBytes}
}

func TestSaveToSQLiteRowResultUpsert(t *testing.T) {
	c := newSQLiteConsumer(t)
	ctx := context.Background()

	first := rowResultEvent{
		Type:      eventRowResult,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Batch:     1,
		Row:       3,
		Input:     "great product",
		Output:    null.StringFrom("positive"),
		ElapsedMS: 420,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, eventMessage(t, first)))

	// A retried batch replays the row with a fresh completion.
	second := first
	second.Batch = 1
	second.Output = null.StringFrom("negative")
	second.ElapsedMS = 510
	require.NoError(t, c.Process(ctx, eventMessage(t, second)))

	var count int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM row_results`).Scan(&count))
	assert.Equal(t, 1, count)

	var output sql.NullString
	var elapsed int64
	require.NoError(t, c.db.QueryRow(
		`SELECT output, elapsed_ms FROM row_results WHERE run_key = ? AND column_name = ? AND row_number = ?`,
		first.RunKey, first.Column, first.Row,
	).Scan(&output, &elapsed))
	assert.True(t, output.Valid)
	assert.Equal(t, "negative", output.String)
	assert.Equal(t, int64(510), elapsed)
}

func TestSaveToSQLiteSkippedRowStoresNull(t *testing.T) {
	c := newSQLiteConsumer(t)

	event := rowResultEvent{
		Type:      eventRowResult,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Batch:     2,
		Row:       7,
		Input:     "",
		Skipped:   true,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(context.Background(), eventMessage(t, event)))

	var output sql.NullString
	var skipped bool
	require.NoError(t, c.db.QueryRow(
		`SELECT output, skipped FROM row_results WHERE row_number = 7`,
	).Scan(&output, &skipped))
	assert.False(t, output.Valid)
	assert.True(t, skipped)
}

func TestSaveToSQLiteCheckpointOverwrite(t *testing.T) {
	c := newSQLiteConsumer(t)
	ctx := context.Background()

	checkpoint := batchCheckpointEvent{
		Type:         eventBatchCheckpoint,
		RunKey:       "reviews_ab12cd34",
		Column:       "text_9f8e7d6c",
		Batch:        2,
		TotalBatches: 4,
		Status:       "in_progress",
		Timestamp:    time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, eventMessage(t, checkpoint)))

	checkpoint.Status = "completed"
	checkpoint.Rows = 10
	checkpoint.TotalTime = 12.5
	require.NoError(t, c.Process(ctx, eventMessage(t, checkpoint)))

	var count int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM batch_checkpoints`).Scan(&count))
	assert.Equal(t, 1, count)

	var status string
	var totalTime float64
	require.NoError(t, c.db.QueryRow(
		`SELECT status, total_time FROM batch_checkpoints WHERE batch = 2`,
	).Scan(&status, &totalTime))
	assert.Equal(t, "completed", status)
	assert.Equal(t, 12.5, totalTime)
}

func TestSaveToSQLiteRunReport(t *testing.T) {
	c := newSQLiteConsumer(t)

	report := runReportEvent{
		Type:      eventRunReport,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Status:    "completed",
		Batches:   4,
		Rows:      40,
		TotalTime: 98.2,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(context.Background(), eventMessage(t, report)))

	var status string
	var errText sql.NullString
	require.NoError(t, c.db.QueryRow(
		`SELECT status, error FROM run_reports WHERE run_key = ?`, report.RunKey,
	).Scan(&status, &errText))
	assert.Equal(t, "completed", status)
	assert.False(t, errText.Valid)
}

func TestSaveToSQLiteIgnoresUnknownEvents(t *testing.T) {
	c := newSQLiteConsumer(t)

	msg := processor.Message{Payload: []byte(`{"type":"heartbeat"}`)}
	require.NoError(t, c.Process(context.Background(), msg))

	var count int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM row_results`).Scan(&count))
	assert.Zero(t, count)
}

func TestSaveToSQLiteRejectsNonBytePayload(t *testing.T) {
	c := newSQLiteConsumer(t)

	err := c.Process(context.Background(), processor.Message{Payload: 42})
	assert.Error(t, err)
}
