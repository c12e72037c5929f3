package consumer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

func TestSaveToExcelRequiresFilePath(t *testing.T) {
	_, err := NewSaveToExcel(map[string]interface{}{})
	assert.Error(t, err)
}

func TestSaveToExcelAppendsCheckpoints(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.xlsx")
	c, err := NewSaveToExcel(map[string]interface{}{"file_path": filePath})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for batch := 1; batch <= 2; batch++ {
		event := batchCheckpointEvent{
			Type:         eventBatchCheckpoint,
			RunKey:       "reviews_ab12cd34",
			Column:       "text_9f8e7d6c",
			Batch:        batch,
			TotalBatches: 2,
			Status:       "completed",
			Rows:         5,
			TotalTime:    float64(batch) * 3.5,
			Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, c.Process(ctx, eventMessage(t, event)))
	}

	f, err := excelize.OpenFile(filePath)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Batches")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "RunKey", rows[0][0])
	assert.Equal(t, "1", rows[1][2])
	assert.Equal(t, "2", rows[2][2])
	assert.Equal(t, "completed", rows[1][4])
}

func TestSaveToExcelWritesOutputSnapshot(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.xlsx")
	c, err := NewSaveToExcel(map[string]interface{}{"file_path": filePath})
	require.NoError(t, err)
	defer c.Close()

	output := dataset.New([]string{"text", "text_9f8e7d6c"})
	require.NoError(t, output.AppendRow([]string{"great product", "positive"}))
	require.NoError(t, output.AppendRow([]string{"terrible", "negative"}))

	report := runReportEvent{
		Type:      eventRunReport,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Status:    "completed",
		Timestamp: time.Now().UTC(),
		Output:    output,
	}
	require.NoError(t, c.Process(context.Background(), eventMessage(t, report)))

	f, err := excelize.OpenFile(filePath)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Output")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"text", "text_9f8e7d6c"}, rows[0])
	assert.Equal(t, []string{"great product", "positive"}, rows[1])
	assert.Equal(t, []string{"terrible", "negative"}, rows[2])
}

func TestSaveToExcelIgnoresRowResults(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "runs.xlsx")
	c, err := NewSaveToExcel(map[string]interface{}{"file_path": filePath})
	require.NoError(t, err)
	defer c.Close()

	event := rowResultEvent{Type: eventRowResult, RunKey: "reviews_ab12cd34"}
	require.NoError(t, c.Process(context.Background(), eventMessage(t, event)))

	// Nothing was appended, so the workbook was never saved to disk.
	_, err = excelize.OpenFile(filePath)
	assert.Error(t, err)
}
