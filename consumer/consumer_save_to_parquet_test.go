package consumer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanpieper/batchGPT/processor"
)

func TestNewSaveToParquet(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid FS configuration",
			config: map[string]interface{}{
				"storage_type": "FS",
				"local_path":   t.TempDir(),
			},
			wantErr: false,
		},
		{
			name:    "missing storage type",
			config:  map[string]interface{}{},
			wantErr: true,
			errMsg:  "storage_type is required",
		},
		{
			name: "FS without local path",
			config: map[string]interface{}{
				"storage_type": "FS",
			},
			wantErr: true,
			errMsg:  "local_path is required",
		},
		{
			name: "unsupported storage type",
			config: map[string]interface{}{
				"storage_type": "FTP",
			},
			wantErr: true,
			errMsg:  "unsupported storage_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewSaveToParquet(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, c.Close())
		})
	}
}

func TestSaveToParquetConfigDefaults(t *testing.T) {
	c, err := NewSaveToParquet(map[string]interface{}{
		"storage_type": "FS",
		"local_path":   t.TempDir(),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "snappy", c.config.Compression)
	assert.Equal(t, 1000, c.config.BufferSize)
	assert.Equal(t, 60, c.config.RotationIntervalMinutes)
	assert.Equal(t, "day", c.config.PartitionBy)
}

func TestGenerateFilePath(t *testing.T) {
	event := rowResultEvent{
		RunKey: "reviews_ab12cd34",
		Column: "text_9f8e7d6c",
	}

	tests := []struct {
		name        string
		partitionBy string
		pathPrefix  string
		contains    []string
	}{
		{
			name:        "daily partitions",
			partitionBy: "day",
			contains:    []string{"year=", "month=", "day=", "row-results-"},
		},
		{
			name:        "hourly partitions",
			partitionBy: "hour",
			contains:    []string{"year=", "hour=", "row-results-"},
		},
		{
			name:        "run partitions",
			partitionBy: "run",
			contains:    []string{"run_key=reviews_ab12cd34", "column=text_9f8e7d6c"},
		},
		{
			name:        "path prefix prepended",
			partitionBy: "day",
			pathPrefix:  "archives/batch",
			contains:    []string{"archives/batch/year="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &SaveToParquet{
				config: SaveToParquetConfig{
					PartitionBy: tt.partitionBy,
					PathPrefix:  tt.pathPrefix,
				},
				buffer: []rowResultEvent{event},
			}

			path := s.generateFilePath()
			for _, fragment := range tt.contains {
				assert.Contains(t, path, fragment)
			}
			assert.False(t, strings.HasPrefix(path, "/"))
			assert.NotContains(t, path, "//")
			assert.True(t, strings.HasSuffix(path, ".parquet"))
		})
	}
}

func TestParquetFlushOnFullBuffer(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSaveToParquet(map[string]interface{}{
		"storage_type": "FS",
		"local_path":   dir,
		"buffer_size":  2,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for row := 0; row < 2; row++ {
		event := rowResultEvent{
			Type:      eventRowResult,
			RunKey:    "reviews_ab12cd34",
			Column:    "text_9f8e7d6c",
			Batch:     1,
			Row:       row,
			Input:     "great product",
			Output:    null.StringFrom("positive"),
			ElapsedMS: 300,
			Timestamp: time.Now().UTC(),
		}
		require.NoError(t, c.Process(ctx, eventMessage(t, event)))
	}
	require.NoError(t, c.Close())

	files, err := filepath.Glob(filepath.Join(dir, "year=*", "month=*", "day=*", "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	assert.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}

func TestParquetRunReportTriggersFlush(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSaveToParquet(map[string]interface{}{
		"storage_type": "FS",
		"local_path":   dir,
		"partition_by": "run",
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	row := rowResultEvent{
		Type:      eventRowResult,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Batch:     1,
		Row:       0,
		Input:     "terrible",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, eventMessage(t, row)))

	report := runReportEvent{
		Type:      eventRunReport,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Status:    "completed",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(ctx, eventMessage(t, report)))

	files, err := filepath.Glob(filepath.Join(dir, "run_key=*", "column=*", "*.parquet"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestParquetDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	c, err := NewSaveToParquet(map[string]interface{}{
		"storage_type": "FS",
		"local_path":   dir,
		"buffer_size":  1,
		"dry_run":      true,
	})
	require.NoError(t, err)

	event := rowResultEvent{
		Type:      eventRowResult,
		RunKey:    "reviews_ab12cd34",
		Column:    "text_9f8e7d6c",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, c.Process(context.Background(), eventMessage(t, event)))
	require.NoError(t, c.Close())

	files, err := filepath.Glob(filepath.Join(dir, "*", "*", "*", "*.parquet"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParquetRejectsNonBytePayload(t *testing.T) {
	c, err := NewSaveToParquet(map[string]interface{}{
		"storage_type": "FS",
		"local_path":   t.TempDir(),
	})
	require.NoError(t, err)
	defer c.Close()

	err = c.Process(context.Background(), processor.Message{Payload: struct{}{}})
	assert.Error(t, err)
}
