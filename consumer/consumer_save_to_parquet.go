package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/dylanpieper/batchGPT/processor"
)

// SaveToParquetConfig defines configuration for the Parquet archival consumer
type SaveToParquetConfig struct {
	StorageType             string `json:"storage_type"` // "FS", "GCS", "S3"
	BucketName              string `json:"bucket_name"`
	PathPrefix              string `json:"path_prefix"`
	LocalPath               string `json:"local_path"`  // For FS storage
	Compression             string `json:"compression"` // "snappy", "gzip", "zstd", "none"
	BufferSize              int    `json:"buffer_size"`
	RotationIntervalMinutes int    `json:"rotation_interval_minutes"`
	PartitionBy             string `json:"partition_by"` // "day", "hour", "run"
	Region                  string `json:"region"`       // For S3
	Debug                   bool   `json:"debug"`
	DryRun                  bool   `json:"dry_run"` // Log actions without writing files
}

// StorageClient interface for different storage backends
type StorageClient interface {
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// rowResultSchema is the fixed layout for archived row results. All events
// share it, so no inference pass is needed before the first flush.
var rowResultSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_key", Type: arrow.BinaryTypes.String},
	{Name: "column_name", Type: arrow.BinaryTypes.String},
	{Name: "batch", Type: arrow.PrimitiveTypes.Int32},
	{Name: "row_number", Type: arrow.PrimitiveTypes.Int32},
	{Name: "input", Type: arrow.BinaryTypes.String},
	{Name: "output", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "skipped", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "elapsed_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "event_time", Type: arrow.FixedWidthTypes.Timestamp_ms},
}, nil)

// SaveToParquet archives row results as Parquet files. A run report flushes
// the buffer so each finished run has a complete archive.
type SaveToParquet struct {
	config        SaveToParquetConfig
	storageClient StorageClient
	processors    []processor.Processor
	allocator     memory.Allocator

	// Buffering
	buffer    []rowResultEvent
	bufferMu  sync.Mutex
	lastFlush time.Time

	// Metrics
	filesWritten   int64
	recordsWritten int64
	bytesWritten   int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSaveToParquet creates a new Parquet archival consumer
func NewSaveToParquet(config map[string]interface{}) (*SaveToParquet, error) {
	var cfg SaveToParquetConfig

	if storageType, ok := config["storage_type"].(string); ok {
		cfg.StorageType = storageType
	} else {
		return nil, fmt.Errorf("storage_type is required")
	}

	if bucketName, ok := config["bucket_name"].(string); ok {
		cfg.BucketName = bucketName
	}

	if pathPrefix, ok := config["path_prefix"].(string); ok {
		cfg.PathPrefix = pathPrefix
	}

	if localPath, ok := config["local_path"].(string); ok {
		cfg.LocalPath = localPath
	}

	if compression, ok := config["compression"].(string); ok {
		cfg.Compression = compression
	} else {
		cfg.Compression = "snappy"
	}

	if bufferSize, ok := config["buffer_size"].(float64); ok {
		cfg.BufferSize = int(bufferSize)
	} else if bufferSize, ok := config["buffer_size"].(int); ok {
		cfg.BufferSize = bufferSize
	} else {
		cfg.BufferSize = 1000
	}

	if rotationIntervalMinutes, ok := config["rotation_interval_minutes"].(float64); ok {
		cfg.RotationIntervalMinutes = int(rotationIntervalMinutes)
	} else {
		cfg.RotationIntervalMinutes = 60
	}

	if partitionBy, ok := config["partition_by"].(string); ok {
		cfg.PartitionBy = partitionBy
	} else {
		cfg.PartitionBy = "day"
	}

	if region, ok := config["region"].(string); ok {
		cfg.Region = region
	}

	if debug, ok := config["debug"].(bool); ok {
		cfg.Debug = debug
	}

	if dryRun, ok := config["dry_run"].(bool); ok {
		cfg.DryRun = dryRun
	}

	// Validate required fields based on storage type
	switch cfg.StorageType {
	case "FS":
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("local_path is required for FS storage type")
		}
	case "GCS":
		if cfg.BucketName == "" {
			return nil, fmt.Errorf("bucket_name is required for GCS storage type")
		}
	case "S3":
		if cfg.BucketName == "" {
			return nil, fmt.Errorf("bucket_name is required for S3 storage type")
		}
		if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("unsupported storage_type: %s", cfg.StorageType)
	}

	storageClient, err := createStorageClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Wrap with retry logic
	storageClient = NewRetryableStorageClient(storageClient, 3)

	ctx, cancel := context.WithCancel(context.Background())

	consumer := &SaveToParquet{
		config:        cfg,
		storageClient: storageClient,
		processors:    []processor.Processor{},
		allocator:     memory.NewGoAllocator(),
		buffer:        make([]rowResultEvent, 0, cfg.BufferSize),
		lastFlush:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}

	// Start periodic flush goroutine
	go consumer.periodicFlush()

	log.Printf("SaveToParquet: Consumer initialized with storage type %s", cfg.StorageType)

	return consumer, nil
}

// Subscribe adds a processor to the subscription list
func (s *SaveToParquet) Subscribe(p processor.Processor) {
	s.processors = append(s.processors, p)
}

// Process handles incoming messages
func (s *SaveToParquet) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("unsupported payload type: %T", msg.Payload)
	}

	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()

	switch eventType(payloadBytes) {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal row result: %w", err)
		}
		s.buffer = append(s.buffer, event)

		if s.config.Debug {
			log.Printf("Buffered row result. Buffer size: %d/%d", len(s.buffer), s.config.BufferSize)
		}

		if len(s.buffer) >= s.config.BufferSize {
			if s.config.Debug {
				log.Printf("Buffer full, triggering flush")
			}
			return s.flush()
		}
		return nil

	case eventRunReport:
		// End of a run: flush so the archive covers the whole run
		return s.flush()

	default:
		return nil
	}
}

// flush writes buffered data to a Parquet file
func (s *SaveToParquet) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	log.Printf("Flushing %d records to Parquet", len(s.buffer))

	if s.config.DryRun {
		filePath := s.generateFilePath()
		log.Printf("[DRY RUN] Would write %d records to %s", len(s.buffer), filePath)
		s.buffer = s.buffer[:0]
		s.lastFlush = time.Now()
		return nil
	}

	recordBatch, err := s.buildRecordBatch()
	if err != nil {
		return fmt.Errorf("failed to build Arrow batch: %w", err)
	}
	defer recordBatch.Release()

	parquetData, err := s.writeParquet(recordBatch)
	if err != nil {
		return fmt.Errorf("failed to write Parquet: %w", err)
	}

	filePath := s.generateFilePath()

	if err := s.storageClient.Write(s.ctx, filePath, parquetData); err != nil {
		return fmt.Errorf("failed to write to storage: %w", err)
	}

	s.filesWritten++
	s.recordsWritten += int64(len(s.buffer))
	s.bytesWritten += int64(len(parquetData))

	log.Printf("Written Parquet file: %s (%d records, %d bytes)", filePath, len(s.buffer), len(parquetData))

	s.buffer = s.buffer[:0]
	s.lastFlush = time.Now()

	return nil
}

// buildRecordBatch converts buffered events into one Arrow record
func (s *SaveToParquet) buildRecordBatch() (arrow.Record, error) {
	builder := array.NewRecordBuilder(s.allocator, rowResultSchema)
	defer builder.Release()

	runKeys := builder.Field(0).(*array.StringBuilder)
	columns := builder.Field(1).(*array.StringBuilder)
	batches := builder.Field(2).(*array.Int32Builder)
	rowNumbers := builder.Field(3).(*array.Int32Builder)
	inputs := builder.Field(4).(*array.StringBuilder)
	outputs := builder.Field(5).(*array.StringBuilder)
	skips := builder.Field(6).(*array.BooleanBuilder)
	elapsed := builder.Field(7).(*array.Int64Builder)
	eventTimes := builder.Field(8).(*array.TimestampBuilder)

	for _, event := range s.buffer {
		runKeys.Append(event.RunKey)
		columns.Append(event.Column)
		batches.Append(int32(event.Batch))
		rowNumbers.Append(int32(event.Row))
		inputs.Append(event.Input)
		if event.Output.Valid {
			outputs.Append(event.Output.String)
		} else {
			outputs.AppendNull()
		}
		skips.Append(event.Skipped)
		elapsed.Append(event.ElapsedMS)
		eventTimes.Append(arrow.Timestamp(event.Timestamp.UnixMilli()))
	}

	return builder.NewRecord(), nil
}

// generateFilePath generates the output file path based on the partitioning
// strategy. Must be called with the buffer lock held and the buffer non-empty.
func (s *SaveToParquet) generateFilePath() string {
	now := time.Now().UTC()
	first := s.buffer[0]

	var partPath string
	switch s.config.PartitionBy {
	case "run":
		partPath = fmt.Sprintf("run_key=%s/column=%s", first.RunKey, first.Column)

	case "hour":
		partPath = fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d",
			now.Year(), now.Month(), now.Day(), now.Hour())

	default:
		// Daily partitions
		partPath = fmt.Sprintf("year=%d/month=%02d/day=%02d",
			now.Year(), now.Month(), now.Day())
	}

	filename := fmt.Sprintf("row-results-%d-%d.parquet", len(s.buffer), now.UnixNano())

	var pathComponents []string
	if s.config.PathPrefix != "" {
		pathComponents = append(pathComponents, s.config.PathPrefix)
	}
	pathComponents = append(pathComponents, partPath, filename)

	fullPath := strings.Join(pathComponents, "/")

	for strings.Contains(fullPath, "//") {
		fullPath = strings.ReplaceAll(fullPath, "//", "/")
	}
	fullPath = strings.TrimPrefix(fullPath, "/")

	return fullPath
}

// periodicFlush handles time-based flushing
func (s *SaveToParquet) periodicFlush() {
	ticker := time.NewTicker(time.Duration(s.config.RotationIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.bufferMu.Lock()
			timeSinceFlush := time.Since(s.lastFlush)
			if timeSinceFlush >= time.Duration(s.config.RotationIntervalMinutes)*time.Minute && len(s.buffer) > 0 {
				if err := s.flush(); err != nil {
					log.Printf("Error in periodic flush: %v", err)
				}
			}
			s.bufferMu.Unlock()

		case <-s.ctx.Done():
			return
		}
	}
}

// Close flushes remaining data and closes the consumer
func (s *SaveToParquet) Close() error {
	s.cancel()

	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()

	if len(s.buffer) > 0 {
		if err := s.flush(); err != nil {
			return fmt.Errorf("error flushing on close: %w", err)
		}
	}

	if err := s.storageClient.Close(); err != nil {
		return fmt.Errorf("error closing storage client: %w", err)
	}

	log.Printf("Parquet archival consumer closed. Files written: %d, Records: %d, Bytes: %d",
		s.filesWritten, s.recordsWritten, s.bytesWritten)

	return nil
}

// writeParquet writes an Arrow record to Parquet format
func (s *SaveToParquet) writeParquet(record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer

	props := parquet.NewWriterProperties(
		parquet.WithCompression(s.getCompressionType()),
		parquet.WithDataPageSize(1024*1024), // 1MB data pages
	)

	writer, err := pqarrow.NewFileWriter(record.Schema(), &buf, props, pqarrow.NewArrowWriterProperties())
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record: %w", err)
	}

	// Close writer to finalize
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// getCompressionType returns the Parquet compression type
func (s *SaveToParquet) getCompressionType() compress.Compression {
	switch s.config.Compression {
	case "snappy":
		return compress.Codecs.Snappy
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4
	case "brotli":
		return compress.Codecs.Brotli
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// GetMetrics returns consumer metrics
func (s *SaveToParquet) GetMetrics() map[string]interface{} {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()

	return map[string]interface{}{
		"files_written":   s.filesWritten,
		"records_written": s.recordsWritten,
		"bytes_written":   s.bytesWritten,
		"buffer_size":     len(s.buffer),
	}
}
