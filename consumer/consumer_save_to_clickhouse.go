package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/dylanpieper/batchGPT/processor"
)

type SaveToClickHouse struct {
	conn       driver.Conn
	processors []processor.Processor
}

type ClickHouseConfig struct {
	Address      string
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
}

func NewSaveToClickHouse(config map[string]interface{}) (*SaveToClickHouse, error) {
	chConfig, err := parseClickHouseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	clickhouseconn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{chConfig.Address},
		Auth: clickhouse.Auth{
			Database: chConfig.Database,
			Username: chConfig.Username,
			Password: chConfig.Password,
		},
		MaxOpenConns: chConfig.MaxOpenConns,
		MaxIdleConns: chConfig.MaxIdleConns,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to ClickHouse: %w", err)
	}

	if err := initializeClickHouseTables(clickhouseconn); err != nil {
		return nil, fmt.Errorf("error initializing tables: %w", err)
	}

	return &SaveToClickHouse{
		conn: clickhouseconn,
	}, nil
}

func parseClickHouseConfig(config map[string]interface{}) (ClickHouseConfig, error) {
	var chConfig ClickHouseConfig

	addr, ok := config["address"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing address in config")
	}
	chConfig.Address = addr

	dbname, ok := config["database"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing database in config")
	}
	chConfig.Database = dbname

	username, ok := config["username"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing username in config")
	}
	chConfig.Username = username

	password, ok := config["password"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing password in config")
	}
	chConfig.Password = password

	// Set defaults for connection pools
	chConfig.MaxOpenConns = 10
	chConfig.MaxIdleConns = 5

	if maxOpen, ok := config["max_open_conns"].(int); ok {
		chConfig.MaxOpenConns = maxOpen
	}
	if maxIdle, ok := config["max_idle_conns"].(int); ok {
		chConfig.MaxIdleConns = maxIdle
	}

	return chConfig, nil
}

func initializeClickHouseTables(conn driver.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS row_results (
            event_time DateTime,
            run_key String,
            column_name LowCardinality(String),
            batch UInt32,
            row_number UInt32,
            input String,
            output Nullable(String),
            skipped Bool,
            elapsed_ms Int64,
            date Date MATERIALIZED toDate(event_time),
            created_at DateTime DEFAULT now()
        ) ENGINE = MergeTree()
        PARTITION BY toYYYYMM(date)
        ORDER BY (run_key, column_name, batch, row_number)`,

		`CREATE TABLE IF NOT EXISTS batch_checkpoints (
            event_time DateTime,
            run_key String,
            column_name LowCardinality(String),
            batch UInt32,
            total_batches UInt32,
            status LowCardinality(String),
            row_count UInt32,
            total_time Float64,
            date Date MATERIALIZED toDate(event_time),
            created_at DateTime DEFAULT now()
        ) ENGINE = MergeTree()
        PARTITION BY toYYYYMM(date)
        ORDER BY (run_key, column_name, batch, event_time)`,

		`CREATE TABLE IF NOT EXISTS run_reports (
            event_time DateTime,
            run_key String,
            column_name LowCardinality(String),
            provider LowCardinality(String),
            model LowCardinality(String),
            status LowCardinality(String),
            batches UInt32,
            row_count UInt32,
            total_time Float64,
            error Nullable(String),
            date Date MATERIALIZED toDate(event_time),
            created_at DateTime DEFAULT now()
        ) ENGINE = MergeTree()
        PARTITION BY toYYYYMM(date)
        ORDER BY (run_key, column_name, event_time)`,

		// Materialized view for throughput analytics
		`CREATE MATERIALIZED VIEW IF NOT EXISTS run_hourly_stats
        ENGINE = SummingMergeTree()
        PARTITION BY toYYYYMM(date)
        ORDER BY (date, hour, run_key, column_name)
        AS SELECT
            toDate(event_time) as date,
            toHour(event_time) as hour,
            run_key,
            column_name,
            count() as rows_seen,
            countIf(skipped) as rows_skipped,
            sum(elapsed_ms) as total_elapsed_ms
        FROM row_results
        GROUP BY date, hour, run_key, column_name`,
	}

	for _, query := range queries {
		err := conn.Exec(context.Background(), query)
		if err != nil {
			return fmt.Errorf("error executing query: %s: %w", query, err)
		}
	}

	return nil
}

func (ch *SaveToClickHouse) Subscribe(processor processor.Processor) {
	ch.processors = append(ch.processors, processor)
}

func (ch *SaveToClickHouse) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}

	switch eventType(payloadBytes) {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("error unmarshaling row result: %w", err)
		}
		return ch.insertRowResult(ctx, event)

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("error unmarshaling batch checkpoint: %w", err)
		}
		return ch.insertCheckpoint(ctx, event)

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("error unmarshaling run report: %w", err)
		}
		return ch.insertReport(ctx, event)

	default:
		return nil
	}
}

func (ch *SaveToClickHouse) insertRowResult(ctx context.Context, event rowResultEvent) error {
	query := `
        INSERT INTO row_results (
            event_time, run_key, column_name, batch, row_number,
            input, output, skipped, elapsed_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	err := ch.conn.Exec(ctx, query,
		event.Timestamp,
		event.RunKey,
		event.Column,
		uint32(event.Batch),
		uint32(event.Row),
		event.Input,
		event.Output.Ptr(),
		event.Skipped,
		event.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("error inserting row result: %w", err)
	}

	return nil
}

func (ch *SaveToClickHouse) insertCheckpoint(ctx context.Context, event batchCheckpointEvent) error {
	query := `
        INSERT INTO batch_checkpoints (
            event_time, run_key, column_name, batch, total_batches,
            status, row_count, total_time
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `

	err := ch.conn.Exec(ctx, query,
		event.Timestamp,
		event.RunKey,
		event.Column,
		uint32(event.Batch),
		uint32(event.TotalBatches),
		event.Status,
		uint32(event.Rows),
		event.TotalTime,
	)
	if err != nil {
		return fmt.Errorf("error inserting batch checkpoint: %w", err)
	}

	return nil
}

func (ch *SaveToClickHouse) insertReport(ctx context.Context, event runReportEvent) error {
	query := `
        INSERT INTO run_reports (
            event_time, run_key, column_name, provider, model,
            status, batches, row_count, total_time, error
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	err := ch.conn.Exec(ctx, query,
		event.Timestamp,
		event.RunKey,
		event.Column,
		event.Provider,
		event.Model,
		event.Status,
		uint32(event.Batches),
		uint32(event.Rows),
		event.TotalTime,
		event.Error.Ptr(),
	)
	if err != nil {
		return fmt.Errorf("error inserting run report: %w", err)
	}

	return nil
}

func (ch *SaveToClickHouse) Close() error {
	return ch.conn.Close()
}

// GetRunThroughput reads the hourly materialized view for one output column.
func (ch *SaveToClickHouse) GetRunThroughput(ctx context.Context, runKey, column string, start, end time.Time) ([]map[string]interface{}, error) {
	query := `
        SELECT
            date,
            hour,
            rows_seen,
            rows_skipped,
            total_elapsed_ms
        FROM run_hourly_stats
        WHERE run_key = ? AND column_name = ?
            AND date BETWEEN ? AND ?
        ORDER BY date, hour
    `

	rows, err := ch.conn.Query(ctx, query, runKey, column, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		var (
			date           time.Time
			hour           uint8
			rowsSeen       uint64
			rowsSkipped    uint64
			totalElapsedMS int64
		)

		if err := rows.Scan(
			&date,
			&hour,
			&rowsSeen,
			&rowsSkipped,
			&totalElapsedMS,
		); err != nil {
			return nil, err
		}

		results = append(results, map[string]interface{}{
			"date":             date,
			"hour":             hour,
			"rows_seen":        rowsSeen,
			"rows_skipped":     rowsSkipped,
			"total_elapsed_ms": totalElapsedMS,
		})
	}

	return results, nil
}
