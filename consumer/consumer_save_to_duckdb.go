package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/dylanpieper/batchGPT/processor"
)

// SaveToDuckDB appends run events to a local DuckDB file for ad-hoc
// analytics. Inserts are append-only; the run_progress view collapses
// replayed checkpoints to the latest state per batch.
type SaveToDuckDB struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToDuckDB(config map[string]interface{}) (*SaveToDuckDB, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "runs.duckdb"
	}

	// Open DuckDB connection
	db, err := sql.Open("duckdb", dbPath+"?access_mode=READ_WRITE")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %v", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DuckDB: %v", err)
	}

	if err := initializeTables(db); err != nil {
		return nil, err
	}

	return &SaveToDuckDB{
		db: db,
	}, nil
}

func initializeTables(db *sql.DB) error {
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS row_results (
            run_key VARCHAR,
            column_name VARCHAR,
            row_number INTEGER,
            batch INTEGER,
            input VARCHAR,
            output VARCHAR,
            skipped BOOLEAN,
            elapsed_ms BIGINT,
            event_time TIMESTAMP,
            created_at TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create row_results table: %v", err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS batch_checkpoints (
            run_key VARCHAR,
            column_name VARCHAR,
            batch INTEGER,
            total_batches INTEGER,
            status VARCHAR,
            row_count INTEGER,
            total_time DOUBLE,
            event_time TIMESTAMP,
            created_at TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create batch_checkpoints table: %v", err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS run_reports (
            run_key VARCHAR,
            column_name VARCHAR,
            provider VARCHAR,
            model VARCHAR,
            status VARCHAR,
            batches INTEGER,
            row_count INTEGER,
            total_time DOUBLE,
            error VARCHAR,
            event_time TIMESTAMP,
            created_at TIMESTAMP
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create run_reports table: %v", err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE OR REPLACE VIEW run_progress AS
        SELECT run_key,
               column_name,
               count(DISTINCT batch) FILTER (WHERE status = 'completed') AS completed_batches,
               max(total_batches) AS total_batches,
               max(total_time) AS total_time
        FROM batch_checkpoints
        GROUP BY run_key, column_name
    `)
	if err != nil {
		return fmt.Errorf("failed to create run_progress view: %v", err)
	}

	log.Println("DuckDB tables initialized successfully")
	return nil
}

func (d *SaveToDuckDB) Subscribe(processor processor.Processor) {
	d.processors = append(d.processors, processor)
}

func (d *SaveToDuckDB) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type for message.Payload, got %T", msg.Payload)
	}

	switch eventType(payloadBytes) {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal row result: %v", err)
		}
		return d.insertRowResult(ctx, &event)

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal batch checkpoint: %v", err)
		}
		return d.insertCheckpoint(ctx, &event)

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal run report: %v", err)
		}
		return d.insertReport(ctx, &event)

	default:
		return nil
	}
}

func (d *SaveToDuckDB) insertRowResult(ctx context.Context, event *rowResultEvent) error {
	stmt, err := d.db.PrepareContext(ctx, `
        INSERT INTO row_results (
            run_key, column_name, row_number, batch, input,
            output, skipped, elapsed_ms, event_time, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare row result statement: %v", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.RunKey,
		event.Column,
		event.Row,
		event.Batch,
		event.Input,
		event.Output,
		event.Skipped,
		event.ElapsedMS,
		event.Timestamp,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert row result: %v", err)
	}

	return nil
}

func (d *SaveToDuckDB) insertCheckpoint(ctx context.Context, event *batchCheckpointEvent) error {
	stmt, err := d.db.PrepareContext(ctx, `
        INSERT INTO batch_checkpoints (
            run_key, column_name, batch, total_batches, status,
            row_count, total_time, event_time, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare checkpoint statement: %v", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.RunKey,
		event.Column,
		event.Batch,
		event.TotalBatches,
		event.Status,
		event.Rows,
		event.TotalTime,
		event.Timestamp,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch checkpoint: %v", err)
	}

	return nil
}

func (d *SaveToDuckDB) insertReport(ctx context.Context, event *runReportEvent) error {
	stmt, err := d.db.PrepareContext(ctx, `
        INSERT INTO run_reports (
            run_key, column_name, provider, model, status,
            batches, row_count, total_time, error, event_time, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare run report statement: %v", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.RunKey,
		event.Column,
		event.Provider,
		event.Model,
		event.Status,
		event.Batches,
		event.Rows,
		event.TotalTime,
		event.Error,
		event.Timestamp,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run report: %v", err)
	}

	log.Printf("Run report recorded for %s (%s)", event.RunKey, event.Status)
	return nil
}

func (d *SaveToDuckDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
