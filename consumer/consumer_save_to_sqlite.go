package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dylanpieper/batchGPT/processor"
)

// SaveToSQLite mirrors run history into a local SQLite database: one table
// per event kind, keyed so replayed events upsert instead of duplicating.
type SaveToSQLite struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToSQLite(config map[string]interface{}) (*SaveToSQLite, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "runs.sqlite"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %v", err)
	}

	// Set pragmas for better performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set SQLite pragmas: %v", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS row_results (
            run_key TEXT NOT NULL,
            column_name TEXT NOT NULL,
            batch INTEGER NOT NULL,
            row_number INTEGER NOT NULL,
            input TEXT,
            output TEXT,
            skipped INTEGER NOT NULL DEFAULT 0,
            elapsed_ms INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY (run_key, column_name, row_number)
        );

        CREATE TABLE IF NOT EXISTS batch_checkpoints (
            run_key TEXT NOT NULL,
            column_name TEXT NOT NULL,
            batch INTEGER NOT NULL,
            total_batches INTEGER NOT NULL,
            status TEXT NOT NULL,
            row_count INTEGER NOT NULL,
            total_time REAL NOT NULL,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY (run_key, column_name, batch)
        );

        CREATE TABLE IF NOT EXISTS run_reports (
            run_key TEXT NOT NULL,
            column_name TEXT NOT NULL,
            provider TEXT NOT NULL,
            model TEXT NOT NULL,
            status TEXT NOT NULL,
            batches INTEGER NOT NULL,
            row_count INTEGER NOT NULL,
            total_time REAL NOT NULL,
            error TEXT,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY (run_key, column_name)
        );

        CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON batch_checkpoints(status);
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SaveToSQLite{
		db:         db,
		processors: make([]processor.Processor, 0),
	}, nil
}

func (d *SaveToSQLite) Subscribe(processor processor.Processor) {
	d.processors = append(d.processors, processor)
}

func (d *SaveToSQLite) Process(ctx context.Context, msg processor.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	jsonBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte, got %T", msg.Payload)
	}

	switch eventType(jsonBytes) {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(jsonBytes, &event); err != nil {
			return fmt.Errorf("error decoding row result: %w", err)
		}
		return d.saveRowResult(ctx, event)

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(jsonBytes, &event); err != nil {
			return fmt.Errorf("error decoding batch checkpoint: %w", err)
		}
		return d.saveCheckpoint(ctx, event)

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(jsonBytes, &event); err != nil {
			return fmt.Errorf("error decoding run report: %w", err)
		}
		return d.saveReport(ctx, event)

	default:
		return nil
	}
}

func (d *SaveToSQLite) saveRowResult(ctx context.Context, event rowResultEvent) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO row_results (
            run_key, column_name, batch, row_number, input, output,
            skipped, elapsed_ms, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_key, column_name, row_number) DO UPDATE SET
            batch = excluded.batch,
            output = excluded.output,
            skipped = excluded.skipped,
            elapsed_ms = excluded.elapsed_ms,
            created_at = excluded.created_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		event.RunKey,
		event.Column,
		event.Batch,
		event.Row,
		event.Input,
		event.Output,
		event.Skipped,
		event.ElapsedMS,
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert row result: %v", err)
	}

	return tx.Commit()
}

func (d *SaveToSQLite) saveCheckpoint(ctx context.Context, event batchCheckpointEvent) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO batch_checkpoints (
            run_key, column_name, batch, total_batches, status,
            row_count, total_time, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_key, column_name, batch) DO UPDATE SET
            status = excluded.status,
            row_count = excluded.row_count,
            total_time = excluded.total_time,
            created_at = excluded.created_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
		event.RunKey,
		event.Column,
		event.Batch,
		event.TotalBatches,
		event.Status,
		event.Rows,
		event.TotalTime,
		event.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert batch checkpoint: %v", err)
	}

	return tx.Commit()
}

func (d *SaveToSQLite) saveReport(ctx context.Context, event runReportEvent) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO run_reports (
            run_key, column_name, provider, model, status,
            batches, row_count, total_time, error, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_key, column_name) DO UPDATE SET
            status = excluded.status,
            batches = excluded.batches,
            row_count = excluded.row_count,
            total_time = excluded.total_time,
            error = excluded.error,
            created_at = excluded.created_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx,
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
	); err != nil {
		return fmt.Errorf("failed to insert run report: %v", err)
	}

	log.Printf("Saved run report for %s (%s)", event.RunKey, event.Status)
	return tx.Commit()
}

func (d *SaveToSQLite) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
