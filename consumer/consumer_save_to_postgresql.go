package consumer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dylanpieper/batchGPT/processor"
)

type SaveToPostgreSQL struct {
	db         *sql.DB
	processors []processor.Processor
}

type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

const initSchema = `
CREATE TABLE IF NOT EXISTS run_reports (
    run_key        TEXT NOT NULL,
    column_name    TEXT NOT NULL,
    provider       TEXT NOT NULL,
    model          TEXT NOT NULL,
    status         TEXT NOT NULL,
    batches        INTEGER NOT NULL,
    row_count      INTEGER NOT NULL,
    total_time     DOUBLE PRECISION NOT NULL,
    error          TEXT,
    updated_at     TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_key, column_name)
);

CREATE TABLE IF NOT EXISTS batch_checkpoints (
    run_key        TEXT NOT NULL,
    column_name    TEXT NOT NULL,
    batch          INTEGER NOT NULL,
    total_batches  INTEGER NOT NULL,
    status         TEXT NOT NULL,
    row_count      INTEGER NOT NULL,
    total_time     DOUBLE PRECISION NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_key, column_name, batch),
    CONSTRAINT check_checkpoint_status
        CHECK (status IN ('in_progress', 'completed', 'interrupted'))
);

CREATE TABLE IF NOT EXISTS row_results (
    run_key        TEXT NOT NULL,
    column_name    TEXT NOT NULL,
    row_number     INTEGER NOT NULL,
    batch          INTEGER NOT NULL,
    input          TEXT,
    output         TEXT,
    skipped        BOOLEAN NOT NULL DEFAULT FALSE,
    elapsed_ms     BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_key, column_name, row_number)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON batch_checkpoints(status);
CREATE INDEX IF NOT EXISTS idx_row_results_batch ON row_results(run_key, column_name, batch);
`

func NewSaveToPostgreSQL(config map[string]interface{}) (*SaveToPostgreSQL, error) {
	pgConfig, err := parsePostgresConfig(config)
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pgConfig.Host, pgConfig.Port, pgConfig.Username, pgConfig.Password,
		pgConfig.Database, pgConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SaveToPostgreSQL{
		db: db,
	}, nil
}

func parsePostgresConfig(config map[string]interface{}) (PostgresConfig, error) {
	var pgConfig PostgresConfig

	host, ok := config["host"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing host in config")
	}
	pgConfig.Host = host

	port, ok := config["port"].(float64)
	if !ok {
		pgConfig.Port = 5432 // Default PostgreSQL port
	} else {
		pgConfig.Port = int(port)
	}

	database, ok := config["database"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing database in config")
	}
	pgConfig.Database = database

	username, ok := config["username"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing username in config")
	}
	pgConfig.Username = username

	password, ok := config["password"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing password in config")
	}
	pgConfig.Password = password

	sslMode, ok := config["ssl_mode"].(string)
	if !ok {
		pgConfig.SSLMode = "disable" // Default to disable
	} else {
		pgConfig.SSLMode = sslMode
	}

	// Set connection pool defaults
	pgConfig.MaxOpenConns = 25
	pgConfig.MaxIdleConns = 5

	if maxOpen, ok := config["max_open_conns"].(float64); ok {
		pgConfig.MaxOpenConns = int(maxOpen)
	}
	if maxIdle, ok := config["max_idle_conns"].(float64); ok {
		pgConfig.MaxIdleConns = int(maxIdle)
	}

	return pgConfig, nil
}

func initializeSchema(db *sql.DB) error {
	_, err := db.Exec(initSchema)
	return err
}

func (p *SaveToPostgreSQL) Subscribe(processor processor.Processor) {
	p.processors = append(p.processors, processor)
}

func (p *SaveToPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
	payload, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}

	kind := eventType(payload)
	if kind == "" {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	switch kind {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("error unmarshaling row result: %w", err)
		}
		err = p.insertRowResult(ctx, tx, event)

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("error unmarshaling batch checkpoint: %w", err)
		}
		err = p.insertCheckpoint(ctx, tx, event)

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("error unmarshaling run report: %w", err)
		}
		err = p.insertReport(ctx, tx, event)

	default:
		return nil
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

func (p *SaveToPostgreSQL) insertRowResult(ctx context.Context, tx *sql.Tx, event rowResultEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO row_results (
			run_key, column_name, row_number, batch, input, output,
			skipped, elapsed_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_key, column_name, row_number) DO UPDATE SET
			batch = EXCLUDED.batch,
			output = EXCLUDED.output,
			skipped = EXCLUDED.skipped,
			elapsed_ms = EXCLUDED.elapsed_ms,
			created_at = EXCLUDED.created_at`,
		event.RunKey,
		event.Column,
		event.Row,
		event.Batch,
		event.Input,
		event.Output,
		event.Skipped,
		event.ElapsedMS,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error inserting row result: %w", err)
	}
	return nil
}

func (p *SaveToPostgreSQL) insertCheckpoint(ctx context.Context, tx *sql.Tx, event batchCheckpointEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO batch_checkpoints (
			run_key, column_name, batch, total_batches, status,
			row_count, total_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_key, column_name, batch) DO UPDATE SET
			status = EXCLUDED.status,
			row_count = EXCLUDED.row_count,
			total_time = EXCLUDED.total_time,
			created_at = EXCLUDED.created_at`,
		event.RunKey,
		event.Column,
		event.Batch,
		event.TotalBatches,
		event.Status,
		event.Rows,
		event.TotalTime,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error inserting batch checkpoint: %w", err)
	}
	return nil
}

func (p *SaveToPostgreSQL) insertReport(ctx context.Context, tx *sql.Tx, event runReportEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO run_reports (
			run_key, column_name, provider, model, status,
			batches, row_count, total_time, error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_key, column_name) DO UPDATE SET
			status = EXCLUDED.status,
			batches = EXCLUDED.batches,
			row_count = EXCLUDED.row_count,
			total_time = EXCLUDED.total_time,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
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
	)
	if err != nil {
		return fmt.Errorf("error inserting run report: %w", err)
	}
	return nil
}

func (p *SaveToPostgreSQL) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
