package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidwall/gjson"

	"github.com/dylanpieper/batchGPT/processor"
)

// SaveAuditToPostgres keeps an append-only audit trail of every event the
// engine emits. Rows are buffered and written in one transaction per flush.
type SaveAuditToPostgres struct {
	db         *pgxpool.Pool
	processors []processor.Processor

	bufferSize int
	mu         sync.Mutex
	pending    []auditEntry
}

type auditEntry struct {
	eventType string
	runKey    string
	payload   []byte
}

func NewSaveAuditToPostgres(config map[string]interface{}) (*SaveAuditToPostgres, error) {
	dbURL, ok := config["database_url"].(string)
	if !ok {
		return nil, fmt.Errorf("database_url is required")
	}

	bufferSize := 50
	if size, ok := config["buffer_size"].(float64); ok && size > 0 {
		bufferSize = int(size)
	}

	db, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := createAuditTables(context.Background(), db); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SaveAuditToPostgres{
		db:         db,
		bufferSize: bufferSize,
		pending:    make([]auditEntry, 0, bufferSize),
	}, nil
}

func createAuditTables(ctx context.Context, db *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS run_audit (
            id BIGSERIAL PRIMARY KEY,
            event_type TEXT NOT NULL,
            run_key TEXT NOT NULL,
            payload JSONB NOT NULL,
            recorded_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_run_audit_run ON run_audit(run_key, event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_run_audit_recorded ON run_audit(recorded_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("error executing query: %w", err)
		}
	}
	return nil
}

func (s *SaveAuditToPostgres) Subscribe(processor processor.Processor) {
	s.processors = append(s.processors, processor)
}

func (s *SaveAuditToPostgres) Process(ctx context.Context, msg processor.Message) error {
	payload, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}

	kind, ok := msg.EventType()
	if !ok {
		kind = eventType(payload)
	}
	if kind == "" {
		return nil
	}

	runKey, ok := msg.RunKey()
	if !ok {
		runKey = gjson.GetBytes(payload, "run_key").String()
	}

	if !json.Valid(payload) {
		return fmt.Errorf("audit payload is not valid JSON")
	}

	entry := auditEntry{
		eventType: kind,
		runKey:    runKey,
		payload:   append([]byte(nil), payload...),
	}

	s.mu.Lock()
	s.pending = append(s.pending, entry)
	if len(s.pending) < s.bufferSize {
		s.mu.Unlock()
		return nil
	}
	toFlush := s.pending
	s.pending = make([]auditEntry, 0, s.bufferSize)
	s.mu.Unlock()

	return s.flush(ctx, toFlush)
}

func (s *SaveAuditToPostgres) flush(ctx context.Context, entries []auditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, entry := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO run_audit (event_type, run_key, payload)
            VALUES ($1, $2, $3)`,
			entry.eventType,
			entry.runKey,
			entry.payload,
		)
		if err != nil {
			return fmt.Errorf("error inserting audit entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Close flushes any buffered entries before releasing the pool.
func (s *SaveAuditToPostgres) Close() error {
	s.mu.Lock()
	toFlush := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(toFlush) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.flush(ctx, toFlush); err != nil {
			log.Printf("Failed to flush audit entries on close: %v", err)
		}
	}

	if s.db != nil {
		s.db.Close()
	}
	return nil
}
