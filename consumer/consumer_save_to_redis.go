package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dylanpieper/batchGPT/processor"
)

type SaveToRedis struct {
	client     *redis.Client
	processors []processor.Processor
	keyPrefix  string
	ttl        time.Duration
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTLHours  int
}

func NewSaveToRedis(config map[string]interface{}) (*SaveToRedis, error) {
	redisConfig, err := parseRedisConfig(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Address,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	ttl := time.Duration(redisConfig.TTLHours) * time.Hour

	return &SaveToRedis{
		client:    client,
		keyPrefix: redisConfig.KeyPrefix,
		ttl:       ttl,
	}, nil
}

func parseRedisConfig(config map[string]interface{}) (RedisConfig, error) {
	var redisConfig RedisConfig

	addr, ok := config["address"].(string)
	if !ok {
		return redisConfig, fmt.Errorf("missing Redis address")
	}
	redisConfig.Address = addr

	if password, ok := config["password"].(string); ok {
		redisConfig.Password = password
	}

	if db, ok := config["db"].(float64); ok {
		redisConfig.DB = int(db)
	}

	if prefix, ok := config["key_prefix"].(string); ok {
		redisConfig.KeyPrefix = prefix
	} else {
		redisConfig.KeyPrefix = "batchgpt:"
	}

	if ttl, ok := config["ttl_hours"].(float64); ok {
		redisConfig.TTLHours = int(ttl)
	} else {
		redisConfig.TTLHours = 24 // Default 24 hours TTL
	}

	return redisConfig, nil
}

func (r *SaveToRedis) Subscribe(processor processor.Processor) {
	r.processors = append(r.processors, processor)
}

func (r *SaveToRedis) Process(ctx context.Context, msg processor.Message) error {
	log.Printf("Processing message in SaveToRedis")
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
		return r.processRowResult(ctx, event)

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("error unmarshaling batch checkpoint: %w", err)
		}
		return r.processCheckpoint(ctx, event)

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("error unmarshaling run report: %w", err)
		}
		return r.processReport(ctx, event)

	default:
		return nil
	}
}

func (r *SaveToRedis) processRowResult(ctx context.Context, event rowResultEvent) error {
	key := fmt.Sprintf("%srun:%s:%s:row:%d", r.keyPrefix, event.RunKey, event.Column, event.Row)

	output := "NA"
	if event.Output.Valid {
		output = event.Output.String
	}

	redisData := map[string]interface{}{
		"batch":        event.Batch,
		"input":        event.Input,
		"output":       output,
		"skipped":      event.Skipped,
		"elapsed_ms":   event.ElapsedMS,
		"timestamp":    event.Timestamp.Format(time.RFC3339),
		"last_updated": time.Now().Format(time.RFC3339),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, redisData)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	// Update run counters
	statsKey := fmt.Sprintf("%srun:%s:%s:stats", r.keyPrefix, event.RunKey, event.Column)
	if event.Skipped {
		pipe.HIncrBy(ctx, statsKey, "rows_skipped", 1)
	} else {
		pipe.HIncrBy(ctx, statsKey, "rows_processed", 1)
		pipe.HIncrBy(ctx, statsKey, "elapsed_ms_total", event.ElapsedMS)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}

	return nil
}

func (r *SaveToRedis) processCheckpoint(ctx context.Context, event batchCheckpointEvent) error {
	key := fmt.Sprintf("%srun:%s:%s:batch:%d", r.keyPrefix, event.RunKey, event.Column, event.Batch)

	redisData := map[string]interface{}{
		"status":        event.Status,
		"rows":          event.Rows,
		"total_batches": event.TotalBatches,
		"total_time":    event.TotalTime,
		"timestamp":     event.Timestamp.Format(time.RFC3339),
		"last_updated":  time.Now().Format(time.RFC3339),
	}

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, redisData)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	// Append to the progress timeline
	progressKey := fmt.Sprintf("%srun:%s:%s:progress", r.keyPrefix, event.RunKey, event.Column)
	pipe.ZAdd(ctx, progressKey, redis.Z{
		Score:  float64(event.Batch),
		Member: fmt.Sprintf("%d:%s", event.Batch, event.Status),
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, progressKey, r.ttl)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}

	return nil
}

func (r *SaveToRedis) processReport(ctx context.Context, event runReportEvent) error {
	reportKey := fmt.Sprintf("%srun:%s:%s:report", r.keyPrefix, event.RunKey, event.Column)
	if err := r.storeJSON(ctx, reportKey, event); err != nil {
		return err
	}

	// Directory of known runs and their last status
	indexKey := fmt.Sprintf("%sruns", r.keyPrefix)
	field := fmt.Sprintf("%s:%s", event.RunKey, event.Column)
	if err := r.client.HSet(ctx, indexKey, field, event.Status).Err(); err != nil {
		return fmt.Errorf("error updating run index: %w", err)
	}

	return nil
}

func (r *SaveToRedis) storeJSON(ctx context.Context, key string, data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}

	if err := r.client.Set(ctx, key, jsonBytes, r.ttl).Err(); err != nil {
		return fmt.Errorf("error storing data in Redis: %w", err)
	}

	return nil
}

// GetRunStats returns the per-run counters kept alongside row results.
func (r *SaveToRedis) GetRunStats(ctx context.Context, runKey, column string) (map[string]string, error) {
	key := fmt.Sprintf("%srun:%s:%s:stats", r.keyPrefix, runKey, column)
	return r.client.HGetAll(ctx, key).Result()
}

func (r *SaveToRedis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
