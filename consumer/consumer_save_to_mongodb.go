package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/dylanpieper/batchGPT/processor"
)

type SaveToMongoDB struct {
	client     *mongo.Client
	collection *mongo.Collection
	processors []processor.Processor
}

type MongoDBConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

func NewSaveToMongoDB(config map[string]interface{}) (*SaveToMongoDB, error) {
	dbConfig, err := parseMongoDBConfig(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConfig.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(dbConfig.URI)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %v", err)
	}

	// Verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	collection := client.Database(dbConfig.Database).Collection(dbConfig.Collection)

	log.Printf("Successfully connected to MongoDB database %s, collection %s",
		dbConfig.Database, dbConfig.Collection)

	return &SaveToMongoDB{
		client:     client,
		collection: collection,
	}, nil
}

func parseMongoDBConfig(config map[string]interface{}) (MongoDBConfig, error) {
	var dbConfig MongoDBConfig

	uri, ok := config["uri"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'uri' in MongoDB configuration")
	}
	dbConfig.URI = uri

	database, ok := config["database"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'database' in MongoDB configuration")
	}
	dbConfig.Database = database

	collection, ok := config["collection"].(string)
	if !ok {
		dbConfig.Collection = "run_events"
	} else {
		dbConfig.Collection = collection
	}

	// Set default timeout if not provided
	timeout, ok := config["connect_timeout"].(int)
	if !ok {
		timeout = 10 // Default 10 seconds
	}
	dbConfig.ConnectTimeout = time.Duration(timeout) * time.Second

	return dbConfig, nil
}

func (m *SaveToMongoDB) Subscribe(processor processor.Processor) {
	m.processors = append(m.processors, processor)
}

func (m *SaveToMongoDB) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}

	var filter, doc bson.D
	switch eventType(payloadBytes) {
	case eventRowResult:
		var event rowResultEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal row result: %v", err)
		}
		filter = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
			{Key: "row", Value: event.Row},
		}
		doc = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
			{Key: "row", Value: event.Row},
			{Key: "batch", Value: event.Batch},
			{Key: "input", Value: event.Input},
			{Key: "output", Value: event.Output.Ptr()},
			{Key: "skipped", Value: event.Skipped},
			{Key: "elapsed_ms", Value: event.ElapsedMS},
			{Key: "timestamp", Value: event.Timestamp},
			{Key: "created_at", Value: time.Now().UTC()},
		}

	case eventBatchCheckpoint:
		var event batchCheckpointEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal batch checkpoint: %v", err)
		}
		filter = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
			{Key: "batch", Value: event.Batch},
		}
		doc = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
			{Key: "batch", Value: event.Batch},
			{Key: "total_batches", Value: event.TotalBatches},
			{Key: "status", Value: event.Status},
			{Key: "rows", Value: event.Rows},
			{Key: "total_time", Value: event.TotalTime},
			{Key: "timestamp", Value: event.Timestamp},
			{Key: "created_at", Value: time.Now().UTC()},
		}

	case eventRunReport:
		var event runReportEvent
		if err := json.Unmarshal(payloadBytes, &event); err != nil {
			return fmt.Errorf("failed to unmarshal run report: %v", err)
		}
		filter = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
		}
		doc = bson.D{
			{Key: "type", Value: event.Type},
			{Key: "run_key", Value: event.RunKey},
			{Key: "column", Value: event.Column},
			{Key: "provider", Value: event.Provider},
			{Key: "model", Value: event.Model},
			{Key: "status", Value: event.Status},
			{Key: "batches", Value: event.Batches},
			{Key: "rows", Value: event.Rows},
			{Key: "total_time", Value: event.TotalTime},
			{Key: "error", Value: event.Error.Ptr()},
			{Key: "output", Value: outputDocument(event)},
			{Key: "timestamp", Value: event.Timestamp},
			{Key: "created_at", Value: time.Now().UTC()},
		}

	default:
		return nil
	}

	// Replace so a resumed run overwrites its earlier state
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.collection.ReplaceOne(writeCtx, filter, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %v", err)
	}

	if result.UpsertedID != nil {
		log.Printf("Successfully inserted document with ID: %v", result.UpsertedID)
	}
	return nil
}

// outputDocument round-trips the report's table through JSON so Mongo stores
// it as a plain document instead of the table's internal representation.
func outputDocument(event runReportEvent) interface{} {
	if event.Output == nil {
		return nil
	}
	raw, err := json.Marshal(event.Output)
	if err != nil {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

func (m *SaveToMongoDB) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}
