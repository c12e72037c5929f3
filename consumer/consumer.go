package consumer

import (
	"context"
	"fmt"

	"github.com/dylanpieper/batchGPT/processor"
)

// Consumer is a terminal pipeline stage. Consumers receive engine events
// and persist or forward them; Close flushes anything buffered.
type Consumer interface {
	Process(context.Context, processor.Message) error
	Subscribe(processor.Processor)
}

type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// NewConsumers builds the configured consumer list in order.
func NewConsumers(consumerConfigs []ConsumerConfig) ([]processor.Processor, error) {
	consumers := make([]processor.Processor, len(consumerConfigs))
	for i, config := range consumerConfigs {
		consumer, err := NewConsumer(config)
		if err != nil {
			return nil, err
		}
		consumers[i] = consumer
	}
	return consumers, nil
}

// NewConsumer builds a single consumer from its config block.
func NewConsumer(consumerConfig ConsumerConfig) (processor.Processor, error) {
	switch consumerConfig.Type {
	case "SaveToExcel":
		return NewSaveToExcel(consumerConfig.Config)
	case "SaveToSQLite":
		return NewSaveToSQLite(consumerConfig.Config)
	case "SaveToPostgreSQL":
		return NewSaveToPostgreSQL(consumerConfig.Config)
	case "SaveAuditToPostgres":
		return NewSaveAuditToPostgres(consumerConfig.Config)
	case "SaveToMongoDB":
		return NewSaveToMongoDB(consumerConfig.Config)
	case "SaveToRedis":
		return NewSaveToRedis(consumerConfig.Config)
	case "SaveToDuckDB":
		return NewSaveToDuckDB(consumerConfig.Config)
	case "SaveToClickHouse":
		return NewSaveToClickHouse(consumerConfig.Config)
	case "SaveToParquet":
		return NewSaveToParquet(consumerConfig.Config)
	case "SaveToWebSocket":
		return NewSaveToWebSocket(consumerConfig.Config)
	case "NotificationDispatcher":
		return NewNotificationDispatcher(consumerConfig.Config)
	case "SaveToZeroMQ":
		return NewSaveToZeroMQ(consumerConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", consumerConfig.Type)
	}
}
