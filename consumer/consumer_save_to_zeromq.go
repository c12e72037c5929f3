package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/dylanpieper/batchGPT/processor"
	"github.com/zeromq/goczmq"
)

// SaveToZeroMQ publishes run events on a ZeroMQ PUB socket. Each message is
// sent as two frames, a topic of the form "<prefix>.<event_type>" followed by
// the raw JSON payload, so subscribers can filter with a standard prefix
// subscription.
type SaveToZeroMQ struct {
	publisher   *goczmq.Sock
	address     string
	topicPrefix string
	processors  []processor.Processor
}

func NewSaveToZeroMQ(config map[string]interface{}) (*SaveToZeroMQ, error) {
	address, ok := config["address"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid configuration for SaveToZeroMQ: missing 'address'")
	}

	topicPrefix, ok := config["topic_prefix"].(string)
	if !ok {
		topicPrefix = "batchgpt"
	}

	publisher, err := goczmq.NewPub(address)
	if err != nil {
		return nil, fmt.Errorf("error creating ZeroMQ publisher: %w", err)
	}

	return &SaveToZeroMQ{
		publisher:   publisher,
		address:     address,
		topicPrefix: topicPrefix,
	}, nil
}

func (z *SaveToZeroMQ) Subscribe(processor processor.Processor) {
	z.processors = append(z.processors, processor)
}

func (z *SaveToZeroMQ) Process(ctx context.Context, msg processor.Message) error {
	log.Printf("Processing message in SaveToZeroMQ")

	payload, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type, got %T", msg.Payload)
	}

	topic := z.topicPrefix
	kind, ok := msg.EventType()
	if !ok {
		kind = eventType(payload)
	}
	if kind != "" {
		topic = topic + "." + kind
	}

	if err := z.publisher.SendFrame([]byte(topic), goczmq.FlagMore); err != nil {
		return fmt.Errorf("error sending topic frame to ZeroMQ: %w", err)
	}
	if err := z.publisher.SendFrame(payload, goczmq.FlagNone); err != nil {
		return fmt.Errorf("error sending payload to ZeroMQ: %w", err)
	}

	return nil
}

func (z *SaveToZeroMQ) Close() error {
	z.publisher.Destroy()
	return nil
}
