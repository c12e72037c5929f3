package processor

import (
	"context"
	"encoding/json"
	"fmt"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Metadata keys attached by the engine when it emits events.
const (
	EventTypeKey = "event_type"
	RunKeyKey    = "run_key"
)

// EventType returns the emitter-recorded event type from the message metadata.
func (m *Message) EventType() (string, bool) {
	if m.Metadata == nil {
		return "", false
	}

	eventType, exists := m.Metadata[EventTypeKey]
	if !exists {
		return "", false
	}

	if s, ok := eventType.(string); ok {
		return s, true
	}

	return "", false
}

// RunKey returns the run identity from the message metadata, if present.
func (m *Message) RunKey() (string, bool) {
	if m.Metadata == nil {
		return "", false
	}
	if s, ok := m.Metadata[RunKeyKey].(string); ok {
		return s, true
	}
	return "", false
}

// PayloadBytes returns the payload as raw JSON bytes. Processors upstream
// always marshal before forwarding, so anything else is a wiring mistake.
func (m *Message) PayloadBytes() ([]byte, error) {
	jsonBytes, ok := m.Payload.([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload type: expected []byte, got %T", m.Payload)
	}
	return jsonBytes, nil
}

// ForwardToProcessors marshals the payload and forwards it to all downstream processors
func ForwardToProcessors(ctx context.Context, payload interface{}, processors []Processor) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	for _, processor := range processors {
		if err := processor.Process(ctx, Message{Payload: jsonBytes}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}

// ForwardEvent marshals the payload and forwards it with event metadata so
// downstream stages can route without reparsing the body.
func ForwardEvent(ctx context.Context, eventType, runKey string, payload interface{}, processors []Processor) error {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling %s event: %w", eventType, err)
	}

	msg := Message{
		Payload: jsonBytes,
		Metadata: map[string]interface{}{
			EventTypeKey: eventType,
			RunKeyKey:    runKey,
		},
	}

	for _, processor := range processors {
		if err := processor.Process(ctx, msg); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}
