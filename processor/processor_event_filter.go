package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tidwall/gjson"
)

// EventFilter drops events whose type is not in the configured allowlist and
// optionally projects the payload down to a subset of top-level fields.
type EventFilter struct {
	eventTypes map[string]bool
	fields     []string
	processors []Processor
}

func NewEventFilter(config map[string]interface{}) (*EventFilter, error) {
	f := &EventFilter{}

	if raw, ok := config["event_types"].([]interface{}); ok {
		f.eventTypes = make(map[string]bool)
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("invalid 'event_types' entry: expected string, got %T", v)
			}
			f.eventTypes[s] = true
		}
	}

	if raw, ok := config["fields"].([]interface{}); ok {
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("invalid 'fields' entry: expected string, got %T", v)
			}
			f.fields = append(f.fields, s)
		}
	}

	return f, nil
}

func (f *EventFilter) Subscribe(receiver Processor) {
	f.processors = append(f.processors, receiver)
}

func (f *EventFilter) Process(ctx context.Context, msg Message) error {
	jsonBytes, err := msg.PayloadBytes()
	if err != nil {
		return err
	}

	eventType, ok := msg.EventType()
	if !ok {
		eventType = gjson.GetBytes(jsonBytes, "type").String()
	}

	if f.eventTypes != nil && !f.eventTypes[eventType] {
		return nil
	}

	forwarded := msg
	if len(f.fields) > 0 {
		projected, err := f.project(jsonBytes)
		if err != nil {
			return err
		}
		forwarded = Message{Payload: projected, Metadata: msg.Metadata}
	}

	for _, processor := range f.processors {
		if err := processor.Process(ctx, forwarded); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}

// project rebuilds the payload keeping only the configured top-level fields.
// The event type tag always survives so downstream routing keeps working.
func (f *EventFilter) project(jsonBytes []byte) ([]byte, error) {
	out := make(map[string]interface{}, len(f.fields)+1)

	if typeVal := gjson.GetBytes(jsonBytes, "type"); typeVal.Exists() {
		out["type"] = typeVal.String()
	}

	for _, field := range f.fields {
		result := gjson.GetBytes(jsonBytes, field)
		if !result.Exists() {
			continue
		}
		out[field] = result.Value()
	}

	if len(out) == 0 {
		log.Printf("[WARN] EventFilter: projection produced an empty payload, forwarding original")
		return jsonBytes, nil
	}

	projected, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("error marshaling projected payload: %w", err)
	}
	return projected, nil
}
