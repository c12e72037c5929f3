package processor

import (
	"fmt"
)

// NewProcessors builds the configured processor list in order.
func NewProcessors(processorConfigs []ProcessorConfig) ([]Processor, error) {
	processors := make([]Processor, len(processorConfigs))
	for i, config := range processorConfigs {
		processor, err := NewProcessor(config)
		if err != nil {
			return nil, err
		}
		processors[i] = processor
	}
	return processors, nil
}

// NewProcessor builds a single processor from its config block.
func NewProcessor(processorConfig ProcessorConfig) (Processor, error) {
	switch processorConfig.Type {
	case "EventFilter":
		return NewEventFilter(processorConfig.Config)
	case "StdoutSink":
		return NewStdoutSink(processorConfig.Config), nil
	default:
		return nil, fmt.Errorf("unsupported processor type: %s", processorConfig.Type)
	}
}
