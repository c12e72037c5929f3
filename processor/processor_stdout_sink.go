package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// StdoutSink is a processor that writes incoming event payloads to stdout,
// one JSON document per line.
type StdoutSink struct {
	out    io.Writer
	indent bool
}

// NewStdoutSink creates a new StdoutSink instance. Set "indent" in the config
// to pretty-print events while debugging a pipeline.
func NewStdoutSink(config map[string]interface{}) *StdoutSink {
	s := &StdoutSink{out: os.Stdout}
	if val, ok := config["indent"].(bool); ok {
		s.indent = val
	}
	return s
}

// Process implements the Processor interface by writing the payload to stdout.
func (s *StdoutSink) Process(ctx context.Context, msg Message) error {
	var output []byte
	switch payload := msg.Payload.(type) {
	case []byte:
		output = payload
	default:
		var err error
		output, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("StdoutSink: error marshaling payload: %w", err)
		}
	}

	if s.indent {
		var buf bytes.Buffer
		if err := json.Indent(&buf, output, "", "  "); err == nil {
			output = buf.Bytes()
		}
	}

	_, err := s.out.Write(append(output, '\n'))
	return err
}

// Subscribe implements the Processor interface.
// Since StdoutSink is a sink, this is a no-op.
func (s *StdoutSink) Subscribe(proc Processor) {
	// no-op: StdoutSink is the final stage so it doesn't subscribe to any downstream processor.
}
