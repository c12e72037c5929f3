package pipeline

import (
	"context"
	"testing"

	"github.com/dylanpieper/batchGPT/processor"
)

type recorder struct {
	name        string
	received    []string
	subscribers []processor.Processor
}

func (r *recorder) Process(ctx context.Context, msg processor.Message) error {
	payload, _ := msg.Payload.([]byte)
	r.received = append(r.received, string(payload))
	for _, s := range r.subscribers {
		if err := s.Process(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *recorder) Subscribe(p processor.Processor) {
	r.subscribers = append(r.subscribers, p)
}

func TestBuildProcessorChain(t *testing.T) {
	p1 := &recorder{name: "p1"}
	p2 := &recorder{name: "p2"}
	c1 := &recorder{name: "c1"}
	c2 := &recorder{name: "c2"}

	heads := BuildProcessorChain(
		[]processor.Processor{p1, p2},
		[]processor.Processor{c1, c2},
	)

	if len(heads) != 1 || heads[0] != processor.Processor(p1) {
		t.Fatalf("expected the first processor as the single head")
	}

	msg := processor.Message{Payload: []byte(`{"type":"row_result"}`)}
	if err := p1.Process(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	for _, r := range []*recorder{p1, p2, c1, c2} {
		if len(r.received) != 1 {
			t.Errorf("%s: expected 1 message, got %d", r.name, len(r.received))
		}
	}
}

func TestBuildProcessorChainConsumersOnly(t *testing.T) {
	c1 := &recorder{name: "c1"}
	c2 := &recorder{name: "c2"}

	heads := BuildProcessorChain(nil, []processor.Processor{c1, c2})
	if len(heads) != 2 {
		t.Fatalf("expected both consumers as heads, got %d", len(heads))
	}
}
