package pipeline

import (
	"log"

	"github.com/dylanpieper/batchGPT/processor"
)

// BuildProcessorChain chains processors sequentially and subscribes all
// consumers to the last one. It returns the chain heads the event emitter
// should subscribe to: the first processor when there is one, otherwise the
// consumers themselves.
func BuildProcessorChain(processors []processor.Processor, consumers []processor.Processor) []processor.Processor {
	var lastProcessor processor.Processor

	// Chain all processors sequentially
	for _, p := range processors {
		if lastProcessor != nil {
			lastProcessor.Subscribe(p)
			log.Printf("Chained processor %T -> %T", lastProcessor, p)
		}
		lastProcessor = p
	}

	if lastProcessor != nil {
		for _, c := range consumers {
			lastProcessor.Subscribe(c)
			log.Printf("Chained processor %T -> consumer %T", lastProcessor, c)
		}
		return processors[:1]
	}

	return consumers
}
