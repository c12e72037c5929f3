package processor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// MockProcessor captures forwarded messages for assertions.
type MockProcessor struct {
	mu               sync.Mutex
	receivedMessages []Message
	errorOnProcess   error
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{
		receivedMessages: make([]Message, 0),
	}
}

func (m *MockProcessor) Process(ctx context.Context, msg Message) error {
	if m.errorOnProcess != nil {
		return m.errorOnProcess
	}

	m.mu.Lock()
	m.receivedMessages = append(m.receivedMessages, msg)
	m.mu.Unlock()

	return nil
}

func (m *MockProcessor) Subscribe(processor Processor) {
	// Not implemented for mock
}

func (m *MockProcessor) GetMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.receivedMessages...)
}

func TestForwardEvent(t *testing.T) {
	mock := NewMockProcessor()

	payload := map[string]interface{}{"type": "row_result", "row": 3}
	err := ForwardEvent(context.Background(), "row_result", "reviews_ab12cd34ef56aa00", payload, []Processor{mock})
	require.NoError(t, err)

	messages := mock.GetMessages()
	require.Len(t, messages, 1)

	eventType, ok := messages[0].EventType()
	require.True(t, ok)
	assert.Equal(t, "row_result", eventType)

	runKey, ok := messages[0].RunKey()
	require.True(t, ok)
	assert.Equal(t, "reviews_ab12cd34ef56aa00", runKey)

	jsonBytes, err := messages[0].PayloadBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.GetBytes(jsonBytes, "row").Int())
}

func TestForwardToProcessors(t *testing.T) {
	first := NewMockProcessor()
	second := NewMockProcessor()

	err := ForwardToProcessors(context.Background(), map[string]string{"k": "v"}, []Processor{first, second})
	require.NoError(t, err)

	assert.Len(t, first.GetMessages(), 1)
	assert.Len(t, second.GetMessages(), 1)
}

func TestPayloadBytesRejectsNonBytes(t *testing.T) {
	msg := Message{Payload: map[string]string{"k": "v"}}
	_, err := msg.PayloadBytes()
	assert.Error(t, err)
}

func TestEventTypeMissingMetadata(t *testing.T) {
	msg := Message{Payload: []byte(`{}`)}
	_, ok := msg.EventType()
	assert.False(t, ok)
}
