package consumer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeSniffing(t *testing.T) {
	assert.Equal(t, eventRowResult, eventType([]byte(`{"type":"row_result","run_key":"r"}`)))
	assert.Equal(t, eventBatchCheckpoint, eventType([]byte(`{"type":"batch_checkpoint"}`)))
	assert.Equal(t, "", eventType([]byte(`{"run_key":"r"}`)))
	assert.Equal(t, "", eventType([]byte(`not json`)))
}

func TestRowResultNullOutput(t *testing.T) {
	payload := []byte(`{"type":"row_result","run_key":"r","row":3,"output":null,"skipped":true}`)

	var event rowResultEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.False(t, event.Output.Valid)
	assert.True(t, event.Skipped)

	payload = []byte(`{"type":"row_result","output":"positive"}`)
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.True(t, event.Output.Valid)
	assert.Equal(t, "positive", event.Output.String)
}
