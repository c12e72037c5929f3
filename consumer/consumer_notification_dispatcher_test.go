package consumer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanpieper/batchGPT/processor"
)

func TestNewNotificationDispatcherRequiresRules(t *testing.T) {
	_, err := NewNotificationDispatcher(map[string]interface{}{})
	assert.Error(t, err)
}

func TestStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringSlice([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, stringSlice([]interface{}{"a", "b"}))
	assert.Equal(t, []string{"a"}, stringSlice([]interface{}{"a", 7}))
	assert.Nil(t, stringSlice("a"))
	assert.Nil(t, stringSlice(nil))
}

func TestShouldNotifyConditions(t *testing.T) {
	tests := []struct {
		name string
		rule NotificationRule
		data map[string]interface{}
		want bool
	}{
		{
			name: "string eq match",
			rule: NotificationRule{Type: "run_report", Condition: "eq", Field: "status", Value: "interrupted"},
			data: map[string]interface{}{"run_key": "r1", "status": "interrupted"},
			want: true,
		},
		{
			name: "string eq mismatch",
			rule: NotificationRule{Type: "run_report", Condition: "eq", Field: "status", Value: "interrupted"},
			data: map[string]interface{}{"run_key": "r2", "status": "completed"},
			want: false,
		},
		{
			name: "numeric gt match",
			rule: NotificationRule{Type: "batch_checkpoint", Condition: "gt", Field: "total_time", Value: "60"},
			data: map[string]interface{}{"run_key": "r3", "total_time": 95.5},
			want: true,
		},
		{
			name: "numeric lt mismatch",
			rule: NotificationRule{Type: "batch_checkpoint", Condition: "lt", Field: "total_time", Value: "60"},
			data: map[string]interface{}{"run_key": "r4", "total_time": 95.5},
			want: false,
		},
		{
			name: "bad numeric threshold",
			rule: NotificationRule{Type: "batch_checkpoint", Condition: "gt", Field: "total_time", Value: "soon"},
			data: map[string]interface{}{"run_key": "r5", "total_time": 95.5},
			want: false,
		},
		{
			name: "absent field",
			rule: NotificationRule{Type: "run_report", Condition: "eq", Field: "status", Value: "interrupted"},
			data: map[string]interface{}{"run_key": "r6"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &NotificationDispatcher{notificationLog: make(map[string]time.Time)}
			assert.Equal(t, tt.want, n.shouldNotify(tt.rule, tt.data))
		})
	}
}

func TestShouldNotifyRateLimitsRepeats(t *testing.T) {
	n := &NotificationDispatcher{notificationLog: make(map[string]time.Time)}
	rule := NotificationRule{Type: "run_report", Condition: "eq", Field: "status", Value: "interrupted"}
	data := map[string]interface{}{"run_key": "reviews_ab12cd34", "status": "interrupted"}

	assert.True(t, n.shouldNotify(rule, data))
	assert.False(t, n.shouldNotify(rule, data))

	// A different run is a different alert.
	other := map[string]interface{}{"run_key": "reviews_ffffeeee", "status": "interrupted"}
	assert.True(t, n.shouldNotify(rule, other))

	// Expired entries notify again.
	n.notificationLog["reviews_ab12cd34-run_report-status-interrupted"] = time.Now().Add(-10 * time.Minute)
	assert.True(t, n.shouldNotify(rule, data))
}

func TestProcessDispatchesWebhook(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewNotificationDispatcher(map[string]interface{}{
		"webhook_urls": []interface{}{server.URL},
		"rules": []interface{}{
			map[string]interface{}{
				"type":      "run_report",
				"condition": "eq",
				"field":     "status",
				"value":     "interrupted",
				"channels":  []interface{}{"webhook"},
			},
		},
	})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{
		"type":    "run_report",
		"run_key": "reviews_ab12cd34",
		"status":  "interrupted",
	})
	require.NoError(t, err)

	require.NoError(t, n.Process(context.Background(), processor.Message{Payload: payload}))

	select {
	case got := <-received:
		message, _ := got["message"].(string)
		assert.Contains(t, message, "run_report")
		assert.Contains(t, message, "reviews_ab12cd34")
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never called")
	}
}

func TestProcessIgnoresNonMatchingEvents(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n, err := NewNotificationDispatcher(map[string]interface{}{
		"webhook_urls": []interface{}{server.URL},
		"rules": []interface{}{
			map[string]interface{}{
				"type":      "run_report",
				"condition": "eq",
				"field":     "status",
				"value":     "interrupted",
				"channels":  []interface{}{"webhook"},
			},
		},
	})
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]interface{}{
		"type":    "batch_checkpoint",
		"run_key": "reviews_ab12cd34",
		"status":  "interrupted",
	})
	require.NoError(t, err)

	require.NoError(t, n.Process(context.Background(), processor.Message{Payload: payload}))
	assert.False(t, called)
}
