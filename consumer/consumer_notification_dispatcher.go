package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/slack-go/slack"

	"github.com/dylanpieper/batchGPT/processor"
)

// NotificationRule defines when to send notifications
type NotificationRule struct {
	Type      string   `json:"type"`      // run_report, batch_checkpoint, row_result
	Condition string   `json:"condition"` // gt, lt, eq
	Field     string   `json:"field"`     // status, total_time, etc.
	Value     string   `json:"value"`     // threshold value
	Channels  []string `json:"channels"`  // slack, email, webhook
}

type NotificationDispatcher struct {
	rules           []NotificationRule
	slackClient     *slack.Client
	sendgridClient  *sendgrid.Client
	emailFrom       string
	emailTo         []string
	slackChannels   []string
	webhookURLs     []string
	processors      []processor.Processor
	notificationLog map[string]time.Time // To prevent notification spam
	mutex           sync.RWMutex
}

func NewNotificationDispatcher(config map[string]interface{}) (*NotificationDispatcher, error) {
	slackToken, _ := config["slack_token"].(string)
	sendgridKey, _ := config["sendgrid_key"].(string)
	emailFrom, _ := config["email_from"].(string)
	emailTo := stringSlice(config["email_to"])
	slackChannels := stringSlice(config["slack_channels"])
	webhookURLs := stringSlice(config["webhook_urls"])

	rulesData, ok := config["rules"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid rules configuration")
	}

	var rules []NotificationRule
	for _, r := range rulesData {
		ruleMap, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		rule := NotificationRule{
			Channels: stringSlice(ruleMap["channels"]),
		}
		if v, ok := ruleMap["type"].(string); ok {
			rule.Type = v
		}
		if v, ok := ruleMap["condition"].(string); ok {
			rule.Condition = v
		}
		if v, ok := ruleMap["field"].(string); ok {
			rule.Field = v
		}
		if v, ok := ruleMap["value"].(string); ok {
			rule.Value = v
		}
		rules = append(rules, rule)
	}

	dispatcher := &NotificationDispatcher{
		rules:           rules,
		emailFrom:       emailFrom,
		emailTo:         emailTo,
		slackChannels:   slackChannels,
		webhookURLs:     webhookURLs,
		notificationLog: make(map[string]time.Time),
	}

	if slackToken != "" {
		dispatcher.slackClient = slack.New(slackToken)
	}

	if sendgridKey != "" {
		dispatcher.sendgridClient = sendgrid.NewSendClient(sendgridKey)
	}

	return dispatcher, nil
}

// stringSlice converts config list values, which YAML decodes as
// []interface{}, into a string slice.
func stringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (n *NotificationDispatcher) Subscribe(processor processor.Processor) {
	n.processors = append(n.processors, processor)
}

func (n *NotificationDispatcher) Process(ctx context.Context, msg processor.Message) error {
	payloadBytes, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte type for message.Payload, got %T", msg.Payload)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(payloadBytes, &data); err != nil {
		return fmt.Errorf("error unmarshaling payload: %w", err)
	}

	kind, ok := data["type"].(string)
	if !ok {
		return fmt.Errorf("missing event type in payload")
	}

	for _, rule := range n.rules {
		if rule.Type == kind {
			if n.shouldNotify(rule, data) {
				if err := n.dispatchNotifications(rule, data); err != nil {
					log.Printf("Error dispatching notifications: %v", err)
				}
			}
		}
	}

	return nil
}

func (n *NotificationDispatcher) shouldNotify(rule NotificationRule, data map[string]interface{}) bool {
	matched := false
	var fieldValue string

	switch v := data[rule.Field].(type) {
	case string:
		fieldValue = v
		switch rule.Condition {
		case "gt":
			matched = v > rule.Value
		case "lt":
			matched = v < rule.Value
		case "eq":
			matched = v == rule.Value
		}
	case float64:
		fieldValue = strconv.FormatFloat(v, 'f', -1, 64)
		threshold, err := strconv.ParseFloat(rule.Value, 64)
		if err != nil {
			return false
		}
		switch rule.Condition {
		case "gt":
			matched = v > threshold
		case "lt":
			matched = v < threshold
		case "eq":
			matched = v == threshold
		}
	default:
		return false
	}

	if !matched {
		return false
	}

	// Rate limit repeats of the same alert
	runKey, _ := data["run_key"].(string)
	key := fmt.Sprintf("%s-%s-%s-%s", runKey, rule.Type, rule.Field, fieldValue)
	n.mutex.RLock()
	lastNotification, exists := n.notificationLog[key]
	n.mutex.RUnlock()

	if exists && time.Since(lastNotification) < time.Minute*5 {
		return false
	}

	n.mutex.Lock()
	n.notificationLog[key] = time.Now()
	n.mutex.Unlock()

	return true
}

func (n *NotificationDispatcher) dispatchNotifications(rule NotificationRule, data map[string]interface{}) error {
	message := n.formatMessage(rule, data)

	for _, channel := range rule.Channels {
		switch channel {
		case "slack":
			if err := n.sendSlackNotification(message); err != nil {
				log.Printf("Error sending Slack notification: %v", err)
			}
		case "email":
			if err := n.sendEmailNotification(message); err != nil {
				log.Printf("Error sending email notification: %v", err)
			}
		case "webhook":
			if err := n.sendWebhookNotification(message); err != nil {
				log.Printf("Error sending webhook notification: %v", err)
			}
		}
	}

	return nil
}

func (n *NotificationDispatcher) formatMessage(rule NotificationRule, data map[string]interface{}) string {
	runKey, _ := data["run_key"].(string)
	return fmt.Sprintf("Alert: %s event with %s %s %s\nRun: %s\nDetails: %v",
		rule.Type, rule.Field, rule.Condition, rule.Value, runKey, data)
}

func (n *NotificationDispatcher) sendSlackNotification(message string) error {
	if n.slackClient == nil {
		return fmt.Errorf("slack client not initialized")
	}

	for _, channel := range n.slackChannels {
		_, _, err := n.slackClient.PostMessage(
			channel,
			slack.MsgOptionText(message, false),
		)
		if err != nil {
			return fmt.Errorf("error sending slack message: %w", err)
		}
	}
	return nil
}

func (n *NotificationDispatcher) sendEmailNotification(message string) error {
	if n.sendgridClient == nil {
		return fmt.Errorf("sendgrid client not initialized")
	}

	from := mail.NewEmail("batchGPT Notifications", n.emailFrom)
	subject := "Batch Run Alert"

	for _, to := range n.emailTo {
		toEmail := mail.NewEmail("", to)
		email := mail.NewSingleEmail(from, subject, toEmail, message, message)
		_, err := n.sendgridClient.Send(email)
		if err != nil {
			return fmt.Errorf("error sending email: %w", err)
		}
	}
	return nil
}

func (n *NotificationDispatcher) sendWebhookNotification(message string) error {
	payload := map[string]interface{}{
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, url := range n.webhookURLs {
		resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonPayload))
		if err != nil {
			return fmt.Errorf("error sending webhook request: %w", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("received non-200 response: %d", resp.StatusCode)
		}
	}
	return nil
}

func (n *NotificationDispatcher) Close() error {
	return nil
}
