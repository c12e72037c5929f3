package provider

import (
	"context"
	"fmt"
	"strings"
)

// legacyAnthropicModel reports whether the model belongs to the
// completion-era family that takes a single concatenated Human/Assistant
// prompt. Current-era models take structured role turns; the two wire
// shapes are not compatible.
func legacyAnthropicModel(model string) bool {
	for _, prefix := range []string{"claude-1", "claude-2", "claude-instant"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) completeAnthropic(ctx context.Context, req Request) (string, error) {
	key := d.Credentials.AnthropicKey
	if key == "" {
		return "", fmt.Errorf("anthropic: missing API key")
	}

	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}

	if legacyAnthropicModel(req.Model) {
		prompt := fmt.Sprintf("\n\nHuman: %s\n\n%s\n\nAssistant:", req.SystemPrompt, req.UserContent)
		body := map[string]interface{}{
			"model":                req.Model,
			"prompt":               prompt,
			"temperature":          req.Temperature,
			"max_tokens_to_sample": req.MaxTokens,
		}
		respBody, err := d.post(ctx, Anthropic, d.AnthropicBaseURL+"/v1/complete", headers, body)
		if err != nil {
			return "", err
		}
		return extractText(Anthropic, req.Model, respBody, "completion")
	}

	body := map[string]interface{}{
		"model":  req.Model,
		"system": req.SystemPrompt,
		"messages": []map[string]interface{}{
			{"role": "user", "content": req.UserContent},
		},
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}
	respBody, err := d.post(ctx, Anthropic, d.AnthropicBaseURL+"/v1/messages", headers, body)
	if err != nil {
		return "", err
	}
	return extractText(Anthropic, req.Model, respBody, "content.0.text")
}
