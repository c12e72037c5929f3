package provider

import (
	"context"
	"fmt"
)

func (d *Dispatcher) completeOpenAI(ctx context.Context, req Request) (string, error) {
	key := d.Credentials.OpenAIKey
	if key == "" {
		return "", fmt.Errorf("openai: missing API key")
	}

	body := map[string]interface{}{
		"model": req.Model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserContent},
		},
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}
	headers := map[string]string{
		"authorization": "Bearer " + key,
	}

	respBody, err := d.post(ctx, OpenAI, d.OpenAIBaseURL+"/v1/chat/completions", headers, body)
	if err != nil {
		return "", err
	}
	return extractText(OpenAI, req.Model, respBody, "choices.0.message.content")
}
