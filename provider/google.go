package provider

import (
	"context"
	"fmt"
)

func (d *Dispatcher) completeGoogle(ctx context.Context, req Request) (string, error) {
	key := d.Credentials.GoogleKey
	if key == "" {
		return "", fmt.Errorf("google: missing API key")
	}

	body := map[string]interface{}{
		"system_instruction": map[string]interface{}{
			"parts": []map[string]interface{}{
				{"text": req.SystemPrompt},
			},
		},
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{"text": req.UserContent},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     req.Temperature,
			"maxOutputTokens": req.MaxTokens,
		},
	}
	headers := map[string]string{
		"x-goog-api-key": key,
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", d.GoogleBaseURL, req.Model)
	respBody, err := d.post(ctx, Google, url, headers, body)
	if err != nil {
		return "", err
	}
	return extractText(Google, req.Model, respBody, "candidates.0.content.parts.0.text")
}
