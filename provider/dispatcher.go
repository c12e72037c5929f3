package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultGoogleBaseURL    = "https://generativelanguage.googleapis.com"

	anthropicVersion = "2023-06-01"
)

// Dispatcher sends completion requests to the backend selected by the
// request's Provider field. Base URLs and the HTTP client are exported so
// callers (and tests) can point it elsewhere.
type Dispatcher struct {
	Credentials Credentials
	HTTPClient  *http.Client

	OpenAIBaseURL    string
	AnthropicBaseURL string
	GoogleBaseURL    string
}

// NewDispatcher creates a dispatcher with default endpoints and a 120s
// request timeout. Per-call blocking is the intended model; the timeout
// only bounds a hung connection.
func NewDispatcher(creds Credentials) *Dispatcher {
	return &Dispatcher{
		Credentials:      creds,
		HTTPClient:       &http.Client{Timeout: 120 * time.Second},
		OpenAIBaseURL:    defaultOpenAIBaseURL,
		AnthropicBaseURL: defaultAnthropicBaseURL,
		GoogleBaseURL:    defaultGoogleBaseURL,
	}
}

// Complete dispatches one request and returns the raw completion text. It
// returns *Error for upstream failures and *EmptyCompletionError when the
// backend answered with nothing usable.
func (d *Dispatcher) Complete(ctx context.Context, req Request) (string, error) {
	switch req.Provider {
	case OpenAI:
		return d.completeOpenAI(ctx, req)
	case Anthropic:
		return d.completeAnthropic(ctx, req)
	case Google:
		return d.completeGoogle(ctx, req)
	default:
		return "", fmt.Errorf("unknown provider %q", req.Provider)
	}
}

// post sends a JSON body and returns the response bytes, mapping transport
// failures and non-200 statuses to *Error.
func (d *Dispatcher) post(ctx context.Context, p Name, url string, headers map[string]string, body map[string]interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: p, StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Provider: p, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Provider: p, StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}
	return respBody, nil
}

// extractText pulls the completion text out of a response body at the given
// gjson path.
func extractText(p Name, model string, body []byte, path string) (string, error) {
	text := gjson.GetBytes(body, path).String()
	if strings.TrimSpace(text) == "" {
		return "", &EmptyCompletionError{Provider: p, Model: model}
	}
	return text, nil
}

// apiErrorMessage digs the human-readable message out of an error body.
// All three backends use an {"error": {"message": ...}} envelope.
func apiErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
