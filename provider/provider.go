// Package provider routes a single prompt to one of the supported LLM
// completion backends over raw HTTP and returns the completion text.
// Provider-specific request and response shapes stay behind the Dispatcher.
package provider

import (
	"fmt"
	"os"
	"strings"
)

// Name identifies a supported completion backend. The set is closed:
// configuration with an unknown name is rejected up front, never at call
// time.
type Name string

const (
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
	Google    Name = "google"
)

// ParseName validates a configured provider name.
func ParseName(s string) (Name, error) {
	switch Name(strings.ToLower(strings.TrimSpace(s))) {
	case OpenAI:
		return OpenAI, nil
	case Anthropic:
		return Anthropic, nil
	case Google:
		return Google, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want openai, anthropic or google)", s)
	}
}

// Credentials carries the API keys for one run. They are passed explicitly
// at dispatcher construction; nothing in the dispatch path reads process
// environment.
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
	GoogleKey    string
}

// CredentialsFromEnv collects keys from the conventional environment
// variables. Intended for composition roots only.
func CredentialsFromEnv() Credentials {
	return Credentials{
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GoogleKey:    os.Getenv("GOOGLE_API_KEY"),
	}
}

// KeyFor returns the credential for a provider, empty when unset.
func (c Credentials) KeyFor(p Name) string {
	switch p {
	case OpenAI:
		return c.OpenAIKey
	case Anthropic:
		return c.AnthropicKey
	case Google:
		return c.GoogleKey
	default:
		return ""
	}
}

// Request is one completion call. SystemPrompt and UserContent are kept
// separate; each backend maps them onto its own wire shape.
type Request struct {
	Provider     Name
	Model        string
	SystemPrompt string
	UserContent  string
	Temperature  float64
	MaxTokens    int
}

// Error is a classified upstream API failure: a non-success HTTP status, a
// transport failure (StatusCode 0), or an unparseable body. Provider errors
// are retryable up to the run's attempt budget.
type Error struct {
	Provider   Name
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: request failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// EmptyCompletionError reports that the API call succeeded but returned no
// usable text. Absence of content is an error condition, never a silent
// blank success. Retryable with the same budget as Error.
type EmptyCompletionError struct {
	Provider Name
	Model    string
}

func (e *EmptyCompletionError) Error() string {
	return fmt.Sprintf("%s: model %s returned an empty completion", e.Provider, e.Model)
}
