package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrAPIKeyMissing is returned when a provider is called without a configured key
var ErrAPIKeyMissing = errors.New("api key not configured")

// UpstreamError is a failed exchange with a remote provider: a non-2xx
// answer, an unusable body, or a transport failure (StatusCode 0).
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// transportError wraps a failure that happened before a usable response arrived
func transportError(provider string, err error) error {
	return &UpstreamError{Provider: provider, Message: err.Error(), Err: err}
}

// HTTPDoer is satisfied by *http.Client and by test fakes
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds the settings shared by all provider clients
type ClientConfig struct {
	APIKey  string        `yaml:"apiKey"`
	BaseURL string        `yaml:"baseURL"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c ClientConfig) withDefaults(baseURL, model string, timeout time.Duration) ClientConfig {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = model
	}
	if c.Timeout <= 0 {
		c.Timeout = timeout
	}
	return c
}

// fromOpenAIError converts go-openai errors into UpstreamError
func fromOpenAIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{Provider: provider, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{Provider: provider, StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: reqErr.Err}
	}
	return transportError(provider, err)
}

// upstreamMessage picks a human readable message out of an error body
func upstreamMessage(body []byte, status string) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg == "" {
		msg = status
	}
	return msg
}
