package providers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/imagecube/internal/common"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	DefaultDeepSeekModel   = "deepseek-chat"

	deepSeekAttempts = 3
)

// ChatRequest is one system/user exchange
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

// DeepSeekClient talks to the OpenAI-compatible DeepSeek chat API
type DeepSeekClient struct {
	cfg        ClientConfig
	http       HTTPDoer
	retryDelay time.Duration
}

func NewDeepSeekClient(cfg ClientConfig) *DeepSeekClient {
	cfg = cfg.withDefaults(DefaultDeepSeekBaseURL, DefaultDeepSeekModel, 60*time.Second)
	return &DeepSeekClient{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		retryDelay: time.Second,
	}
}

func (c *DeepSeekClient) SetHTTPClient(client HTTPDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: c.cfg.Timeout}
		return
	}
	c.http = client
}

func (c *DeepSeekClient) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}

// Chat returns the assistant message, retrying failed calls
func (c *DeepSeekClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrAPIKeyMissing
	}

	config := openai.DefaultConfig(c.cfg.APIKey)
	config.BaseURL = c.cfg.BaseURL
	config.HTTPClient = c.http
	client := openai.NewClientWithConfig(config)

	messages := []openai.ChatCompletionMessage{}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	return common.Retry(ctx, deepSeekAttempts, c.retryDelay, func(ctx context.Context) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			return "", fromOpenAIError("deepseek", err)
		}
		if len(resp.Choices) == 0 {
			return "", &UpstreamError{Provider: "deepseek", StatusCode: http.StatusOK, Message: "no choices returned"}
		}
		slog.Debug("deepseek completion",
			"model", c.cfg.Model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}
