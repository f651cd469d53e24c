package providers

import (
	"context"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultZhipuBaseURL = "https://open.bigmodel.cn/api/paas/v4"
	DefaultZhipuModel   = "cogview-3-flash"
)

// ZhipuClient generates images through the OpenAI-compatible CogView API
type ZhipuClient struct {
	cfg  ClientConfig
	http HTTPDoer
}

func NewZhipuClient(cfg ClientConfig) *ZhipuClient {
	cfg = cfg.withDefaults(DefaultZhipuBaseURL, DefaultZhipuModel, 120*time.Second)
	return &ZhipuClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *ZhipuClient) SetHTTPClient(client HTTPDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: c.cfg.Timeout}
		return
	}
	c.http = client
}

func (c *ZhipuClient) Name() string {
	return "zhipu"
}

func (c *ZhipuClient) Generate(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	req = req.normalized()

	config := openai.DefaultConfig(c.cfg.APIKey)
	config.BaseURL = c.cfg.BaseURL
	config.HTTPClient = c.http
	client := openai.NewClientWithConfig(config)

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          c.cfg.Model,
		N:              req.Count,
		Size:           req.Size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fromOpenAIError(c.Name(), err)
	}
	if len(resp.Data) == 0 {
		return nil, &UpstreamError{Provider: c.Name(), StatusCode: http.StatusOK, Message: "no images returned"}
	}

	images := make([]GeneratedImage, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, GeneratedImage{URL: d.URL, B64JSON: d.B64JSON})
	}
	return images, nil
}
