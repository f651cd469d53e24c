package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultSiliconFlowBaseURL = "https://api.siliconflow.cn/v1"
	DefaultSiliconFlowModel   = "Kwai-Kolors/Kolors"
)

type siliconFlowRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ImageSize      string `json:"image_size"`
	BatchSize      int    `json:"batch_size"`
	Seed           int64  `json:"seed,omitempty"`
}

type siliconFlowResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Seed    int64  `json:"seed"`
	Message string `json:"message"`
}

// SiliconFlowClient calls the SiliconFlow image generation endpoint
type SiliconFlowClient struct {
	cfg  ClientConfig
	http HTTPDoer
}

func NewSiliconFlowClient(cfg ClientConfig) *SiliconFlowClient {
	cfg = cfg.withDefaults(DefaultSiliconFlowBaseURL, DefaultSiliconFlowModel, 120*time.Second)
	return &SiliconFlowClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *SiliconFlowClient) SetHTTPClient(client HTTPDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: c.cfg.Timeout}
		return
	}
	c.http = client
}

func (c *SiliconFlowClient) Name() string {
	return "siliconflow"
}

func (c *SiliconFlowClient) Generate(ctx context.Context, req ImageRequest) ([]GeneratedImage, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	req = req.normalized()

	body, err := json.Marshal(siliconFlowRequest{
		Model:          c.cfg.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		ImageSize:      req.Size,
		BatchSize:      req.Count,
		Seed:           req.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode siliconflow request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create siliconflow request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(c.Name(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportError(c.Name(), fmt.Errorf("failed to read response: %w", err))
	}

	var parsed siliconFlowResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := parsed.Message
		if decodeErr != nil || msg == "" {
			msg = upstreamMessage(respBody, resp.Status)
		}
		return nil, &UpstreamError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &UpstreamError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: "undecodable response", Err: decodeErr}
	}
	if len(parsed.Images) == 0 {
		return nil, &UpstreamError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: "no images returned"}
	}

	images := make([]GeneratedImage, 0, len(parsed.Images))
	for _, img := range parsed.Images {
		images = append(images, GeneratedImage{URL: img.URL, Seed: parsed.Seed})
	}
	return images, nil
}
