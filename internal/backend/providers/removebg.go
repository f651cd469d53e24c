package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const DefaultRemoveBgBaseURL = "https://api.remove.bg/v1.0"

// maxCutoutBytes bounds the PNG cutout read from remove.bg
const maxCutoutBytes = 50 << 20

type removeBgErrorResponse struct {
	Errors []struct {
		Title string `json:"title"`
	} `json:"errors"`
}

// RemoveBgClient calls the remove.bg background removal API
type RemoveBgClient struct {
	cfg  ClientConfig
	http HTTPDoer
}

func NewRemoveBgClient(cfg ClientConfig) *RemoveBgClient {
	cfg = cfg.withDefaults(DefaultRemoveBgBaseURL, "", 60*time.Second)
	return &RemoveBgClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *RemoveBgClient) SetHTTPClient(client HTTPDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: c.cfg.Timeout}
		return
	}
	c.http = client
}

// RemoveBackground uploads the image and returns the PNG cutout
func (c *RemoveBgClient) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if filename == "" {
		filename = "image"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image to multipart body: %w", err)
	}
	if err := writer.WriteField("size", "auto"); err != nil {
		return nil, fmt.Errorf("failed to write size field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/removebg", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create remove.bg request: %w", err)
	}
	httpReq.Header.Set("X-Api-Key", c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError("remove.bg", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxCutoutBytes))
	if err != nil {
		return nil, transportError("remove.bg", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := upstreamMessage(respBody, resp.Status)
		var parsed removeBgErrorResponse
		if json.Unmarshal(respBody, &parsed) == nil && len(parsed.Errors) > 0 {
			titles := make([]string, 0, len(parsed.Errors))
			for _, e := range parsed.Errors {
				titles = append(titles, e.Title)
			}
			msg = strings.Join(titles, "; ")
		}
		return nil, &UpstreamError{Provider: "remove.bg", StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}
