package providers

import "context"

// ImageRequest describes a text-to-image call
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Size           string // "WIDTHxHEIGHT"
	Count          int
	Seed           int64 // 0 lets the provider choose
}

// GeneratedImage is one result; URL or B64JSON is set
type GeneratedImage struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64Json,omitempty"`
	Seed    int64  `json:"seed,omitempty"`
}

// ImageGenerator is implemented by SiliconFlowClient and ZhipuClient
type ImageGenerator interface {
	Name() string
	Generate(ctx context.Context, req ImageRequest) ([]GeneratedImage, error)
}

const DefaultImageSize = "1024x1024"

func (r ImageRequest) normalized() ImageRequest {
	if r.Size == "" {
		r.Size = DefaultImageSize
	}
	if r.Count <= 0 {
		r.Count = 1
	}
	return r
}
