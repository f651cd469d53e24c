package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
	"golang.org/x/sync/errgroup"
)

var imageSizePattern = regexp.MustCompile(`^\d{2,4}x\d{2,4}$`)

type TextBehindRequest struct {
	Text     string   `json:"text" form:"text" validate:"required,max=100"`
	FontSize float64  `json:"fontSize" form:"fontSize" validate:"min=0"`
	Color    string   `json:"color" form:"color"`
	Opacity  *float64 `json:"opacity" form:"opacity"`
	X        *float64 `json:"x" form:"x"`
	Y        *float64 `json:"y" form:"y"`
}

type ImageGenerationRequest struct {
	Prompt         string `json:"prompt" validate:"required,max=2000"`
	NegativePrompt string `json:"negativePrompt" validate:"max=2000"`
	Size           string `json:"size"`
	Count          int    `json:"count" validate:"min=0"`
	Provider       string `json:"provider"`
	// Optimize rewrites the prompt with the chat model first
	Optimize bool  `json:"optimize"`
	Seed     int64 `json:"seed"`
}

type ImageGenerationResult struct {
	Prompt   string                     `json:"prompt"`
	Provider string                     `json:"provider"`
	Images   []providers.GeneratedImage `json:"images"`
}

type LogoRequest struct {
	LogoBrief
	Count    int    `json:"count" validate:"min=0"`
	Size     string `json:"size"`
	Provider string `json:"provider"`
}

// LogoChunk is one line of a streamed logo generation
type LogoChunk struct {
	Type   string                    `json:"type"` // prompt | image | error | done
	Index  int                       `json:"index"`
	Prompt string                    `json:"prompt,omitempty"`
	Image  *providers.GeneratedImage `json:"image,omitempty"`
	Error  string                    `json:"error,omitempty"`
}

const (
	ChunkPrompt = "prompt"
	ChunkImage  = "image"
	ChunkError  = "error"
	ChunkDone   = "done"
)

// RemoveBackground returns a PNG cutout of the main subject
func (service *CoreService) RemoveBackground(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if len(data) == 0 {
		return nil, invalidf("image data is empty")
	}
	format, err := commands.DetectFormat(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	if format == commands.FormatSVG {
		return nil, invalidf("svg input is not supported for background removal")
	}
	if service.backgroundRemover == nil {
		return nil, providers.ErrAPIKeyMissing
	}

	cutout, err := service.backgroundRemover.RemoveBackground(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to remove background: %w", err)
	}
	slog.Info("background removed", "filename", filename, "input_size_bytes", len(data), "output_size_bytes", len(cutout))
	return cutout, nil
}

// TextBehindSubject places text between the background and the cut-out subject
func (service *CoreService) TextBehindSubject(ctx context.Context, data []byte, filename string, req TextBehindRequest) ([]byte, error) {
	foreground, err := service.RemoveBackground(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"foreground": foreground,
		"text":       req.Text,
		"fontSize":   req.FontSize,
		"fontPath":   service.config.Fonts.TextBehind,
	}
	if req.Color != "" {
		params["color"] = req.Color
	}
	if req.Opacity != nil {
		params["opacity"] = *req.Opacity
	}
	if req.X != nil {
		params["x"] = *req.X
	}
	if req.Y != nil {
		params["y"] = *req.Y
	}

	command, err := service.registry.Create("TextBehindCommand", params)
	if err != nil {
		return nil, invalidInput(err)
	}
	out, err := command.Execute(data)
	if err != nil {
		return nil, fmt.Errorf("failed to composite text behind subject: %w", err)
	}
	return out, nil
}

func (service *CoreService) imageGenerator(name string) (providers.ImageGenerator, error) {
	if name == "" {
		name = service.config.Providers.ImageProvider
	}
	generator, ok := service.imageGenerators[strings.ToLower(name)]
	if !ok || generator == nil {
		return nil, invalidf("unknown image provider %q", name)
	}
	return generator, nil
}

func (service *CoreService) checkGeneration(count int, size string) (int, string, error) {
	if count <= 0 {
		count = 1
	}
	if count > service.config.Providers.MaxImageCount {
		return 0, "", invalidf("count must be at most %d, got %d", service.config.Providers.MaxImageCount, count)
	}
	if size == "" {
		size = providers.DefaultImageSize
	}
	if !imageSizePattern.MatchString(size) {
		return 0, "", invalidf("size must look like 1024x1024, got %q", size)
	}
	return count, size, nil
}

// generateAll runs count single-image requests concurrently and keeps their order
func generateAll(ctx context.Context, generator providers.ImageGenerator, req providers.ImageRequest, count int) ([]providers.GeneratedImage, error) {
	results := make([]providers.GeneratedImage, count)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			single := req
			single.Count = 1
			if req.Seed != 0 {
				single.Seed = req.Seed + int64(i)
			}
			images, err := generator.Generate(ctx, single)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			if len(images) == 0 {
				return &providers.UpstreamError{Provider: generator.Name(), Message: "no image returned"}
			}
			results[i] = images[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// GenerateImage calls the text-to-image provider, optionally improving the prompt first
func (service *CoreService) GenerateImage(ctx context.Context, req ImageGenerationRequest) (*ImageGenerationResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, invalidf("prompt is required")
	}
	count, size, err := service.checkGeneration(req.Count, req.Size)
	if err != nil {
		return nil, err
	}
	generator, err := service.imageGenerator(req.Provider)
	if err != nil {
		return nil, err
	}

	if req.Optimize {
		prompt = service.optimizePrompt(ctx, prompt)
	}

	images, err := generateAll(ctx, generator, providers.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: req.NegativePrompt,
		Size:           size,
		Seed:           req.Seed,
	}, count)
	if err != nil {
		return nil, fmt.Errorf("failed to generate images: %w", err)
	}

	slog.Info("images generated", "provider", generator.Name(), "count", len(images))
	return &ImageGenerationResult{Prompt: prompt, Provider: generator.Name(), Images: images}, nil
}

// optimizePrompt keeps the original prompt when no chat model can help
func (service *CoreService) optimizePrompt(ctx context.Context, prompt string) string {
	if service.chat == nil {
		return prompt
	}
	reply, err := service.chat.Chat(ctx, providers.ChatRequest{
		SystemPrompt: imagePromptSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    400,
		Temperature:  0.7,
	})
	if err != nil {
		slog.Warn("prompt optimization failed, using original prompt", "error", err)
		return prompt
	}
	if optimized := cleanPrompt(reply); optimized != "" {
		return optimized
	}
	return prompt
}

// logoPrompt asks the chat model for an image prompt, falling back to a template
func (service *CoreService) logoPrompt(ctx context.Context, brief LogoBrief) (string, error) {
	if strings.TrimSpace(brief.BrandName) == "" {
		return "", invalidf("brandName is required")
	}
	if service.chat == nil {
		return brief.fallbackLogoPrompt(), nil
	}
	reply, err := service.chat.Chat(ctx, providers.ChatRequest{
		SystemPrompt: logoSystemPrompt,
		UserPrompt:   brief.userPrompt(),
		MaxTokens:    400,
		Temperature:  0.8,
	})
	if errors.Is(err, providers.ErrAPIKeyMissing) {
		return brief.fallbackLogoPrompt(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to build logo prompt: %w", err)
	}
	prompt := cleanPrompt(reply)
	if prompt == "" {
		return brief.fallbackLogoPrompt(), nil
	}
	return prompt, nil
}

func (service *CoreService) prepareLogo(ctx context.Context, req LogoRequest) (providers.ImageGenerator, providers.ImageRequest, int, error) {
	count, size, err := service.checkGeneration(req.Count, req.Size)
	if err != nil {
		return nil, providers.ImageRequest{}, 0, err
	}
	generator, err := service.imageGenerator(req.Provider)
	if err != nil {
		return nil, providers.ImageRequest{}, 0, err
	}
	prompt, err := service.logoPrompt(ctx, req.LogoBrief)
	if err != nil {
		return nil, providers.ImageRequest{}, 0, err
	}
	return generator, providers.ImageRequest{
		Prompt:         prompt,
		NegativePrompt: defaultLogoNegativePrompt,
		Size:           size,
	}, count, nil
}

// GenerateLogo turns a brand brief into count logo images
func (service *CoreService) GenerateLogo(ctx context.Context, req LogoRequest) (*ImageGenerationResult, error) {
	generator, imageReq, count, err := service.prepareLogo(ctx, req)
	if err != nil {
		return nil, err
	}
	images, err := generateAll(ctx, generator, imageReq, count)
	if err != nil {
		return nil, fmt.Errorf("failed to generate logos: %w", err)
	}
	slog.Info("logos generated", "brand_name", req.BrandName, "provider", generator.Name(), "count", len(images))
	return &ImageGenerationResult{Prompt: imageReq.Prompt, Provider: generator.Name(), Images: images}, nil
}

type logoOutcome struct {
	image *providers.GeneratedImage
	err   error
}

// StreamLogo emits the prompt, then one chunk per logo in index order, then done.
// All generations start at once. A failed logo becomes an error chunk.
func (service *CoreService) StreamLogo(ctx context.Context, req LogoRequest, emit func(LogoChunk) error) error {
	generator, imageReq, count, err := service.prepareLogo(ctx, req)
	if err != nil {
		return err
	}
	if err := emit(LogoChunk{Type: ChunkPrompt, Prompt: imageReq.Prompt}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]chan logoOutcome, count)
	for i := range outcomes {
		outcomes[i] = make(chan logoOutcome, 1)
		go func(i int) {
			single := imageReq
			single.Count = 1
			images, err := generator.Generate(ctx, single)
			if err == nil && len(images) == 0 {
				err = &providers.UpstreamError{Provider: generator.Name(), Message: "no image returned"}
			}
			if err != nil {
				outcomes[i] <- logoOutcome{err: err}
				return
			}
			outcomes[i] <- logoOutcome{image: &images[0]}
		}(i)
	}

	for i, ch := range outcomes {
		var outcome logoOutcome
		select {
		case outcome = <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}

		chunk := LogoChunk{Type: ChunkImage, Index: i, Image: outcome.image}
		if outcome.err != nil {
			slog.Warn("logo generation failed", "index", i, "error", outcome.err)
			chunk = LogoChunk{Type: ChunkError, Index: i, Error: outcome.err.Error()}
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return emit(LogoChunk{Type: ChunkDone, Index: count})
}

// GenerateSvgLogo asks the chat model to draw the logo as SVG code
func (service *CoreService) GenerateSvgLogo(ctx context.Context, brief LogoBrief) ([]byte, error) {
	if strings.TrimSpace(brief.BrandName) == "" {
		return nil, invalidf("brandName is required")
	}
	if service.chat == nil {
		return nil, providers.ErrAPIKeyMissing
	}
	reply, err := service.chat.Chat(ctx, providers.ChatRequest{
		SystemPrompt: svgLogoSystemPrompt,
		UserPrompt:   brief.userPrompt(),
		MaxTokens:    4000,
		Temperature:  0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate svg logo: %w", err)
	}
	svg, ok := extractSVG(reply)
	if !ok {
		return nil, &providers.UpstreamError{Provider: "deepseek", Message: "reply contained no svg document"}
	}
	return []byte(svg), nil
}
