package core

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"github.com/jo-hoe/imagecube/internal/backend/document"
)

// ImageResult is an encoded image plus its normalized format
type ImageResult struct {
	Data   []byte
	Format string
}

func (r *ImageResult) MimeType() string {
	return commands.MimeType(r.Format)
}

type CropRequest struct {
	X      *int   `json:"x" form:"x"`
	Y      *int   `json:"y" form:"y"`
	Width  int    `json:"width" form:"width" validate:"required,min=1"`
	Height int    `json:"height" form:"height" validate:"required,min=1"`
	Angle  int    `json:"angle" form:"angle"`
	Flip   string `json:"flip" form:"flip" validate:"omitempty,oneof=horizontal vertical"`
	Format string `json:"format" form:"format"`
}

type ResizeRequest struct {
	Width      int    `json:"width" form:"width" validate:"min=0"`
	Height     int    `json:"height" form:"height" validate:"min=0"`
	KeepAspect *bool  `json:"keepAspect" form:"keepAspect"`
	Filter     string `json:"filter" form:"filter"`
	Format     string `json:"format" form:"format"`
}

type SvgRenderRequest struct {
	Width      int    `json:"width" form:"width" validate:"min=0,max=8192"`
	Height     int    `json:"height" form:"height" validate:"min=0,max=8192"`
	Background string `json:"background" form:"background"`
	Format     string `json:"format" form:"format"`
}

// runCommands executes the configured commands as one pipeline
func (service *CoreService) runCommands(data []byte, configs []commandstructure.CommandConfig) (*ImageResult, error) {
	if len(data) == 0 {
		return nil, invalidf("image data is empty")
	}
	invoker, err := commandstructure.NewCommandInvokerFromConfigs(service.registry, configs)
	if err != nil {
		return nil, invalidInput(err)
	}
	out, err := invoker.Execute(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	format, err := commands.DetectFormat(out)
	if err != nil {
		return nil, fmt.Errorf("pipeline produced unreadable output: %w", err)
	}
	return &ImageResult{Data: out, Format: format}, nil
}

func (service *CoreService) Crop(data []byte, req CropRequest) (*ImageResult, error) {
	params := map[string]any{
		"width":  req.Width,
		"height": req.Height,
		"format": req.Format,
	}
	if req.X != nil {
		params["x"] = *req.X
	}
	if req.Y != nil {
		params["y"] = *req.Y
	}

	configs := []commandstructure.CommandConfig{{Name: "CropCommand", Params: params}}
	if req.Angle != 0 || req.Flip != "" {
		configs = append(configs, commandstructure.CommandConfig{
			Name:   "RotateCommand",
			Params: map[string]any{"angle": req.Angle, "flip": req.Flip},
		})
	}
	return service.runCommands(data, configs)
}

func (service *CoreService) Resize(data []byte, req ResizeRequest) (*ImageResult, error) {
	params := map[string]any{
		"width":  req.Width,
		"height": req.Height,
		"format": req.Format,
	}
	if req.KeepAspect != nil {
		params["keepAspect"] = *req.KeepAspect
	}
	if req.Filter != "" {
		params["filter"] = req.Filter
	}
	return service.runCommands(data, []commandstructure.CommandConfig{{Name: "ResizeCommand", Params: params}})
}

// Compress shrinks the image to maxBytes, or to the configured budget when maxBytes is 0
func (service *CoreService) Compress(data []byte, maxBytes int) (*commands.CompressResult, error) {
	if len(data) == 0 {
		return nil, invalidf("image data is empty")
	}
	params := service.config.Compression.params()
	if maxBytes > 0 {
		params["maxBytes"] = maxBytes
	}

	command, err := service.registry.Create("CompressCommand", params)
	if err != nil {
		return nil, invalidInput(err)
	}
	compressor, ok := command.(*commands.CompressCommand)
	if !ok {
		return nil, fmt.Errorf("CompressCommand has unexpected type %T", command)
	}

	result, err := compressor.Compress(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	return result, nil
}

func (service *CoreService) Convert(data []byte, targetType string, quality int) (*ImageResult, error) {
	params := map[string]any{}
	if targetType != "" {
		params["targetType"] = targetType
	}
	if quality > 0 {
		params["quality"] = quality
	}
	return service.runCommands(data, []commandstructure.CommandConfig{{Name: "ConvertCommand", Params: params}})
}

func (service *CoreService) RenderSVG(svg []byte, req SvgRenderRequest) (*ImageResult, error) {
	params := map[string]any{
		"width":      req.Width,
		"height":     req.Height,
		"background": req.Background,
	}
	if req.Format != "" {
		params["format"] = req.Format
	}
	return service.runCommands(svg, []commandstructure.CommandConfig{{Name: "SvgRenderCommand", Params: params}})
}

// RecolorSVG applies the color mapping and optionally resizes the document
func (service *CoreService) RecolorSVG(svg []byte, mapping map[string]string, width, height int) ([]byte, error) {
	out, err := RecolorSVG(svg, mapping)
	if err != nil {
		return nil, err
	}
	if width > 0 || height > 0 {
		if out, err = SetSize(out, width, height); err != nil {
			return nil, err
		}
	}
	slog.Debug("recolored svg", "mappings", len(mapping), "size_bytes", len(out))
	return out, nil
}

func (service *CoreService) SvgToPPT(svgs [][]byte) ([]byte, error) {
	out, err := document.SvgToPPTX(svgs)
	if err != nil {
		return nil, invalidInput(err)
	}
	slog.Info("built pptx", "slides", len(svgs), "size_bytes", len(out))
	return out, nil
}

func (service *CoreService) ImagesToPDF(images [][]byte) ([]byte, error) {
	out, err := document.ImagesToPDF(images)
	if err != nil {
		return nil, invalidInput(err)
	}
	slog.Info("built pdf", "pages", len(images), "size_bytes", len(out))
	return out, nil
}
