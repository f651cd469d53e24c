package commands

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

// ConvertParams represents typed parameters for the format converter
type ConvertParams struct {
	TargetType string
	Quality    int
	// SVG inputs are rasterized at these sizes when set
	Width  int
	Height int
}

// NewConvertParamsFromMap creates ConvertParams from a generic map
func NewConvertParamsFromMap(params map[string]any) (*ConvertParams, error) {
	targetType := NormalizeFormat(commandstructure.GetStringParam(params, "targetType", FormatPNG))
	if !IsEncodable(targetType) {
		return nil, fmt.Errorf("%w: invalid target type %q (must be 'png', 'jpeg', 'gif', 'bmp' or 'tiff')", ErrUnsupportedFormat, targetType)
	}

	quality := commandstructure.GetIntParam(params, "quality", defaultJPEGQuality)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %dx%d", width, height)
	}

	return &ConvertParams{
		TargetType: targetType,
		Quality:    quality,
		Width:      width,
		Height:     height,
	}, nil
}

// ConvertCommand handles image format conversion
type ConvertCommand struct {
	name   string
	params *ConvertParams
}

// NewConvertCommand creates a new converter command from request parameters
func NewConvertCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewConvertParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ConvertCommand{
		name:   "ConvertCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ConvertCommand) Name() string {
	return c.name
}

// Execute converts the image to the target format
func (c *ConvertCommand) Execute(imageData []byte) ([]byte, error) {
	currentFormat, err := DetectFormat(imageData)
	if err != nil {
		slog.Error("ConvertCommand: failed to detect image format", "error", err)
		return nil, err
	}

	slog.Debug("ConvertCommand: converting image format",
		"from", currentFormat,
		"to", c.params.TargetType,
		"input_size_bytes", len(imageData))

	if currentFormat == c.params.TargetType {
		slog.Debug("ConvertCommand: already in target format, no conversion needed")
		return imageData, nil
	}

	if currentFormat == FormatSVG {
		img, err := rasterizeSVG(imageData, c.params.Width, c.params.Height, nil)
		if err != nil {
			return nil, err
		}
		return EncodeImage(img, c.params.TargetType, c.params.Quality)
	}

	img, _, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}
	out, err := EncodeImage(img, c.params.TargetType, c.params.Quality)
	if err != nil {
		slog.Error("ConvertCommand: failed to encode image",
			"target_format", c.params.TargetType,
			"error", err)
		return nil, err
	}

	slog.Debug("ConvertCommand: conversion complete",
		"output_size_bytes", len(out),
		"output_format", c.params.TargetType)
	return out, nil
}

// GetTargetType returns the configured target type
func (c *ConvertCommand) GetTargetType() string {
	return c.params.TargetType
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ConvertCommand", NewConvertCommand); err != nil {
		panic(fmt.Sprintf("failed to register ConvertCommand: %v", err))
	}
}
