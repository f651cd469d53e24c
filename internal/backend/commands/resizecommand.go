package commands

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

var resampleFilters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"linear":     imaging.Linear,
	"nearest":    imaging.NearestNeighbor,
	"catmullrom": imaging.CatmullRom,
}

// ResizeParams represents typed parameters for resize command
type ResizeParams struct {
	Width      int
	Height     int
	KeepAspect bool
	Filter     string
	Format     string
}

// NewResizeParamsFromMap creates ResizeParams from a generic map
func NewResizeParamsFromMap(params map[string]any) (*ResizeParams, error) {
	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	keepAspect := commandstructure.GetBoolParam(params, "keepAspect", true)
	filter := strings.ToLower(commandstructure.GetStringParam(params, "filter", "lanczos"))

	if width < 0 || height < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %dx%d", width, height)
	}
	if width > MaxImageDimension || height > MaxImageDimension {
		return nil, fmt.Errorf("dimensions must not exceed %d, got %dx%d", MaxImageDimension, width, height)
	}
	if !keepAspect {
		if err := checkPixels(width, height); err != nil {
			return nil, err
		}
	}
	if width == 0 && height == 0 {
		return nil, fmt.Errorf("at least one of 'height' or 'width' must be specified")
	}
	if !keepAspect && (width == 0 || height == 0) {
		return nil, fmt.Errorf("both 'height' and 'width' are required when keepAspect is false")
	}
	if _, ok := resampleFilters[filter]; !ok {
		return nil, fmt.Errorf("invalid filter: %s (must be 'lanczos', 'linear', 'nearest' or 'catmullrom')", filter)
	}

	return &ResizeParams{
		Width:      width,
		Height:     height,
		KeepAspect: keepAspect,
		Filter:     filter,
		Format:     NormalizeFormat(commandstructure.GetStringParam(params, "format", "")),
	}, nil
}

// ResizeCommand scales an image, optionally preserving its aspect ratio
type ResizeCommand struct {
	name   string
	params *ResizeParams
}

// NewResizeCommand creates a new resize command from request parameters
func NewResizeCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewResizeParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ResizeCommand{
		name:   "ResizeCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ResizeCommand) Name() string {
	return c.name
}

// targetSize computes the output dimensions. With keepAspect the image fits
// inside width x height; a zero side is derived from the other one.
func (c *ResizeCommand) targetSize(originalWidth, originalHeight int) (int, int) {
	w, h := c.params.Width, c.params.Height
	if !c.params.KeepAspect {
		return w, h
	}
	aspect := float64(originalWidth) / float64(originalHeight)
	switch {
	case w == 0:
		w = int(math.Round(float64(h) * aspect))
	case h == 0:
		h = int(math.Round(float64(w) / aspect))
	default:
		if float64(w)/float64(h) > aspect {
			w = int(math.Round(float64(h) * aspect))
		} else {
			h = int(math.Round(float64(w) / aspect))
		}
	}
	return max(w, 1), max(h, 1)
}

// Execute resizes the image
func (c *ResizeCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := DecodeImage(imageData)
	if err != nil {
		slog.Error("ResizeCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	targetWidth, targetHeight := c.targetSize(bounds.Dx(), bounds.Dy())
	if targetWidth > MaxImageDimension || targetHeight > MaxImageDimension {
		return nil, fmt.Errorf("%w: resize target %dx%d exceeds %d per side", ErrImageTooLarge, targetWidth, targetHeight, MaxImageDimension)
	}
	if err := checkPixels(targetWidth, targetHeight); err != nil {
		return nil, err
	}
	outFormat := outputFormatFor(format, c.params.Format)

	slog.Debug("ResizeCommand: resizing",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", targetWidth,
		"target_height", targetHeight,
		"filter", c.params.Filter)

	if targetWidth == bounds.Dx() && targetHeight == bounds.Dy() && outFormat == format {
		slog.Debug("ResizeCommand: target dimensions equal original; skipping")
		return imageData, nil
	}

	resized := imaging.Resize(img, targetWidth, targetHeight, resampleFilters[c.params.Filter])
	return EncodeImage(resized, outFormat, defaultJPEGQuality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ResizeCommand", NewResizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register ResizeCommand: %v", err))
	}
}
