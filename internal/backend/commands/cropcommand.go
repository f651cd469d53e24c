package commands

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

// CropParams represents typed parameters for crop command
type CropParams struct {
	X, Y     int
	Width    int
	Height   int
	Centered bool // true when no x/y was supplied
	Format   string
}

// NewCropParamsFromMap creates CropParams from a generic map
func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}

	height := commandstructure.GetIntParam(params, "height", 0)
	width := commandstructure.GetIntParam(params, "width", 0)
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}

	hasX := commandstructure.HasParam(params, "x")
	hasY := commandstructure.HasParam(params, "y")
	x := commandstructure.GetIntParam(params, "x", 0)
	y := commandstructure.GetIntParam(params, "y", 0)
	if x < 0 || y < 0 {
		return nil, fmt.Errorf("crop origin must not be negative, got (%d,%d)", x, y)
	}

	return &CropParams{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		Centered: !hasX && !hasY,
		Format:   NormalizeFormat(commandstructure.GetStringParam(params, "format", "")),
	}, nil
}

// CropCommand cuts a rectangle out of the image
type CropCommand struct {
	name   string
	params *CropParams
}

// NewCropCommand creates a new crop command from request parameters
func NewCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &CropCommand{
		name:   "CropCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *CropCommand) Name() string {
	return c.name
}

// cropRect computes the clamped crop rectangle for an image of the given size
func (c *CropCommand) cropRect(imgWidth, imgHeight int) image.Rectangle {
	x0, y0 := c.params.X, c.params.Y
	if c.params.Centered {
		x0 = (imgWidth - c.params.Width) / 2
		y0 = (imgHeight - c.params.Height) / 2
		if x0 < 0 {
			x0 = 0
		}
		if y0 < 0 {
			y0 = 0
		}
	}
	rect := image.Rect(x0, y0, x0+c.params.Width, y0+c.params.Height)
	return rect.Intersect(image.Rect(0, 0, imgWidth, imgHeight))
}

// Execute crops the image to the configured rectangle
func (c *CropCommand) Execute(imageData []byte) ([]byte, error) {
	img, format, err := DecodeImage(imageData)
	if err != nil {
		slog.Error("CropCommand: failed to decode image", "error", err)
		return nil, err
	}

	bounds := img.Bounds()
	rect := c.cropRect(bounds.Dx(), bounds.Dy())
	if rect.Empty() {
		return nil, fmt.Errorf("crop rectangle (%d,%d %dx%d) lies outside the %dx%d image",
			c.params.X, c.params.Y, c.params.Width, c.params.Height, bounds.Dx(), bounds.Dy())
	}

	slog.Debug("CropCommand: cropping",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"crop_x", rect.Min.X,
		"crop_y", rect.Min.Y,
		"crop_width", rect.Dx(),
		"crop_height", rect.Dy())

	outFormat := outputFormatFor(format, c.params.Format)
	if rect.Eq(image.Rect(0, 0, bounds.Dx(), bounds.Dy())) && outFormat == format {
		slog.Debug("CropCommand: no crop needed, rectangle covers whole image")
		return imageData, nil
	}

	cropped := imaging.Crop(img, rect.Add(bounds.Min))
	return EncodeImage(cropped, outFormat, defaultJPEGQuality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("CropCommand", NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register CropCommand: %v", err))
	}
}
