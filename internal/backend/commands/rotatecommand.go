package commands

import (
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

// RotateParams represents typed parameters for rotate command
type RotateParams struct {
	Angle int    // clockwise degrees: 0, 90, 180 or 270
	Flip  string // "", "horizontal" or "vertical"; applied after rotation
}

// NewRotateParamsFromMap creates RotateParams from a generic map
func NewRotateParamsFromMap(params map[string]any) (*RotateParams, error) {
	angle := commandstructure.GetIntParam(params, "angle", 0)
	angle = ((angle % 360) + 360) % 360
	if angle%90 != 0 {
		return nil, fmt.Errorf("invalid angle: %d (must be a multiple of 90)", angle)
	}

	flip := strings.ToLower(strings.TrimSpace(commandstructure.GetStringParam(params, "flip", "")))
	switch flip {
	case "", "horizontal", "vertical":
	default:
		return nil, fmt.Errorf("invalid flip: %s (must be 'horizontal' or 'vertical')", flip)
	}

	return &RotateParams{Angle: angle, Flip: flip}, nil
}

// RotateCommand rotates by quarter turns and optionally mirrors the image
type RotateCommand struct {
	name   string
	params *RotateParams
}

// NewRotateCommand creates a new rotate command from request parameters
func NewRotateCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewRotateParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &RotateCommand{name: "RotateCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *RotateCommand) Name() string {
	return c.name
}

// Execute applies the rotation and flip
func (c *RotateCommand) Execute(imageData []byte) ([]byte, error) {
	if c.params.Angle == 0 && c.params.Flip == "" {
		return imageData, nil
	}

	img, format, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	var out image.Image = img
	// imaging rotates counter-clockwise
	switch c.params.Angle {
	case 90:
		out = imaging.Rotate270(out)
	case 180:
		out = imaging.Rotate180(out)
	case 270:
		out = imaging.Rotate90(out)
	}
	switch c.params.Flip {
	case "horizontal":
		out = imaging.FlipH(out)
	case "vertical":
		out = imaging.FlipV(out)
	}

	slog.Debug("RotateCommand: rotated",
		"angle", c.params.Angle,
		"flip", c.params.Flip,
		"width", out.Bounds().Dx(),
		"height", out.Bounds().Dy())

	return EncodeImage(out, outputFormatFor(format, ""), defaultJPEGQuality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("RotateCommand", NewRotateCommand); err != nil {
		panic(fmt.Sprintf("failed to register RotateCommand: %v", err))
	}
}
