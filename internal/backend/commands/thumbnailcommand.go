package commands

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

// ThumbnailCommand downsizes an image to a fixed width and always emits PNG.
// Images narrower than the width are not upscaled.
type ThumbnailCommand struct {
	name  string
	width int
}

// NewThumbnailCommand creates a thumbnail command; width is required
func NewThumbnailCommand(params map[string]any) (commandstructure.Command, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"width"}); err != nil {
		return nil, err
	}
	width := commandstructure.GetIntParam(params, "width", 0)
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	return &ThumbnailCommand{name: "ThumbnailCommand", width: width}, nil
}

// Name returns the command name
func (c *ThumbnailCommand) Name() string {
	return c.name
}

// Execute renders the thumbnail
func (c *ThumbnailCommand) Execute(imageData []byte) ([]byte, error) {
	img, _, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() > c.width {
		img = imaging.Resize(img, c.width, 0, imaging.Linear)
	}
	return EncodeImage(img, FormatPNG, 0)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ThumbnailCommand", NewThumbnailCommand); err != nil {
		panic(fmt.Sprintf("failed to register ThumbnailCommand: %v", err))
	}
}
