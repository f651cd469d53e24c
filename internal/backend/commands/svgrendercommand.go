package commands

import (
	"fmt"
	"image/color"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// SvgRenderParams represents typed parameters for the SVG rasterizer
type SvgRenderParams struct {
	Width      int
	Height     int
	Background color.Color // nil keeps transparency
	Format     string
}

// NewSvgRenderParamsFromMap creates SvgRenderParams from a generic map
func NewSvgRenderParamsFromMap(params map[string]any) (*SvgRenderParams, error) {
	width := commandstructure.GetIntParam(params, "width", 0)
	height := commandstructure.GetIntParam(params, "height", 0)
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("dimensions must not be negative, got %dx%d", width, height)
	}

	format := NormalizeFormat(commandstructure.GetStringParam(params, "format", FormatPNG))
	if !IsEncodable(format) {
		return nil, fmt.Errorf("%w: cannot render SVG to %q", ErrUnsupportedFormat, format)
	}

	var bg color.Color
	if raw := strings.TrimSpace(commandstructure.GetStringParam(params, "background", "")); raw != "" && raw != "transparent" {
		c, err := ParseHexColor(raw)
		if err != nil {
			return nil, err
		}
		bg = c
	}
	if bg == nil && format == FormatJPEG {
		bg = color.White
	}

	return &SvgRenderParams{Width: width, Height: height, Background: bg, Format: format}, nil
}

// SvgRenderCommand rasterizes SVG documents
type SvgRenderCommand struct {
	name   string
	params *SvgRenderParams
}

// NewSvgRenderCommand creates a new SVG render command from request parameters
func NewSvgRenderCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewSvgRenderParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &SvgRenderCommand{name: "SvgRenderCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *SvgRenderCommand) Name() string {
	return c.name
}

// Execute renders the SVG
func (c *SvgRenderCommand) Execute(imageData []byte) ([]byte, error) {
	if !isSVGData(imageData) {
		return nil, fmt.Errorf("%w: input is not an SVG document", ErrUnsupportedFormat)
	}
	img, err := rasterizeSVG(imageData, c.params.Width, c.params.Height, c.params.Background)
	if err != nil {
		slog.Error("SvgRenderCommand: failed to render SVG", "error", err)
		return nil, err
	}
	slog.Debug("SvgRenderCommand: rendered",
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"format", c.params.Format)
	return EncodeImage(img, c.params.Format, defaultJPEGQuality)
}

var hexColorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ParseHexColor parses "#rgb" or "#rrggbb" (the leading # is optional)
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	if !hexColorPattern.MatchString(s) {
		return color.RGBA{}, fmt.Errorf("invalid color %q: expected #rgb or #rrggbb", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("SvgRenderCommand", NewSvgRenderCommand); err != nil {
		panic(fmt.Sprintf("failed to register SvgRenderCommand: %v", err))
	}
}
