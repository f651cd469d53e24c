package commands

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TextBehindParams represents typed parameters for the text-behind-subject compositor
type TextBehindParams struct {
	Text     string
	FontSize float64 // pixels; 0 derives it from the image height
	Color    color.RGBA
	Opacity  float64
	// Text center relative to the image, 0..1
	X, Y     float64
	FontPath string
}

// NewTextBehindParamsFromMap creates TextBehindParams from a generic map
func NewTextBehindParamsFromMap(params map[string]any) (*TextBehindParams, error) {
	text := strings.TrimSpace(commandstructure.GetStringParam(params, "text", ""))
	if text == "" {
		return nil, fmt.Errorf("missing required parameter: text")
	}

	fontSize := commandstructure.GetFloatParam(params, "fontSize", 0)
	if fontSize < 0 {
		return nil, fmt.Errorf("fontSize must not be negative, got %v", fontSize)
	}

	c, err := ParseHexColor(commandstructure.GetStringParam(params, "color", "#ffffff"))
	if err != nil {
		return nil, err
	}

	opacity := commandstructure.GetFloatParam(params, "opacity", 1)
	if opacity < 0 || opacity > 1 {
		return nil, fmt.Errorf("opacity must be between 0 and 1, got %v", opacity)
	}

	x := commandstructure.GetFloatParam(params, "x", 0.5)
	y := commandstructure.GetFloatParam(params, "y", 0.5)
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return nil, fmt.Errorf("text position must be within 0..1, got (%v,%v)", x, y)
	}

	return &TextBehindParams{
		Text:     text,
		FontSize: fontSize,
		Color:    c,
		Opacity:  opacity,
		X:        x,
		Y:        y,
		FontPath: commandstructure.GetStringParam(params, "fontPath", ""),
	}, nil
}

// TextBehindCommand draws text onto the background and places the subject
// cutout on top, so the text appears behind the subject.
type TextBehindCommand struct {
	name       string
	params     *TextBehindParams
	foreground []byte
}

// NewTextBehindCommand creates the compositor. The "foreground" param must
// hold the PNG cutout bytes of the subject.
func NewTextBehindCommand(params map[string]any) (commandstructure.Command, error) {
	foreground, ok := params["foreground"].([]byte)
	if !ok || len(foreground) == 0 {
		return nil, fmt.Errorf("missing required parameter: foreground")
	}
	typedParams, err := NewTextBehindParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &TextBehindCommand{name: "TextBehindCommand", params: typedParams, foreground: foreground}, nil
}

// Name returns the command name
func (c *TextBehindCommand) Name() string {
	return c.name
}

// Execute composites background, text and foreground into a PNG
func (c *TextBehindCommand) Execute(imageData []byte) ([]byte, error) {
	bgImg, _, err := DecodeImage(imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode background: %w", err)
	}
	fgImg, _, err := DecodeImage(c.foreground)
	if err != nil {
		return nil, fmt.Errorf("failed to decode foreground: %w", err)
	}

	canvas := imaging.Clone(bgImg)
	bounds := canvas.Bounds()
	if fgImg.Bounds().Dx() != bounds.Dx() || fgImg.Bounds().Dy() != bounds.Dy() {
		slog.Debug("TextBehindCommand: resizing foreground to background size",
			"foreground_width", fgImg.Bounds().Dx(),
			"foreground_height", fgImg.Bounds().Dy(),
			"width", bounds.Dx(),
			"height", bounds.Dy())
		fgImg = imaging.Resize(fgImg, bounds.Dx(), bounds.Dy(), imaging.Lanczos)
	}

	size := c.params.FontSize
	if size == 0 {
		size = float64(bounds.Dy()) / 5
	}
	face, err := loadFace(c.params.FontPath, size)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	textLayer := image.NewNRGBA(bounds)
	drawCenteredText(textLayer, face, c.params.Text, c.params.Color,
		int(c.params.X*float64(bounds.Dx())), int(c.params.Y*float64(bounds.Dy())))

	canvas = imaging.Overlay(canvas, textLayer, image.Point{}, c.params.Opacity)
	canvas = imaging.Overlay(canvas, fgImg, image.Point{}, 1.0)

	return EncodeImage(canvas, FormatPNG, 0)
}

// drawCenteredText draws possibly multi-line text centered on (cx, cy)
func drawCenteredText(dst *image.NRGBA, face font.Face, text string, col color.Color, cx, cy int) {
	lines := strings.Split(text, "\n")
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	if lineHeight <= 0 {
		lineHeight = (metrics.Ascent + metrics.Descent).Ceil()
	}
	blockHeight := lineHeight * len(lines)
	top := cy - blockHeight/2

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
	}
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		baseline := top + i*lineHeight + metrics.Ascent.Ceil()
		d.Dot = fixed.P(cx-width/2, baseline)
		d.DrawString(line)
	}
}

var (
	defaultFontOnce sync.Once
	defaultFont     *opentype.Font
	defaultFontErr  error
)

// loadFace opens the configured TrueType/OpenType font or falls back to Go Bold.
// The bundled fallback has no CJK glyphs, so Chinese text needs fontPath.
func loadFace(fontPath string, size float64) (font.Face, error) {
	var f *opentype.Font
	if fontPath != "" {
		data, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font %s: %w", fontPath, err)
		}
		f, err = opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font %s: %w", fontPath, err)
		}
	} else {
		defaultFontOnce.Do(func() {
			defaultFont, defaultFontErr = opentype.Parse(gobold.TTF)
		})
		if defaultFontErr != nil {
			return nil, fmt.Errorf("failed to parse default font: %w", defaultFontErr)
		}
		f = defaultFont
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("TextBehindCommand", NewTextBehindCommand); err != nil {
		panic(fmt.Sprintf("failed to register TextBehindCommand: %v", err))
	}
}
