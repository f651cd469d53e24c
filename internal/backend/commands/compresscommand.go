package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
)

// DefaultMaxBytes is the upload size budget (500 KB)
const DefaultMaxBytes = 500 * 1024

const downscaleFactor = 0.8

// ErrBudgetUnreachable is returned when even the smallest allowed rendering
// exceeds the byte budget.
var ErrBudgetUnreachable = errors.New("image cannot be compressed below the size budget")

// CompressParams represents typed parameters for compress command
type CompressParams struct {
	MaxBytes       int
	InitialQuality int
	MinQuality     int
	QualityStep    int
	MinDimension   int
}

// NewCompressParamsFromMap creates CompressParams from a generic map
func NewCompressParamsFromMap(params map[string]any) (*CompressParams, error) {
	p := &CompressParams{
		MaxBytes:       commandstructure.GetIntParam(params, "maxBytes", DefaultMaxBytes),
		InitialQuality: commandstructure.GetIntParam(params, "initialQuality", defaultJPEGQuality),
		MinQuality:     commandstructure.GetIntParam(params, "minQuality", 10),
		QualityStep:    commandstructure.GetIntParam(params, "qualityStep", 10),
		MinDimension:   commandstructure.GetIntParam(params, "minDimension", 64),
	}

	if p.MaxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", p.MaxBytes)
	}
	if p.InitialQuality < 1 || p.InitialQuality > 100 {
		return nil, fmt.Errorf("initialQuality must be between 1 and 100, got %d", p.InitialQuality)
	}
	if p.MinQuality < 1 || p.MinQuality > p.InitialQuality {
		return nil, fmt.Errorf("minQuality must be between 1 and initialQuality (%d), got %d", p.InitialQuality, p.MinQuality)
	}
	if p.QualityStep <= 0 {
		return nil, fmt.Errorf("qualityStep must be positive, got %d", p.QualityStep)
	}
	if p.MinDimension <= 0 {
		return nil, fmt.Errorf("minDimension must be positive, got %d", p.MinDimension)
	}
	return p, nil
}

// CompressResult describes the outcome of a compression run
type CompressResult struct {
	Data         []byte
	OriginalSize int
	Quality      int // 0 when the input was returned unchanged
	Width        int
	Height       int
}

// CompressCommand re-encodes an image as JPEG with decreasing quality, and
// then decreasing size, until it fits into MaxBytes.
type CompressCommand struct {
	name   string
	params *CompressParams
}

// NewCompressCommand creates a new compress command from request parameters
func NewCompressCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCompressParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &CompressCommand{name: "CompressCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *CompressCommand) Name() string {
	return c.name
}

// Execute returns only the compressed bytes
func (c *CompressCommand) Execute(imageData []byte) ([]byte, error) {
	result, err := c.Compress(imageData)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Compress runs the quality loop and reports what it did
func (c *CompressCommand) Compress(imageData []byte) (*CompressResult, error) {
	format, err := DetectFormat(imageData)
	if err != nil {
		return nil, err
	}

	if format == FormatJPEG && len(imageData) <= c.params.MaxBytes {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
		if err == nil {
			slog.Debug("CompressCommand: input already within budget",
				"size_bytes", len(imageData),
				"max_bytes", c.params.MaxBytes)
			return &CompressResult{
				Data:         imageData,
				OriginalSize: len(imageData),
				Width:        cfg.Width,
				Height:       cfg.Height,
			}, nil
		}
	}

	decoded, _, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}
	var img image.Image = flattenOnto(decoded, color.White)

	for {
		b := img.Bounds()
		for q := c.params.InitialQuality; ; q -= c.params.QualityStep {
			if q < c.params.MinQuality {
				q = c.params.MinQuality
			}
			out, err := EncodeImage(img, FormatJPEG, q)
			if err != nil {
				return nil, err
			}
			slog.Debug("CompressCommand: attempt",
				"quality", q,
				"width", b.Dx(),
				"height", b.Dy(),
				"size_bytes", len(out),
				"max_bytes", c.params.MaxBytes)
			if len(out) <= c.params.MaxBytes {
				slog.Info("CompressCommand: compressed",
					"original_size_bytes", len(imageData),
					"compressed_size_bytes", len(out),
					"quality", q,
					"width", b.Dx(),
					"height", b.Dy())
				return &CompressResult{
					Data:         out,
					OriginalSize: len(imageData),
					Quality:      q,
					Width:        b.Dx(),
					Height:       b.Dy(),
				}, nil
			}
			if q == c.params.MinQuality {
				break
			}
		}

		nextW := int(float64(b.Dx()) * downscaleFactor)
		nextH := int(float64(b.Dy()) * downscaleFactor)
		if max(nextW, nextH) < c.params.MinDimension || nextW < 1 || nextH < 1 {
			return nil, fmt.Errorf("%w: %d bytes at %dx%d quality %d",
				ErrBudgetUnreachable, c.params.MaxBytes, b.Dx(), b.Dy(), c.params.MinQuality)
		}
		img = imaging.Resize(img, nextW, nextH, imaging.Lanczos)
	}
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("CompressCommand", NewCompressCommand); err != nil {
		panic(fmt.Sprintf("failed to register CompressCommand: %v", err))
	}
}
