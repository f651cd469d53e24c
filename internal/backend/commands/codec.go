package commands

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatWEBP = "webp"
	FormatSVG  = "svg"

	defaultJPEGQuality = 90

	// MaxImagePixels bounds decoded and resized images (about 200 MB as RGBA)
	MaxImagePixels = 50_000_000
	// MaxImageDimension bounds either side of a resize target
	MaxImageDimension = 16384
)

// ErrUnsupportedFormat is returned when input bytes cannot be decoded or a
// target format cannot be encoded.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrImageTooLarge is returned when an image exceeds MaxImagePixels
var ErrImageTooLarge = errors.New("image exceeds the pixel limit")

var encodableFormats = map[string]imaging.Format{
	FormatPNG:  imaging.PNG,
	FormatJPEG: imaging.JPEG,
	FormatGIF:  imaging.GIF,
	FormatBMP:  imaging.BMP,
	FormatTIFF: imaging.TIFF,
}

var mimeTypes = map[string]string{
	FormatPNG:  "image/png",
	FormatJPEG: "image/jpeg",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
	FormatWEBP: "image/webp",
	FormatSVG:  "image/svg+xml",
}

// NormalizeFormat maps user supplied names and extensions onto the format constants
func NormalizeFormat(name string) string {
	f := strings.ToLower(strings.TrimSpace(name))
	f = strings.TrimPrefix(f, ".")
	f = strings.TrimPrefix(f, "image/")
	switch f {
	case "jpg", "jpe", "jfif":
		return FormatJPEG
	case "tif":
		return FormatTIFF
	case "svg+xml":
		return FormatSVG
	}
	return f
}

// IsEncodable reports whether the normalized format can be written
func IsEncodable(format string) bool {
	_, ok := encodableFormats[NormalizeFormat(format)]
	return ok
}

// MimeType returns the content type for a normalized format, defaulting to octet-stream
func MimeType(format string) string {
	if m, ok := mimeTypes[NormalizeFormat(format)]; ok {
		return m
	}
	return "application/octet-stream"
}

// Extension returns the usual file extension (without dot) for a format
func Extension(format string) string {
	switch NormalizeFormat(format) {
	case FormatJPEG:
		return "jpg"
	case "":
		return "bin"
	default:
		return NormalizeFormat(format)
	}
}

// DetectFormat sniffs the format of the given bytes without fully decoding
// them. Raster images whose header exceeds MaxImagePixels are rejected.
func DetectFormat(data []byte) (string, error) {
	if isSVGData(data) {
		return FormatSVG, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if err := checkPixels(cfg.Width, cfg.Height); err != nil {
		return "", err
	}
	return NormalizeFormat(format), nil
}

func checkPixels(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if int64(width)*int64(height) > MaxImagePixels {
		return fmt.Errorf("%w: %dx%d is more than %d pixels", ErrImageTooLarge, width, height, MaxImagePixels)
	}
	return nil
}

// DecodeImage decodes any supported raster format or SVG. SVG input is
// rasterized at its intrinsic size on a transparent canvas.
func DecodeImage(data []byte) (image.Image, string, error) {
	format, err := DetectFormat(data)
	if err != nil {
		return nil, "", err
	}
	if format == FormatSVG {
		img, err := rasterizeSVG(data, 0, 0, nil)
		if err != nil {
			return nil, "", err
		}
		return img, FormatSVG, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, format, nil
}

// EncodeImage writes img in the given format. Quality only applies to JPEG;
// JPEG output is flattened onto a white background first.
func EncodeImage(img image.Image, format string, quality int) ([]byte, error) {
	format = NormalizeFormat(format)
	target, ok := encodableFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode %q", ErrUnsupportedFormat, format)
	}

	var buf bytes.Buffer
	bb := img.Bounds()
	// rough heuristic: 1 byte per pixel
	buf.Grow(bb.Dx() * bb.Dy())

	var err error
	if target == imaging.JPEG {
		if quality <= 0 || quality > 100 {
			quality = defaultJPEGQuality
		}
		err = imaging.Encode(&buf, flattenOnto(img, color.White), imaging.JPEG, imaging.JPEGQuality(quality))
	} else {
		err = imaging.Encode(&buf, img, target)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode image to %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// outputFormatFor keeps the source format when it can be written back and
// falls back to PNG otherwise (webp, svg).
func outputFormatFor(sourceFormat, requested string) string {
	if requested != "" && IsEncodable(requested) {
		return NormalizeFormat(requested)
	}
	if IsEncodable(sourceFormat) {
		return NormalizeFormat(sourceFormat)
	}
	return FormatPNG
}

// flattenOnto composites img over an opaque background of the given color
func flattenOnto(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	// Draw row bands in parallel
	parallelFor(b.Dy(), func(y int) {
		row := image.Rect(0, y, b.Dx(), y+1)
		draw.Draw(dst, row, img, image.Pt(b.Min.X, b.Min.Y+y), draw.Over)
	})
	return dst
}
