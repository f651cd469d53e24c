package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

var ErrNoImages = errors.New("at least one image is required")

// ImagesToPDF builds a PDF with one page per image, in input order.
// Images pdfcpu cannot embed directly are converted to PNG first.
func ImagesToPDF(images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	readers := make([]io.Reader, 0, len(images))
	for i, data := range images {
		embeddable, err := embeddableImage(data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		readers = append(readers, bytes.NewReader(embeddable))
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return nil, fmt.Errorf("failed to build pdf: %w", err)
	}

	slog.Debug("built pdf", "pages", len(images), "size_bytes", out.Len())
	return out.Bytes(), nil
}

func embeddableImage(data []byte) ([]byte, error) {
	format, err := commands.DetectFormat(data)
	if err != nil {
		return nil, err
	}
	if format == commands.FormatJPEG || format == commands.FormatPNG {
		return data, nil
	}

	img, _, err := commands.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return commands.EncodeImage(img, commands.FormatPNG, 0)
}
