package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/commandstructure"
	"github.com/jo-hoe/imagecube/internal/backend/database"
)

const maxGalleryNameLength = 128

// AddGalleryImage runs the upload pipeline, keeps the payload under the
// compression budget and stores it at the head of the gallery.
func (service *CoreService) AddGalleryImage(ctx context.Context, name string, data []byte) (*database.GalleryImage, error) {
	if len(data) == 0 {
		return nil, invalidf("image data is empty")
	}
	format, err := commands.DetectFormat(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	if format == commands.FormatSVG {
		rendered, err := service.runCommands(data, []commandstructure.CommandConfig{{Name: "SvgRenderCommand", Params: map[string]any{}}})
		if err != nil {
			return nil, err
		}
		data = rendered.Data
	}

	processed, err := service.galleryPipeline.Execute(data)
	if err != nil {
		return nil, invalidInput(err)
	}
	if format, err = commands.DetectFormat(processed); err != nil {
		return nil, fmt.Errorf("gallery pipeline produced unreadable output: %w", err)
	}

	if len(processed) > service.config.Compression.MaxBytes {
		result, err := service.Compress(processed, service.config.Compression.MaxBytes)
		if err != nil {
			return nil, err
		}
		slog.Info("compressed gallery upload",
			"original_size_bytes", result.OriginalSize,
			"compressed_size_bytes", len(result.Data),
			"quality", result.Quality)
		processed, format = result.Data, commands.FormatJPEG
	}

	image, err := service.gallery.Add(ctx, &database.GalleryImage{
		Name: cleanImageName(name, format),
		Data: dataURL(processed, format),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store gallery image: %w", err)
	}
	return image, nil
}

func (service *CoreService) ListGalleryImages(ctx context.Context) ([]*database.GalleryImage, error) {
	images, err := service.gallery.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery images: %w", err)
	}
	return images, nil
}

func (service *CoreService) GetGalleryImage(ctx context.Context, id string) (*database.GalleryImage, error) {
	return service.gallery.Get(ctx, id)
}

func (service *CoreService) DeleteGalleryImage(ctx context.Context, id string) error {
	return service.gallery.Delete(ctx, id)
}

func (service *CoreService) MoveGalleryImage(ctx context.Context, id string, direction string) error {
	dir, err := database.ParseDirection(direction)
	if err != nil {
		return invalidInput(err)
	}
	return service.gallery.Move(ctx, id, dir)
}

func (service *CoreService) ClearGallery(ctx context.Context) error {
	return service.gallery.Clear(ctx)
}

// GalleryThumbnail returns a PNG preview of the stored image
func (service *CoreService) GalleryThumbnail(ctx context.Context, id string) ([]byte, error) {
	image, err := service.gallery.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := decodeDataURL(image.Data)
	if err != nil {
		return nil, fmt.Errorf("gallery image %s has a corrupt payload: %w", id, err)
	}

	result, err := service.runCommands(data, []commandstructure.CommandConfig{{
		Name:   "ThumbnailCommand",
		Params: map[string]any{"width": service.config.Gallery.ThumbnailWidth},
	}})
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func dataURL(data []byte, format string) string {
	return "data:" + commands.MimeType(format) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeDataURL(url string) ([]byte, error) {
	header, payload, ok := strings.Cut(url, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("not a base64 data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}

// cleanImageName strips directories and puts the stored format's extension on the name
func cleanImageName(name, format string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		name = ""
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "image"
	}
	if runes := []rune(base); len(runes) > maxGalleryNameLength {
		base = string(runes[:maxGalleryNameLength])
	}
	return base + "." + commands.Extension(format)
}
