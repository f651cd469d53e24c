package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultGalleryKey = "images"
	DefaultMaxEntries = 100
)

var ErrNotFound = errors.New("gallery image not found")

// Direction for GalleryStore.Move
type Direction string

const (
	MoveUp   Direction = "up"
	MoveDown Direction = "down"
)

// ParseDirection accepts "up" or "down" (case-insensitive)
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case MoveUp, MoveDown:
		return d, nil
	default:
		return "", fmt.Errorf("invalid direction %q (must be 'up' or 'down')", s)
	}
}

// GalleryStore keeps a bounded, newest-first list of gallery images
type GalleryStore interface {
	// Add stores the image at the head of the list, assigning ID and
	// UploadTime when empty, and drops entries beyond the cap.
	Add(ctx context.Context, image *GalleryImage) (*GalleryImage, error)
	List(ctx context.Context) ([]*GalleryImage, error)
	Get(ctx context.Context, id string) (*GalleryImage, error)
	Delete(ctx context.Context, id string) error
	// Move swaps the image with its neighbour; at either end it is a no-op.
	Move(ctx context.Context, id string, direction Direction) error
	Clear(ctx context.Context) error
	Close() error
}

// StoreConfig selects and configures a GalleryStore backend
type StoreConfig struct {
	Type       string // redis | sqlite
	RedisURL   string
	SQLitePath string
	Key        string
	MaxEntries int
}

// generateID returns a random version 4 UUID
func generateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}
