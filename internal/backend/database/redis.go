package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGalleryStore keeps the gallery as JSON elements of one Redis list,
// newest at index 0.
type RedisGalleryStore struct {
	client     *redis.Client
	key        string
	maxEntries int
}

func NewRedisGalleryStore(ctx context.Context, redisURL, key string, maxEntries int) (GalleryStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisGalleryStore(client, key, maxEntries), nil
}

func newRedisGalleryStore(client *redis.Client, key string, maxEntries int) *RedisGalleryStore {
	return &RedisGalleryStore{client: client, key: key, maxEntries: maxEntries}
}

func (s *RedisGalleryStore) Add(ctx context.Context, image *GalleryImage) (*GalleryImage, error) {
	stored := *image
	if stored.ID == "" {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		stored.ID = id
	}
	if stored.UploadTime.IsZero() {
		stored.UploadTime = time.Now().UTC()
	}

	encoded, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gallery image: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, encoded)
		pipe.LTrim(ctx, s.key, 0, int64(s.maxEntries-1))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add gallery image: %w", err)
	}
	return &stored, nil
}

// redisEntry is one list element with its position in the list
type redisEntry struct {
	index int64
	raw   string
	image *GalleryImage
}

// entries returns the decodable list elements in list order.
// Elements that do not decode are skipped but keep their positions.
func (s *RedisGalleryStore) entries(ctx context.Context) ([]redisEntry, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}

	entries := make([]redisEntry, 0, len(values))
	for i, v := range values {
		var img GalleryImage
		if err := json.Unmarshal([]byte(v), &img); err != nil {
			slog.Warn("skipping undecodable gallery entry", "key", s.key, "index", i, "error", err)
			continue
		}
		entries = append(entries, redisEntry{index: int64(i), raw: v, image: &img})
	}
	return entries, nil
}

func (s *RedisGalleryStore) find(ctx context.Context, id string) ([]redisEntry, int, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, -1, err
	}
	for i, e := range entries {
		if e.image.ID == id {
			return entries, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *RedisGalleryStore) List(ctx context.Context) ([]*GalleryImage, error) {
	entries, err := s.entries(ctx)
	if err != nil {
		return nil, err
	}
	images := make([]*GalleryImage, len(entries))
	for i, e := range entries {
		images[i] = e.image
	}
	return images, nil
}

func (s *RedisGalleryStore) Get(ctx context.Context, id string) (*GalleryImage, error) {
	entries, idx, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return entries[idx].image, nil
}

func (s *RedisGalleryStore) Delete(ctx context.Context, id string) error {
	entries, idx, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.client.LRem(ctx, s.key, 1, entries[idx].raw).Result()
	if err != nil {
		return fmt.Errorf("failed to delete gallery image %s: %w", id, err)
	}
	if removed == 0 {
		// removed concurrently
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Move swaps the image with its nearest decodable neighbour in place
func (s *RedisGalleryStore) Move(ctx context.Context, id string, direction Direction) error {
	entries, idx, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	target := idx - 1
	if direction == MoveDown {
		target = idx + 1
	}
	if target < 0 || target >= len(entries) {
		return nil
	}
	current, neighbour := entries[idx], entries[target]

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LSet(ctx, s.key, current.index, neighbour.raw)
		pipe.LSet(ctx, s.key, neighbour.index, current.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reorder gallery: %w", err)
	}
	return nil
}

func (s *RedisGalleryStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear gallery: %w", err)
	}
	return nil
}

func (s *RedisGalleryStore) Close() error {
	return s.client.Close()
}
