package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jo-hoe/imagecube/internal/backend/database"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20">
<rect x="0" y="0" width="20" height="20" fill="#ff0000"/>
<rect x="20" y="0" width="20" height="20" fill="#0000ff"/>
</svg>`

func createTestImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8((x * 255) / width)
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return encodePNG(img)
}

// createNoiseImage creates a PNG that compresses badly
func createNoiseImage(width, height int) []byte {
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("failed to encode test image: %v", err))
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	return cfg.Width, cfg.Height
}

func newTestGallery(t *testing.T, maxEntries int) (database.GalleryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := database.NewGalleryStore(context.Background(), database.StoreConfig{
		Type:       "redis",
		RedisURL:   "redis://" + mr.Addr(),
		MaxEntries: maxEntries,
	})
	if err != nil {
		t.Fatalf("NewGalleryStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// newTestService builds a service with a miniredis gallery unless deps carries one
func newTestService(t *testing.T, config *ServiceConfig, deps Dependencies) *CoreService {
	t.Helper()
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Gallery == nil {
		deps.Gallery, _ = newTestGallery(t, config.Gallery.MaxEntries)
	}
	service, err := NewCoreServiceWith(config, deps)
	if err != nil {
		t.Fatalf("NewCoreServiceWith error: %v", err)
	}
	return service
}

type fakeChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []providers.ChatRequest
}

func (f *fakeChat) Chat(ctx context.Context, req providers.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeGenerator struct {
	name string
	// fail returns the error for the n-th call (0-based), nil for success
	fail func(n int) error
	// before and after run around the n-th successful call
	before func(n int)
	after  func(n int)

	calls    atomic.Int32
	mu       sync.Mutex
	requests []providers.ImageRequest
}

func (f *fakeGenerator) Name() string {
	return f.name
}

func (f *fakeGenerator) Generate(ctx context.Context, req providers.ImageRequest) ([]providers.GeneratedImage, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.before != nil {
		f.before(n)
	}
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return nil, err
		}
	}
	if f.after != nil {
		defer f.after(n)
	}
	return []providers.GeneratedImage{{URL: fmt.Sprintf("https://img.example/%s/%d.png", f.name, n), Seed: req.Seed}}, nil
}

type fakeRemover struct {
	cutout []byte
	err    error
	calls  int
}

func (f *fakeRemover) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	f.calls++
	return f.cutout, f.err
}
