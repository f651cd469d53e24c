package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode error: %v", err)
	}
	path := filepath.Join(dir, "input.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	outputPath = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("imagetool %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCropCommandWritesOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 40, 30)
	target := filepath.Join(dir, "out.png")

	execute(t, "crop", input, "--width", "10", "--height", "5", "-o", target)

	f, err := os.Open(target)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a png: %v", err)
	}
	if cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("Expected 10x5, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPdfCommandDerivesName(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 20, 20)

	execute(t, "pdf", input, input)

	data, err := os.ReadFile(filepath.Join(dir, "input-images.pdf"))
	if err != nil {
		t.Fatalf("expected derived pdf output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("Expected a PDF document")
	}
}
