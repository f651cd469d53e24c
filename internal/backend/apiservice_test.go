package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/database"
	"github.com/jo-hoe/imagecube/internal/backend/document"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
	"github.com/jo-hoe/imagecube/internal/common"
	"github.com/jo-hoe/imagecube/internal/core"
	"github.com/labstack/echo/v4"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20">
<rect x="0" y="0" width="20" height="20" fill="#ff0000"/>
<rect x="20" y="0" width="20" height="20" fill="#0000ff"/>
</svg>`

func createTestImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("failed to encode test image: %v", err))
	}
	return buf.Bytes()
}

// oversizedPNG is a tiny PNG whose header claims width x height
func oversizedPNG(width, height uint32) []byte {
	data := createTestImage(2, 2)
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

type stubChat struct {
	reply string
	err   error
}

func (s *stubChat) Chat(ctx context.Context, req providers.ChatRequest) (string, error) {
	return s.reply, s.err
}

type stubGenerator struct{}

func (s *stubGenerator) Name() string { return core.ImageProviderSiliconFlow }

func (s *stubGenerator) Generate(ctx context.Context, req providers.ImageRequest) ([]providers.GeneratedImage, error) {
	return []providers.GeneratedImage{{URL: "https://img.example/logo.png"}}, nil
}

type stubRemover struct {
	cutout []byte
	err    error
}

func (s *stubRemover) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	return s.cutout, s.err
}

func newTestServer(t *testing.T, deps core.Dependencies) *echo.Echo {
	t.Helper()
	mr := miniredis.RunT(t)
	config := core.DefaultConfig()
	gallery, err := database.NewGalleryStore(context.Background(), database.StoreConfig{Type: "redis", RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewGalleryStore error: %v", err)
	}
	t.Cleanup(func() { _ = gallery.Close() })
	deps.Gallery = gallery

	coreService, err := core.NewCoreServiceWith(config, deps)
	if err != nil {
		t.Fatalf("NewCoreServiceWith error: %v", err)
	}

	e := echo.New()
	e.Validator = common.NewGenericEchoValidator()
	e.HTTPErrorHandler = ErrorHandler
	NewAPIService(config, coreService).SetRoutes(e)
	return e
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("multipart close error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int) string {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON error body, got %q", rec.Body.String())
	}
	if body["error"] == "" {
		t.Fatalf("Expected non-empty error message, got %v", body)
	}
	return body["error"]
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode response image: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})
	expectError(t, serve(e, httptest.NewRequest(http.MethodGet, "/api/nothing", nil)), http.StatusNotFound)
}

func TestCropHandler(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	req := multipartRequest(t, "/api/tools/crop",
		map[string]string{"x": "5", "y": "5", "width": "30", "height": "20", "angle": "90"},
		formFile{uploadField, "photo.png", createTestImage(60, 40)})
	rec := serve(e, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "photo.png") {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	w, h := decodeSize(t, rec.Body.Bytes())
	if w != 20 || h != 30 {
		t.Errorf("Expected 20x30 after crop and rotation, got %dx%d", w, h)
	}
}

func TestCropHandler_BadRequests(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})
	img := createTestImage(20, 20)

	tests := []struct {
		name   string
		fields map[string]string
		files  []formFile
	}{
		{"missing file", map[string]string{"width": "10", "height": "10"}, nil},
		{"missing width", map[string]string{"height": "10"}, []formFile{{uploadField, "a.png", img}}},
		{"non numeric", map[string]string{"width": "ten", "height": "10"}, []formFile{{uploadField, "a.png", img}}},
		{"bad flip", map[string]string{"width": "10", "height": "10", "flip": "diagonal"}, []formFile{{uploadField, "a.png", img}}},
		{"not an image", map[string]string{"width": "10", "height": "10"}, []formFile{{uploadField, "a.png", []byte("hello")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, multipartRequest(t, "/api/tools/crop", tt.fields, tt.files...))
			expectError(t, rec, http.StatusBadRequest)
		})
	}
}

func TestResizeHandler(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	rec := serve(e, multipartRequest(t, "/api/tools/resize",
		map[string]string{"width": "30", "format": "jpeg"},
		formFile{uploadField, "wide.png", createTestImage(60, 40)}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}
	w, h := decodeSize(t, rec.Body.Bytes())
	if w != 30 || h != 20 {
		t.Errorf("Expected 30x20, got %dx%d", w, h)
	}

	rec = serve(e, multipartRequest(t, "/api/tools/resize",
		map[string]string{"width": "30", "keepAspect": "maybe"},
		formFile{uploadField, "wide.png", createTestImage(60, 40)}))
	expectError(t, rec, http.StatusBadRequest)
}

func TestCompressHandler(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})
	input := createTestImage(200, 200)

	rec := serve(e, multipartRequest(t, "/api/tools/compress",
		map[string]string{"maxBytes": "20000"},
		formFile{uploadField, "big.png", input}))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Original-Size"); got != fmt.Sprint(len(input)) {
		t.Errorf("Expected X-Original-Size %d, got %s", len(input), got)
	}
	if got := rec.Header().Get("X-Compressed-Size"); got != fmt.Sprint(rec.Body.Len()) {
		t.Errorf("Expected X-Compressed-Size %d, got %s", rec.Body.Len(), got)
	}
	if rec.Header().Get("X-Quality") == "" {
		t.Error("Expected X-Quality header")
	}
	if rec.Body.Len() > 20000 {
		t.Errorf("Expected at most 20000 bytes, got %d", rec.Body.Len())
	}
}

func TestCompressHandler_Errors(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	rec := serve(e, multipartRequest(t, "/api/tools/compress",
		map[string]string{"maxBytes": "100"},
		formFile{uploadField, "big.png", createTestImage(200, 200)}))
	expectError(t, rec, http.StatusUnprocessableEntity)

	rec = serve(e, multipartRequest(t, "/api/tools/compress",
		map[string]string{"maxBytes": "-5"},
		formFile{uploadField, "big.png", createTestImage(20, 20)}))
	expectError(t, rec, http.StatusBadRequest)
}

func TestConvertHandler(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	rec := serve(e, multipartRequest(t, "/api/tools/convert",
		map[string]string{"targetType": "jpg", "quality": "70"},
		formFile{uploadField, "a.png", createTestImage(20, 20)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "a.jpg") {
		t.Errorf("Expected converted file name, got %q", cd)
	}

	rec = serve(e, multipartRequest(t, "/api/tools/convert",
		map[string]string{"targetType": "webp"},
		formFile{uploadField, "a.png", createTestImage(20, 20)}))
	expectError(t, rec, http.StatusBadRequest)
}

func TestPDFHandler(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	rec := serve(e, multipartRequest(t, "/api/tools/pdf", nil,
		formFile{multiUploadField, "1.png", createTestImage(30, 20)},
		formFile{multiUploadField, "2.png", createTestImage(20, 30)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("Expected a PDF document")
	}

	expectError(t, serve(e, multipartRequest(t, "/api/tools/pdf", nil)), http.StatusBadRequest)
}

func TestSvgHandlers(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	rec := serve(e, multipartRequest(t, "/api/svg/render",
		map[string]string{"width": "80", "background": "#ffffff"},
		formFile{uploadField, "logo.svg", []byte(testSVG)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("render: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if w, h := decodeSize(t, rec.Body.Bytes()); w != 80 || h != 40 {
		t.Errorf("render: expected 80x40, got %dx%d", w, h)
	}

	body, _ := json.Marshal(map[string]any{"svg": testSVG, "colors": map[string]string{"#f00": "#00ff00"}})
	rec = serve(e, jsonRequest(http.MethodPost, "/api/svg/recolor", string(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("recolor: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "#00ff00") || rec.Header().Get(echo.HeaderContentType) != "image/svg+xml" {
		t.Errorf("recolor: unexpected response %s", rec.Body.String())
	}

	body, _ = json.Marshal(map[string]any{"svg": testSVG, "colors": map[string]string{"red": "blue"}})
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/svg/recolor", string(body))), http.StatusBadRequest)
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/svg/recolor", `{"svg": ""}`)), http.StatusBadRequest)

	body, _ = json.Marshal(map[string]string{"svg": testSVG})
	rec = serve(e, jsonRequest(http.MethodPost, "/api/svg/colors", string(body)))
	var colors map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &colors); err != nil || len(colors["colors"]) != 2 {
		t.Errorf("colors: unexpected response %s", rec.Body.String())
	}

	rec = serve(e, multipartRequest(t, "/api/svg/ppt", nil,
		formFile{multiUploadField, "a.svg", []byte(testSVG)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("ppt: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != document.PPTXMimeType {
		t.Errorf("ppt: expected %s, got %s", document.PPTXMimeType, ct)
	}
}

func TestRemoveBackgroundHandler(t *testing.T) {
	cutout := createTestImage(10, 10)

	e := newTestServer(t, core.Dependencies{BackgroundRemover: &stubRemover{cutout: cutout}})
	rec := serve(e, multipartRequest(t, "/api/ai/remove-bg", nil, formFile{uploadField, "cat.jpg", createTestImage(10, 10)}))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), cutout) {
		t.Error("Expected the cutout as response body")
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "cat.png") {
		t.Errorf("Expected png file name, got %q", cd)
	}

	tests := []struct {
		name   string
		deps   core.Dependencies
		status int
	}{
		{"no api key", core.Dependencies{}, http.StatusServiceUnavailable},
		{"upstream failure", core.Dependencies{BackgroundRemover: &stubRemover{err: &providers.UpstreamError{Provider: "remove.bg", StatusCode: 402, Message: "Insufficient credits"}}}, http.StatusBadGateway},
		{"unexpected failure", core.Dependencies{BackgroundRemover: &stubRemover{err: errors.New("disk full")}}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(t, tt.deps)
			rec := serve(e, multipartRequest(t, "/api/ai/remove-bg", nil, formFile{uploadField, "cat.png", createTestImage(10, 10)}))
			message := expectError(t, rec, tt.status)
			if tt.status == http.StatusInternalServerError && strings.Contains(message, "disk full") {
				t.Errorf("Internal errors must not leak details, got %q", message)
			}
		})
	}
}

func generationDeps(chat core.ChatClient) core.Dependencies {
	return core.Dependencies{
		Chat:            chat,
		ImageGenerators: map[string]providers.ImageGenerator{core.ImageProviderSiliconFlow: &stubGenerator{}},
	}
}

func TestGenerateImageHandler(t *testing.T) {
	e := newTestServer(t, generationDeps(nil))

	rec := serve(e, jsonRequest(http.MethodPost, "/api/ai/image", `{"prompt":"a red fox","count":2}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result core.ImageGenerationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if len(result.Images) != 2 || result.Provider != core.ImageProviderSiliconFlow {
		t.Errorf("Unexpected result %+v", result)
	}

	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/image", `{"count":1}`)), http.StatusBadRequest)
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/image", `{"prompt":"x","count":9}`)), http.StatusBadRequest)
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/image", `{"prompt":`)), http.StatusBadRequest)
}

func TestGenerateLogoHandler(t *testing.T) {
	e := newTestServer(t, generationDeps(&stubChat{reply: "a fox logo"}))

	rec := serve(e, jsonRequest(http.MethodPost, "/api/ai/logo", `{"brandName":"FoxCloud","colors":["orange"]}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result core.ImageGenerationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if result.Prompt != "a fox logo" || len(result.Images) != 1 {
		t.Errorf("Unexpected result %+v", result)
	}

	message := expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/logo", `{"description":"no name"}`)), http.StatusBadRequest)
	if !strings.Contains(message, "BrandName") {
		t.Errorf("Expected validation message to name the field, got %q", message)
	}
}

func TestStreamLogoHandler(t *testing.T) {
	e := newTestServer(t, generationDeps(nil))

	rec := serve(e, jsonRequest(http.MethodPost, "/api/ai/logo/stream", `{"brandName":"Acme","count":3}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != mimeNDJSON {
		t.Errorf("Expected %s, got %s", mimeNDJSON, ct)
	}
	if !rec.Flushed {
		t.Error("Expected the response to be flushed")
	}

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var chunk core.LogoChunk
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", scanner.Text(), err)
		}
		types = append(types, chunk.Type)
	}
	want := []string{core.ChunkPrompt, core.ChunkImage, core.ChunkImage, core.ChunkImage, core.ChunkDone}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("Expected chunk types %v, got %v", want, types)
	}

	// failures before the first chunk keep the normal error response
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/logo/stream", `{"brandName":"Acme","count":10}`)), http.StatusBadRequest)
}

func TestSvgLogoHandler(t *testing.T) {
	e := newTestServer(t, generationDeps(&stubChat{reply: `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 4 4"><rect width="4" height="4"/></svg>`}))

	rec := serve(e, jsonRequest(http.MethodPost, "/api/ai/logo/svg", `{"brandName":"Box"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != commands.MimeType(commands.FormatSVG) {
		t.Errorf("Expected svg content type, got %s", ct)
	}

	e = newTestServer(t, generationDeps(&stubChat{reply: "no drawing today"}))
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/ai/logo/svg", `{"brandName":"Box"}`)), http.StatusBadGateway)
}

func TestGalleryHandlers(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})

	var ids []string
	for _, name := range []string{"first.png", "second.png"} {
		rec := serve(e, multipartRequest(t, "/api/gallery", nil, formFile{uploadField, name, createTestImage(40, 20)}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("add: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var img database.GalleryImage
		if err := json.Unmarshal(rec.Body.Bytes(), &img); err != nil {
			t.Fatalf("add: unmarshal error: %v", err)
		}
		ids = append(ids, img.ID)
	}

	list := func() []database.GalleryImage {
		t.Helper()
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/gallery", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("list: expected 200, got %d", rec.Code)
		}
		var images []database.GalleryImage
		if err := json.Unmarshal(rec.Body.Bytes(), &images); err != nil {
			t.Fatalf("list: unmarshal error: %v", err)
		}
		return images
	}

	images := list()
	if len(images) != 2 || images[0].ID != ids[1] {
		t.Fatalf("Expected newest first, got %+v", images)
	}
	if !strings.HasPrefix(images[0].Data, "data:image/png;base64,") || images[0].UploadTime.IsZero() {
		t.Errorf("Unexpected gallery entry %+v", images[0])
	}

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/gallery/"+ids[0], nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", rec.Code)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/gallery/"+ids[0]+"/thumbnail", nil))
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Errorf("thumbnail: expected png, got %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}

	rec = serve(e, jsonRequest(http.MethodPost, "/api/gallery/"+ids[0]+"/move", `{"direction":"up"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("move: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if images = list(); images[0].ID != ids[0] {
		t.Errorf("move: expected %s on top, got %s", ids[0], images[0].ID)
	}
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/gallery/"+ids[0]+"/move", `{"direction":"left"}`)), http.StatusBadRequest)
	expectError(t, serve(e, jsonRequest(http.MethodPost, "/api/gallery/"+ids[0]+"/move", `{}`)), http.StatusBadRequest)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/api/gallery/"+ids[0], nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	expectError(t, serve(e, httptest.NewRequest(http.MethodDelete, "/api/gallery/"+ids[0], nil)), http.StatusNotFound)
	expectError(t, serve(e, httptest.NewRequest(http.MethodGet, "/api/gallery/"+ids[0], nil)), http.StatusNotFound)

	rec = serve(e, httptest.NewRequest(http.MethodDelete, "/api/gallery", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear: expected 204, got %d", rec.Code)
	}
	if images = list(); len(images) != 0 {
		t.Errorf("Expected empty gallery after clear, got %d", len(images))
	}
}

func TestToolHandlers_RejectOversizedImages(t *testing.T) {
	e := newTestServer(t, core.Dependencies{})
	bomb := oversizedPNG(60000, 60000)

	tests := []struct {
		name   string
		path   string
		fields map[string]string
	}{
		{"resize", "/api/tools/resize", map[string]string{"width": "10"}},
		{"crop", "/api/tools/crop", map[string]string{"width": "10", "height": "10"}},
		{"compress", "/api/tools/compress", nil},
		{"convert", "/api/tools/convert", map[string]string{"targetType": "jpeg"}},
		{"gallery", "/api/gallery", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, multipartRequest(t, tt.path, tt.fields, formFile{uploadField, "bomb.png", bomb}))
			expectError(t, rec, http.StatusRequestEntityTooLarge)
		})
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", fmt.Errorf("wrap: %w", core.ErrInvalidInput), http.StatusBadRequest},
		{"unsupported format", core.ErrUnsupportedFormat, http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: abc", core.ErrNotFound), http.StatusNotFound},
		{"budget", commands.ErrBudgetUnreachable, http.StatusUnprocessableEntity},
		{"too many pixels", fmt.Errorf("%w: %w", core.ErrInvalidInput, commands.ErrImageTooLarge), http.StatusRequestEntityTooLarge},
		{"missing key", providers.ErrAPIKeyMissing, http.StatusServiceUnavailable},
		{"upstream", fmt.Errorf("call: %w", &providers.UpstreamError{Provider: "zhipu", StatusCode: 500}), http.StatusBadGateway},
		{"upstream transport", fmt.Errorf("generate: %w", &providers.UpstreamError{Provider: "siliconflow", Message: "timeout", Err: context.DeadlineExceeded}), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var httpErr *echo.HTTPError
			if !errors.As(apiError("test", tt.err), &httpErr) || httpErr.Code != tt.status {
				t.Errorf("apiError(%v) = %v, want status %d", tt.err, httpErr, tt.status)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		original, fallback, ext, want string
	}{
		{"photo.png", "x", "jpg", "photo.jpg"},
		{"dir/sub/photo.tar.gz", "x", "png", "photo.tar.png"},
		{`C:\pics\cat.bmp`, "x", "png", "cat.png"},
		{"", "cropped", "png", "cropped.png"},
	}
	for _, tt := range tests {
		if got := outputName(tt.original, tt.fallback, tt.ext); got != tt.want {
			t.Errorf("outputName(%q) = %q, want %q", tt.original, got, tt.want)
		}
	}
}
