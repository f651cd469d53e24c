package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/providers"
	"github.com/jo-hoe/imagecube/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	uploadField      = "file"
	multiUploadField = "files"
	maxUploadFiles   = 50
)

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (service *APIService) SetRoutes(e *echo.Echo) {
	// Health route, excluded from request logging
	e.GET("/health", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "API Service is running")
	})

	tools := e.Group("/api/tools")
	tools.POST("/crop", service.cropHandler)
	tools.POST("/resize", service.resizeHandler)
	tools.POST("/compress", service.compressHandler)
	tools.POST("/convert", service.convertHandler)
	tools.POST("/pdf", service.pdfHandler)

	svg := e.Group("/api/svg")
	svg.POST("/render", service.svgRenderHandler)
	svg.POST("/recolor", service.svgRecolorHandler)
	svg.POST("/colors", service.svgColorsHandler)
	svg.POST("/ppt", service.svgToPPTHandler)

	ai := e.Group("/api/ai")
	ai.POST("/remove-bg", service.removeBackgroundHandler)
	ai.POST("/text-behind", service.textBehindHandler)
	ai.POST("/image", service.generateImageHandler)
	ai.POST("/logo", service.generateLogoHandler)
	ai.POST("/logo/stream", service.streamLogoHandler)
	ai.POST("/logo/svg", service.svgLogoHandler)

	gallery := e.Group("/api/gallery")
	gallery.GET("", service.listGalleryHandler)
	gallery.POST("", service.addGalleryHandler)
	gallery.DELETE("", service.clearGalleryHandler)
	gallery.GET("/:id", service.getGalleryHandler)
	gallery.GET("/:id/thumbnail", service.galleryThumbnailHandler)
	gallery.DELETE("/:id", service.deleteGalleryHandler)
	gallery.POST("/:id/move", service.moveGalleryHandler)
}

// ErrorHandler renders every error as {"error": "..."}
func ErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		message = fmt.Sprint(httpErr.Message)
	}

	if ctx.Request().Method == http.MethodHead {
		err = ctx.NoContent(status)
	} else {
		err = ctx.JSON(status, map[string]string{"error": message})
	}
	if err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

// apiError maps domain errors onto HTTP status codes
func apiError(handler string, err error) error {
	status := http.StatusInternalServerError
	var upstreamErr *providers.UpstreamError
	switch {
	case errors.Is(err, commands.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, commands.ErrBudgetUnreachable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, providers.ErrAPIKeyMissing):
		status = http.StatusServiceUnavailable
	case errors.As(err, &upstreamErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error(handler+": request failed", "status", status, "error", err)
		return echo.NewHTTPError(status, "internal server error")
	}
	slog.Warn(handler+": request rejected", "status", status, "error", err)
	return echo.NewHTTPError(status, err.Error())
}

func badRequest(handler string, format string, args ...any) error {
	message := fmt.Sprintf(format, args...)
	slog.Warn(handler+": bad request", "status", http.StatusBadRequest, "error", message)
	return echo.NewHTTPError(http.StatusBadRequest, message)
}

type upload struct {
	Name string
	Data []byte
}

func readFileHeader(file *multipart.FileHeader) (*upload, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return &upload{Name: file.Filename, Data: data}, nil
}

// readUpload reads the single multipart file of the request
func (service *APIService) readUpload(handler string, ctx echo.Context) (*upload, error) {
	file, err := ctx.FormFile(uploadField)
	if err != nil {
		return nil, badRequest(handler, "missing multipart file field %q", uploadField)
	}
	u, err := readFileHeader(file)
	if err != nil {
		slog.Error(handler+": failed to read upload", "status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}
	if len(u.Data) == 0 {
		return nil, badRequest(handler, "uploaded file %q is empty", u.Name)
	}
	return u, nil
}

// readUploads reads all files of the "files" field in upload order
func (service *APIService) readUploads(handler string, ctx echo.Context) ([]*upload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, badRequest(handler, "expected a multipart form")
	}
	files := form.File[multiUploadField]
	if len(files) == 0 {
		return nil, badRequest(handler, "missing multipart file field %q", multiUploadField)
	}
	if len(files) > maxUploadFiles {
		return nil, badRequest(handler, "at most %d files are allowed, got %d", maxUploadFiles, len(files))
	}

	uploads := make([]*upload, 0, len(files))
	for _, file := range files {
		u, err := readFileHeader(file)
		if err != nil {
			slog.Error(handler+": failed to read upload", "status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
			return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

func uploadData(uploads []*upload) [][]byte {
	data := make([][]byte, len(uploads))
	for i, u := range uploads {
		data[i] = u.Data
	}
	return data
}

// formInt parses an optional integer form value
func formInt(ctx echo.Context, key string) (*int, error) {
	raw := strings.TrimSpace(ctx.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return &v, nil
}

func formFloat(ctx echo.Context, key string) (*float64, error) {
	raw := strings.TrimSpace(ctx.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return &v, nil
}

func formBool(ctx echo.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(ctx.FormValue(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false, got %q", key, raw)
	}
	return &v, nil
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}

// formInts parses several optional integer fields, stopping at the first bad one
func formInts(ctx echo.Context, keys ...string) (map[string]*int, error) {
	values := make(map[string]*int, len(keys))
	for _, key := range keys {
		v, err := formInt(ctx, key)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	return values, nil
}

// outputName swaps the extension of the uploaded file name
func outputName(original, fallback, ext string) string {
	base := strings.TrimSuffix(filepath.Base(strings.ReplaceAll(original, "\\", "/")), filepath.Ext(original))
	if base == "" || base == "." || base == "/" {
		base = fallback
	}
	return base + "." + ext
}

func setAttachment(ctx echo.Context, filename string) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, disposition)
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

// bindBody binds a JSON or form body and validates it
func bindBody(handler string, ctx echo.Context, target any) error {
	if err := ctx.Bind(target); err != nil {
		message := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			message = fmt.Sprint(httpErr.Message)
		}
		return badRequest(handler, "invalid request body: %s", message)
	}
	if err := ctx.Validate(target); err != nil {
		slog.Warn(handler+": validation failed", "status", http.StatusBadRequest, "error", err)
		return err
	}
	return nil
}
