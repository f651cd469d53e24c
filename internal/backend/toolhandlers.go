package backend

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/document"
	"github.com/jo-hoe/imagecube/internal/core"
	"github.com/labstack/echo/v4"
)

func (service *APIService) writeImage(ctx echo.Context, originalName, fallback string, result *core.ImageResult) error {
	setAttachment(ctx, outputName(originalName, fallback, commands.Extension(result.Format)))
	return ctx.Blob(http.StatusOK, result.MimeType(), result.Data)
}

func (service *APIService) cropHandler(ctx echo.Context) error {
	const handler = "cropHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	ints, err := formInts(ctx, "x", "y", "width", "height", "angle")
	if err != nil {
		return badRequest(handler, "%v", err)
	}

	req := core.CropRequest{
		X:      ints["x"],
		Y:      ints["y"],
		Width:  valueOr(ints["width"], 0),
		Height: valueOr(ints["height"], 0),
		Angle:  valueOr(ints["angle"], 0),
		Flip:   strings.ToLower(strings.TrimSpace(ctx.FormValue("flip"))),
		Format: ctx.FormValue("format"),
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	result, err := service.coreService.Crop(u.Data, req)
	if err != nil {
		return apiError(handler, err)
	}
	return service.writeImage(ctx, u.Name, "cropped", result)
}

func (service *APIService) resizeHandler(ctx echo.Context) error {
	const handler = "resizeHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	ints, err := formInts(ctx, "width", "height")
	if err != nil {
		return badRequest(handler, "%v", err)
	}
	keepAspect, err := formBool(ctx, "keepAspect")
	if err != nil {
		return badRequest(handler, "%v", err)
	}

	req := core.ResizeRequest{
		Width:      valueOr(ints["width"], 0),
		Height:     valueOr(ints["height"], 0),
		KeepAspect: keepAspect,
		Filter:     ctx.FormValue("filter"),
		Format:     ctx.FormValue("format"),
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	result, err := service.coreService.Resize(u.Data, req)
	if err != nil {
		return apiError(handler, err)
	}
	return service.writeImage(ctx, u.Name, "resized", result)
}

func (service *APIService) compressHandler(ctx echo.Context) error {
	const handler = "compressHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	maxBytes, err := formInt(ctx, "maxBytes")
	if err != nil {
		return badRequest(handler, "%v", err)
	}
	if maxBytes != nil && *maxBytes <= 0 {
		return badRequest(handler, "maxBytes must be positive, got %d", *maxBytes)
	}

	result, err := service.coreService.Compress(u.Data, valueOr(maxBytes, 0))
	if err != nil {
		return apiError(handler, err)
	}

	header := ctx.Response().Header()
	header.Set("X-Original-Size", strconv.Itoa(result.OriginalSize))
	header.Set("X-Compressed-Size", strconv.Itoa(len(result.Data)))
	header.Set("X-Quality", strconv.Itoa(result.Quality))
	format, err := commands.DetectFormat(result.Data)
	if err != nil {
		format = commands.FormatJPEG
	}
	setAttachment(ctx, outputName(u.Name, "compressed", commands.Extension(format)))
	return ctx.Blob(http.StatusOK, commands.MimeType(format), result.Data)
}

func (service *APIService) convertHandler(ctx echo.Context) error {
	const handler = "convertHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	quality, err := formInt(ctx, "quality")
	if err != nil {
		return badRequest(handler, "%v", err)
	}
	targetType := strings.TrimSpace(ctx.FormValue("targetType"))
	if targetType == "" {
		return badRequest(handler, "targetType is required")
	}

	result, err := service.coreService.Convert(u.Data, targetType, valueOr(quality, 0))
	if err != nil {
		return apiError(handler, err)
	}
	return service.writeImage(ctx, u.Name, "converted", result)
}

func (service *APIService) pdfHandler(ctx echo.Context) error {
	const handler = "pdfHandler"
	uploads, err := service.readUploads(handler, ctx)
	if err != nil {
		return err
	}

	out, err := service.coreService.ImagesToPDF(uploadData(uploads))
	if err != nil {
		return apiError(handler, err)
	}
	setAttachment(ctx, "images.pdf")
	return ctx.Blob(http.StatusOK, "application/pdf", out)
}

func (service *APIService) svgRenderHandler(ctx echo.Context) error {
	const handler = "svgRenderHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	ints, err := formInts(ctx, "width", "height")
	if err != nil {
		return badRequest(handler, "%v", err)
	}

	req := core.SvgRenderRequest{
		Width:      valueOr(ints["width"], 0),
		Height:     valueOr(ints["height"], 0),
		Background: ctx.FormValue("background"),
		Format:     ctx.FormValue("format"),
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	result, err := service.coreService.RenderSVG(u.Data, req)
	if err != nil {
		return apiError(handler, err)
	}
	return service.writeImage(ctx, u.Name, "rendered", result)
}

type svgRecolorRequest struct {
	SVG    string            `json:"svg" validate:"required"`
	Colors map[string]string `json:"colors" validate:"required,min=1"`
	Width  int               `json:"width" validate:"min=0"`
	Height int               `json:"height" validate:"min=0"`
}

func (service *APIService) svgRecolorHandler(ctx echo.Context) error {
	const handler = "svgRecolorHandler"
	var req svgRecolorRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	out, err := service.coreService.RecolorSVG([]byte(req.SVG), req.Colors, req.Width, req.Height)
	if err != nil {
		return apiError(handler, err)
	}
	return ctx.Blob(http.StatusOK, commands.MimeType(commands.FormatSVG), out)
}

type svgColorsRequest struct {
	SVG string `json:"svg" validate:"required"`
}

func (service *APIService) svgColorsHandler(ctx echo.Context) error {
	const handler = "svgColorsHandler"
	var req svgColorsRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}
	colors := core.SVGColors([]byte(req.SVG))
	if colors == nil {
		colors = []string{}
	}
	return ctx.JSON(http.StatusOK, map[string][]string{"colors": colors})
}

func (service *APIService) svgToPPTHandler(ctx echo.Context) error {
	const handler = "svgToPPTHandler"
	uploads, err := service.readUploads(handler, ctx)
	if err != nil {
		return err
	}

	out, err := service.coreService.SvgToPPT(uploadData(uploads))
	if err != nil {
		return apiError(handler, err)
	}
	setAttachment(ctx, "slides.pptx")
	return ctx.Blob(http.StatusOK, document.PPTXMimeType, out)
}
