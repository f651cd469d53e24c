package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/core"
	"github.com/labstack/echo/v4"
)

const mimeNDJSON = "application/x-ndjson"

func (service *APIService) removeBackgroundHandler(ctx echo.Context) error {
	const handler = "removeBackgroundHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}

	out, err := service.coreService.RemoveBackground(ctx.Request().Context(), u.Data, u.Name)
	if err != nil {
		return apiError(handler, err)
	}
	setAttachment(ctx, outputName(u.Name, "cutout", "png"))
	return ctx.Blob(http.StatusOK, commands.MimeType(commands.FormatPNG), out)
}

func (service *APIService) textBehindHandler(ctx echo.Context) error {
	const handler = "textBehindHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}

	req := core.TextBehindRequest{
		Text:  ctx.FormValue("text"),
		Color: ctx.FormValue("color"),
	}
	fontSize, err := formFloat(ctx, "fontSize")
	if err != nil {
		return badRequest(handler, "%v", err)
	}
	req.FontSize = valueOr(fontSize, 0)
	if req.Opacity, err = formFloat(ctx, "opacity"); err != nil {
		return badRequest(handler, "%v", err)
	}
	if req.X, err = formFloat(ctx, "x"); err != nil {
		return badRequest(handler, "%v", err)
	}
	if req.Y, err = formFloat(ctx, "y"); err != nil {
		return badRequest(handler, "%v", err)
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	out, err := service.coreService.TextBehindSubject(ctx.Request().Context(), u.Data, u.Name, req)
	if err != nil {
		return apiError(handler, err)
	}
	setAttachment(ctx, outputName(u.Name, "text-behind", "png"))
	return ctx.Blob(http.StatusOK, commands.MimeType(commands.FormatPNG), out)
}

func (service *APIService) generateImageHandler(ctx echo.Context) error {
	const handler = "generateImageHandler"
	var req core.ImageGenerationRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	result, err := service.coreService.GenerateImage(ctx.Request().Context(), req)
	if err != nil {
		return apiError(handler, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

func (service *APIService) generateLogoHandler(ctx echo.Context) error {
	const handler = "generateLogoHandler"
	var req core.LogoRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	result, err := service.coreService.GenerateLogo(ctx.Request().Context(), req)
	if err != nil {
		return apiError(handler, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// streamLogoHandler writes one JSON object per line and flushes after each
func (service *APIService) streamLogoHandler(ctx echo.Context) error {
	const handler = "streamLogoHandler"
	var req core.LogoRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	res := ctx.Response()
	encoder := json.NewEncoder(res)
	started := false
	err := service.coreService.StreamLogo(ctx.Request().Context(), req, func(chunk core.LogoChunk) error {
		if !started {
			res.Header().Set(echo.HeaderContentType, mimeNDJSON)
			setNoCache(ctx)
			res.WriteHeader(http.StatusOK)
			started = true
		}
		if err := encoder.Encode(chunk); err != nil {
			return err
		}
		res.Flush()
		return nil
	})
	if err == nil {
		return nil
	}
	if !started {
		return apiError(handler, err)
	}

	// headers are gone, report the failure in-band
	if errors.Is(err, ctx.Request().Context().Err()) {
		slog.Info(handler+": client went away", "error", err)
		return nil
	}
	slog.Error(handler+": stream aborted", "error", err)
	if encodeErr := encoder.Encode(core.LogoChunk{Type: core.ChunkError, Index: -1, Error: err.Error()}); encodeErr == nil {
		res.Flush()
	}
	return nil
}

func (service *APIService) svgLogoHandler(ctx echo.Context) error {
	const handler = "svgLogoHandler"
	var req core.LogoBrief
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	svg, err := service.coreService.GenerateSvgLogo(ctx.Request().Context(), req)
	if err != nil {
		return apiError(handler, err)
	}
	setAttachment(ctx, "logo.svg")
	return ctx.Blob(http.StatusOK, commands.MimeType(commands.FormatSVG), svg)
}
