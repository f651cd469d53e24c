package backend

import (
	"net/http"

	"github.com/jo-hoe/imagecube/internal/backend/commands"
	"github.com/jo-hoe/imagecube/internal/backend/database"
	"github.com/labstack/echo/v4"
)

func (service *APIService) listGalleryHandler(ctx echo.Context) error {
	const handler = "listGalleryHandler"
	images, err := service.coreService.ListGalleryImages(ctx.Request().Context())
	if err != nil {
		return apiError(handler, err)
	}
	if images == nil {
		images = []*database.GalleryImage{}
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, images)
}

func (service *APIService) addGalleryHandler(ctx echo.Context) error {
	const handler = "addGalleryHandler"
	u, err := service.readUpload(handler, ctx)
	if err != nil {
		return err
	}
	name := ctx.FormValue("name")
	if name == "" {
		name = u.Name
	}

	image, err := service.coreService.AddGalleryImage(ctx.Request().Context(), name, u.Data)
	if err != nil {
		return apiError(handler, err)
	}
	return ctx.JSON(http.StatusCreated, image)
}

func (service *APIService) getGalleryHandler(ctx echo.Context) error {
	const handler = "getGalleryHandler"
	image, err := service.coreService.GetGalleryImage(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return apiError(handler, err)
	}
	return ctx.JSON(http.StatusOK, image)
}

func (service *APIService) galleryThumbnailHandler(ctx echo.Context) error {
	const handler = "galleryThumbnailHandler"
	thumbnail, err := service.coreService.GalleryThumbnail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return apiError(handler, err)
	}
	// ids are never reused
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, commands.MimeType(commands.FormatPNG), thumbnail)
}

func (service *APIService) deleteGalleryHandler(ctx echo.Context) error {
	const handler = "deleteGalleryHandler"
	if err := service.coreService.DeleteGalleryImage(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return apiError(handler, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

type moveRequest struct {
	Direction string `json:"direction" form:"direction" validate:"required"`
}

func (service *APIService) moveGalleryHandler(ctx echo.Context) error {
	const handler = "moveGalleryHandler"
	var req moveRequest
	if err := bindBody(handler, ctx, &req); err != nil {
		return err
	}

	if err := service.coreService.MoveGalleryImage(ctx.Request().Context(), ctx.Param("id"), req.Direction); err != nil {
		return apiError(handler, err)
	}
	return service.listGalleryHandler(ctx)
}

func (service *APIService) clearGalleryHandler(ctx echo.Context) error {
	const handler = "clearGalleryHandler"
	if err := service.coreService.ClearGallery(ctx.Request().Context()); err != nil {
		return apiError(handler, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}
