package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ipaforge/ipaforge/internal/storage"
)

// ThumbHandler serves parked thumbnails. Thumbnails are immutable once
// stored, so responses carry a long cache lifetime.
type ThumbHandler struct {
	logger *slog.Logger
	blobs  storage.BlobStore
}

func NewThumbHandler(log *slog.Logger, blobs storage.BlobStore) *ThumbHandler {
	return &ThumbHandler{
		logger: log.With(slog.String("handler", "thumb")),
		blobs:  blobs,
	}
}

func (h *ThumbHandler) Register(e *echo.Echo) {
	e.GET("/thumb/:name", h.Serve)
}

func (h *ThumbHandler) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	blob, err := h.blobs.Get(ctx, "thumbs/"+c.Param("name"))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "thumbnail not found")
	}
	if err != nil {
		h.logger.Error("thumbnail fetch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "storage unavailable")
	}
	defer blob.Body.Close()

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Stream(http.StatusOK, contentType, blob.Body)
}
