package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ipaforge/ipaforge/internal/session"
	"github.com/ipaforge/ipaforge/internal/storage"
	"github.com/ipaforge/ipaforge/internal/telegram"
)

// Streamer fetches a Telegram file by its resolved path.
type Streamer interface {
	FileStream(ctx context.Context, filePath string) (io.ReadCloser, int64, error)
}

// DownloadHandler serves direct downloads for minted tokens. Tokens resolve
// to either a parked blob or a Telegram file path; the token itself is not
// consumed, it simply expires.
type DownloadHandler struct {
	logger   *slog.Logger
	sessions session.Store
	blobs    storage.BlobStore
	tg       Streamer
}

func NewDownloadHandler(log *slog.Logger, sessions session.Store, blobs storage.BlobStore, tg Streamer) *DownloadHandler {
	return &DownloadHandler{
		logger:   log.With(slog.String("handler", "download")),
		sessions: sessions,
		blobs:    blobs,
		tg:       tg,
	}
}

func (h *DownloadHandler) Register(e *echo.Echo) {
	e.GET("/d/:token", h.Serve)
}

func (h *DownloadHandler) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	payload, err := h.sessions.GetToken(ctx, c.Param("token"))
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown or expired link")
	}
	if err != nil {
		h.logger.Error("token lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	disposition := fmt.Sprintf("attachment; filename=%q", telegram.SanitizeFilename(payload.Filename))

	if payload.StorageKey != "" {
		blob, err := h.blobs.Get(ctx, payload.StorageKey)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return echo.NewHTTPError(http.StatusGone, "file no longer available")
		}
		if err != nil {
			h.logger.Error("blob fetch failed", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadGateway, "storage unavailable")
		}
		defer blob.Body.Close()
		c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
		return c.Stream(http.StatusOK, "application/octet-stream", blob.Body)
	}

	body, _, err := h.tg.FileStream(ctx, payload.PackagePath)
	if err != nil {
		h.logger.Warn("source fetch failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "source unavailable")
	}
	defer body.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, disposition)
	return c.Stream(http.StatusOK, "application/octet-stream", body)
}
