package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/ipaforge/ipaforge/internal/flow"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Gate decides whether a user may talk to the bot.
type Gate interface {
	Allow(ctx context.Context, userID int64) bool
	Channel() string
}

// Replier sends the remediation message to users the gate turns away.
type Replier interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
}

// Flow consumes reduced chat events.
type Flow interface {
	Handle(ctx context.Context, ev flow.Event) error
}

// WebhookHandler receives Telegram updates. It always acknowledges with 200
// so the platform does not redeliver events whose failure was already
// reported to the user in chat.
type WebhookHandler struct {
	logger  *slog.Logger
	flow    Flow
	gate    Gate
	replier Replier
	secret  string
}

func NewWebhookHandler(log *slog.Logger, machine Flow, gate Gate, replier Replier, secret string) *WebhookHandler {
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "webhook")),
		flow:    machine,
		gate:    gate,
		replier: replier,
		secret:  secret,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Handle)
}

func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.secret != "" && c.Request().Header.Get(secretTokenHeader) != h.secret {
		return echo.NewHTTPError(http.StatusUnauthorized, "bad secret token")
	}

	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		h.logger.Warn("malformed update", slog.Any("error", err))
		return ack(c)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return ack(c)
	}

	ctx := c.Request().Context()
	if !h.gate.Allow(ctx, msg.From.ID) {
		text := "🔒 This bot is for channel members only."
		if ch := h.gate.Channel(); ch != "" {
			text = fmt.Sprintf("🔒 Join @%s to use this bot, then send your file again.", ch)
		}
		if _, err := h.replier.SendMessage(ctx, msg.Chat.ID, text); err != nil {
			h.logger.Warn("remediation reply failed", slog.Any("error", err))
		}
		return ack(c)
	}

	if err := h.flow.Handle(ctx, toEvent(msg)); err != nil {
		h.logger.Error("update handling failed",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.Any("error", err),
		)
	}
	return ack(c)
}

func ack(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func toEvent(msg *tgbotapi.Message) flow.Event {
	ev := flow.Event{
		ChatID: msg.Chat.ID,
		UserID: msg.From.ID,
		Text:   msg.Text,
	}
	if msg.Document != nil {
		ev.Document = &flow.Document{
			FileID:   msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
		}
	}
	for _, p := range msg.Photo {
		ev.Photos = append(ev.Photos, flow.Photo{
			FileID:   p.FileID,
			FileSize: int64(p.FileSize),
			Width:    p.Width,
			Height:   p.Height,
		})
	}
	return ev
}
