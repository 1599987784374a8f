// Package telegram wraps the Bot API operations the bot consumes: messaging,
// file metadata, membership checks, and document delivery in both its JSON
// reference form and its streaming multipart form.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ipaforge/ipaforge/internal/ids"
)

// ChatUploadDocument is the chat action shown while a document upload is in
// flight.
const ChatUploadDocument = "upload_document"

type Client struct {
	logger *slog.Logger
	bot    *tgbotapi.BotAPI
	http   *http.Client
	ids    ids.Generator
	token  string

	// Format strings taking (token, method) and (token, file path). They
	// default to the public Bot API and are overridden in tests.
	apiEndpoint  string
	fileEndpoint string
}

// NewClient creates a Client for the given bot token. It performs a getMe
// round trip, so it fails fast on a bad token.
func NewClient(log *slog.Logger, token string, gen ids.Generator) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Client{
		logger:       log.With(slog.String("adapter", "telegram")),
		bot:          bot,
		http:         &http.Client{Timeout: 10 * time.Minute},
		ids:          gen,
		token:        token,
		apiEndpoint:  tgbotapi.APIEndpoint,
		fileEndpoint: tgbotapi.FileEndpoint,
	}, nil
}

// SendMessage sends a plain text message and returns the message id so the
// caller can edit it later.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessageText replaces the text of a previously sent message. Telegram's
// "message is not modified" rejection is treated as success.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := c.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil && isMessageNotModified(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// SendChatAction shows a transient status such as "sending a file..." in the
// chat. Failures are returned but callers generally ignore them.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, action))
	return err
}

// GetFile resolves a file id to its server-side path, usable with FileStream.
func (c *Client) GetFile(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	return file.FilePath, nil
}

// IsChannelMember reports whether the user belongs to the gating channel.
// Creator and administrator count as members.
func (c *Client) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: "@" + channel,
			UserID:             userID,
		},
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	}
	return false, nil
}

// SendDocumentByFileID forwards an already-uploaded document by its opaque
// handle. The platform does not rename or re-thumbnail on this path; the
// thumbnail id is passed along best-effort.
func (c *Client) SendDocumentByFileID(ctx context.Context, chatID int64, fileID, caption, thumbFileID string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	doc.Caption = caption
	if thumbFileID != "" {
		doc.Thumb = tgbotapi.FileID(thumbFileID)
	}
	if _, err := c.bot.Send(doc); err != nil {
		return fmt.Errorf("send document by file id: %w", err)
	}
	return nil
}

func isMessageNotModified(err error) bool {
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 400 && strings.Contains(apiErr.Message, "message is not modified")
	}
	return false
}

var filenameSanitizer = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// SanitizeFilename strips characters that are unsafe in a filename or a
// Content-Disposition header, keeping letters in any script.
func SanitizeFilename(name string) string {
	clean := filenameSanitizer.ReplaceAllString(name, "_")
	if clean == "" || clean == "_" {
		return "app.ipa"
	}
	return clean
}
