package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ipaforge/ipaforge/internal/multipart"
)

// UploadRequest describes a streaming sendDocument call. Document is
// required; Thumbnail is optional and attached as the file's icon.
type UploadRequest struct {
	ChatID    int64
	Caption   string
	Filename  string
	Document  io.Reader
	Thumbnail io.Reader
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// UploadDocument re-uploads a document under a new name, streaming the body
// straight from the source readers. Part order is fixed: chat_id, caption,
// document, thumbnail; each binary part is fully emitted before the next
// begins. The sources are consumed (and closed, when closable) exactly once,
// so a retry needs freshly opened streams.
func (c *Client) UploadDocument(ctx context.Context, req UploadRequest) error {
	if req.Document == nil {
		return fmt.Errorf("document stream is required")
	}

	parts := []multipart.Part{
		multipart.Field("chat_id", strconv.FormatInt(req.ChatID, 10)),
	}
	if req.Caption != "" {
		parts = append(parts, multipart.Field("caption", req.Caption))
	}
	parts = append(parts, multipart.Stream(
		"document",
		SanitizeFilename(req.Filename),
		"application/octet-stream",
		req.Document,
	))
	if req.Thumbnail != nil {
		parts = append(parts, multipart.Stream("thumbnail", "thumb.jpg", "image/jpeg", req.Thumbnail))
	}

	enc, err := multipart.NewEncoder("IPAForgeBoundary"+c.ids.Hex(), parts...)
	if err != nil {
		return err
	}

	url := fmt.Sprintf(c.apiEndpoint, c.token, "sendDocument")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, enc.Reader())
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", enc.ContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode send response: %w", err)
	}
	if !decoded.OK {
		c.logger.Warn("document upload rejected",
			slog.Int("error_code", decoded.ErrorCode),
			slog.String("description", decoded.Description),
		)
		return fmt.Errorf("send document failed: %s", decoded.Description)
	}
	return nil
}
