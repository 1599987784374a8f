// Package dispatch delivers the finished package back to the chat. Small
// packages are re-uploaded as a fresh document stream, which is the only way
// to apply the new filename and icon. Packages above the upload ceiling are
// forwarded by file reference, which keeps Telegram's original name.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ipaforge/ipaforge/internal/storage"
	"github.com/ipaforge/ipaforge/internal/telegram"
)

// Mode describes how the package reached the chat.
type Mode int

const (
	// ModeStreamed means the package was re-uploaded with the requested
	// name, and the icon when one survived.
	ModeStreamed Mode = iota
	// ModeForwarded means the package was sent by file reference and kept
	// its original filename.
	ModeForwarded
	// ModeLinkOnly means delivery inside Telegram failed and the user got
	// a download link instead.
	ModeLinkOnly
)

// Request carries everything collected during the conversation.
type Request struct {
	ChatID   int64
	Filename string
	Caption  string

	PackageFileID string
	PackagePath   string
	PackageSize   int64
	StorageKey    string

	IconFileID string
	IconPath   string
	ThumbKey   string

	DownloadURL string
}

// Outcome reports what was actually delivered.
type Outcome struct {
	Mode        Mode
	IconApplied bool
}

// Telegram is the slice of the bot client the dispatcher needs.
type Telegram interface {
	FileStream(ctx context.Context, filePath string) (io.ReadCloser, int64, error)
	UploadDocument(ctx context.Context, req telegram.UploadRequest) error
	SendDocumentByFileID(ctx context.Context, chatID int64, fileID, caption, thumbFileID string) error
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
}

type Dispatcher struct {
	logger *slog.Logger
	tg     Telegram
	blobs  storage.BlobStore
	limit  int64
}

// New builds a dispatcher. limit is the re-upload ceiling in bytes,
// inclusive: a package of exactly limit bytes still streams.
func New(log *slog.Logger, tg Telegram, blobs storage.BlobStore, limit int64) *Dispatcher {
	return &Dispatcher{
		logger: log.With(slog.String("service", "dispatch")),
		tg:     tg,
		blobs:  blobs,
		limit:  limit,
	}
}

// Send delivers the package. Streams are opened fresh for every attempt; a
// partially consumed remote stream cannot be rewound.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Outcome, error) {
	if d.canStream(req) {
		return d.sendStreamed(ctx, req)
	}
	return d.sendByReference(ctx, req)
}

// canStream requires a known size within the ceiling and a fetchable source.
// Unknown or zero size is treated as oversized.
func (d *Dispatcher) canStream(req Request) bool {
	if req.PackageSize <= 0 || req.PackageSize > d.limit {
		return false
	}
	return req.PackagePath != "" || req.StorageKey != ""
}

func (d *Dispatcher) sendStreamed(ctx context.Context, req Request) (Outcome, error) {
	err := d.attemptUpload(ctx, req, true)
	if err == nil {
		return Outcome{Mode: ModeStreamed, IconApplied: d.hasIcon(req)}, nil
	}
	if d.hasIcon(req) {
		d.logger.Warn("upload with icon failed, retrying without",
			slog.Int64("chat_id", req.ChatID),
			slog.String("error", err.Error()),
		)
		if err = d.attemptUpload(ctx, req, false); err == nil {
			return Outcome{Mode: ModeStreamed}, nil
		}
	}
	d.logger.Error("streamed upload failed",
		slog.Int64("chat_id", req.ChatID),
		slog.String("error", err.Error()),
	)
	return d.sendByReference(ctx, req)
}

func (d *Dispatcher) attemptUpload(ctx context.Context, req Request, withIcon bool) error {
	pkg, err := d.openPackage(ctx, req)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer pkg.Close()

	upload := telegram.UploadRequest{
		ChatID:   req.ChatID,
		Caption:  req.Caption,
		Filename: req.Filename,
		Document: pkg,
	}
	if withIcon && d.hasIcon(req) {
		icon, iconErr := d.openIcon(ctx, req)
		if iconErr != nil {
			d.logger.Warn("icon stream unavailable, sending without",
				slog.Int64("chat_id", req.ChatID),
				slog.String("error", iconErr.Error()),
			)
		} else {
			defer icon.Close()
			upload.Thumbnail = icon
		}
	}
	return d.tg.UploadDocument(ctx, upload)
}

func (d *Dispatcher) openPackage(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.StorageKey != "" {
		blob, err := d.blobs.Get(ctx, req.StorageKey)
		if err != nil {
			return nil, err
		}
		return blob.Body, nil
	}
	body, _, err := d.tg.FileStream(ctx, req.PackagePath)
	return body, err
}

func (d *Dispatcher) openIcon(ctx context.Context, req Request) (io.ReadCloser, error) {
	if req.ThumbKey != "" {
		blob, err := d.blobs.Get(ctx, req.ThumbKey)
		if err != nil {
			return nil, err
		}
		return blob.Body, nil
	}
	body, _, err := d.tg.FileStream(ctx, req.IconPath)
	return body, err
}

func (d *Dispatcher) hasIcon(req Request) bool {
	return req.ThumbKey != "" || req.IconPath != ""
}

// sendByReference forwards the original document by file id. Telegram keeps
// the stored filename on this path, so the rename and icon do not apply.
func (d *Dispatcher) sendByReference(ctx context.Context, req Request) (Outcome, error) {
	if req.PackageFileID == "" {
		return d.sendLink(ctx, req)
	}

	err := d.tg.SendDocumentByFileID(ctx, req.ChatID, req.PackageFileID, req.Caption, req.IconFileID)
	if err == nil {
		return Outcome{Mode: ModeForwarded, IconApplied: false}, nil
	}
	if req.IconFileID != "" {
		d.logger.Warn("reference send with thumbnail failed, retrying without",
			slog.Int64("chat_id", req.ChatID),
			slog.String("error", err.Error()),
		)
		if err = d.tg.SendDocumentByFileID(ctx, req.ChatID, req.PackageFileID, req.Caption, ""); err == nil {
			return Outcome{Mode: ModeForwarded, IconApplied: false}, nil
		}
	}
	d.logger.Error("reference send failed",
		slog.Int64("chat_id", req.ChatID),
		slog.String("error", err.Error()),
	)
	return d.sendLink(ctx, req)
}

func (d *Dispatcher) sendLink(ctx context.Context, req Request) (Outcome, error) {
	if req.DownloadURL == "" {
		return Outcome{}, fmt.Errorf("no delivery path for chat %d", req.ChatID)
	}
	text := fmt.Sprintf("The file could not be sent here. Download it directly:\n%s", req.DownloadURL)
	if _, err := d.tg.SendMessage(ctx, req.ChatID, text); err != nil {
		return Outcome{}, fmt.Errorf("send download link: %w", err)
	}
	return Outcome{Mode: ModeLinkOnly}, nil
}
