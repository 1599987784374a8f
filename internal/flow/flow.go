// Package flow runs the per-chat upload conversation: package in, icon in,
// name in, file out. State lives in the session store; every inbound event is
// handled by a stateless invocation, so the store is the only coordination
// point between events.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ipaforge/ipaforge/internal/dispatch"
	"github.com/ipaforge/ipaforge/internal/ids"
	"github.com/ipaforge/ipaforge/internal/session"
	"github.com/ipaforge/ipaforge/internal/storage"
	"github.com/ipaforge/ipaforge/internal/telegram"
)

const requiredExt = ".ipa"

const welcomeText = "👋 Send me an .ipa file, then an icon, then the new file name. " +
	"I'll send the renamed package back to you.\n\nUse /reset at any point to start over."

const helpText = "How it works:\n" +
	"1. Send the .ipa package as a document.\n" +
	"2. Send the icon as a photo.\n" +
	"3. Send the new file name, ending in .ipa.\n\n" +
	"/reset clears the current session."

// Document is an inbound file attachment.
type Document struct {
	FileID   string
	FileName string
	FileSize int64
}

// Photo is one resolution variant of an inbound picture.
type Photo struct {
	FileID   string
	FileSize int64
	Width    int
	Height   int
}

// Event is one inbound chat update, already reduced to the shapes the
// conversation cares about.
type Event struct {
	ChatID   int64
	UserID   int64
	Text     string
	Document *Document
	Photos   []Photo
}

// Messenger is the slice of the bot client the conversation needs.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	GetFile(ctx context.Context, fileID string) (string, error)
	FileStream(ctx context.Context, filePath string) (io.ReadCloser, int64, error)
}

// Sender performs the final delivery.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error)
}

// Options are the conversation tunables.
type Options struct {
	// UploadLimit is the bot re-upload ceiling in bytes. Larger packages are
	// parked in blob storage when possible and forwarded by reference.
	UploadLimit int64
	// BaseURL is the public base for download links; empty disables them.
	BaseURL    string
	LockTTL    time.Duration
	TokenTTL   time.Duration
	SessionTTL time.Duration
}

type Machine struct {
	logger   *slog.Logger
	sessions session.Store
	locks    session.Locker
	blobs    storage.BlobStore
	tg       Messenger
	sender   Sender
	ids      ids.Generator
	opts     Options
}

func NewMachine(
	log *slog.Logger,
	sessions session.Store,
	locks session.Locker,
	blobs storage.BlobStore,
	tg Messenger,
	sender Sender,
	gen ids.Generator,
	opts Options,
) *Machine {
	return &Machine{
		logger:   log.With(slog.String("service", "flow")),
		sessions: sessions,
		locks:    locks,
		blobs:    blobs,
		tg:       tg,
		sender:   sender,
		ids:      gen,
		opts:     opts,
	}
}

// Handle processes one inbound event. Events that do not match the current
// step get a short hint and leave the session untouched.
func (m *Machine) Handle(ctx context.Context, ev Event) error {
	if cmd, ok := parseCommand(ev.Text); ok {
		return m.handleCommand(ctx, ev.ChatID, cmd)
	}

	sess, err := m.sessions.Get(ctx, ev.ChatID)
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New()
	} else if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	switch {
	case ev.Document != nil:
		return m.handleDocument(ctx, ev, sess)
	case len(ev.Photos) > 0:
		return m.handlePhoto(ctx, ev, sess)
	case strings.TrimSpace(ev.Text) != "":
		return m.handleText(ctx, ev, sess)
	default:
		return m.reply(ctx, ev.ChatID, stepHint(sess.Step))
	}
}

func (m *Machine) handleCommand(ctx context.Context, chatID int64, cmd string) error {
	switch cmd {
	case "start":
		if err := m.clearChat(ctx, chatID); err != nil {
			return err
		}
		return m.reply(ctx, chatID, welcomeText)
	case "reset":
		if err := m.clearChat(ctx, chatID); err != nil {
			return err
		}
		return m.reply(ctx, chatID, "♻️ Session cleared. Send an .ipa file to start over.")
	case "help":
		return m.reply(ctx, chatID, helpText)
	default:
		return m.reply(ctx, chatID, "Unknown command. Send /start to begin or /reset to start over.")
	}
}

// clearChat drops the chat's session and any blobs parked for it.
func (m *Machine) clearChat(ctx context.Context, chatID int64) error {
	sess, err := m.sessions.Get(ctx, chatID)
	if err == nil {
		m.deleteBlobs(ctx, sess)
	} else if !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("load session: %w", err)
	}
	if err := m.sessions.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Machine) deleteBlobs(ctx context.Context, sess *session.Session) {
	for _, key := range []string{sess.StorageKey, sess.ThumbKey} {
		if key == "" {
			continue
		}
		if err := m.blobs.Delete(ctx, key); err != nil {
			m.logger.Warn("blob cleanup failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Machine) handleDocument(ctx context.Context, ev Event, sess *session.Session) error {
	if sess.Step != session.StepAwaitingPackage {
		return m.reply(ctx, ev.ChatID, stepHint(sess.Step))
	}
	doc := ev.Document
	if !hasRequiredExt(doc.FileName) {
		return m.reply(ctx, ev.ChatID, "That doesn't look like an .ipa file. Please send a file ending in .ipa.")
	}

	statusID, err := m.tg.SendMessage(ctx, ev.ChatID,
		fmt.Sprintf("📦 Received %s (%s). Processing…", doc.FileName, humanSize(doc.FileSize)))
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}

	sess.PackageFileID = doc.FileID
	sess.PackageSize = doc.FileSize

	// Path resolution is best-effort: when it fails the flow still advances
	// and the final dispatch falls back to reference-based forwarding.
	var notes []string
	path, err := m.tg.GetFile(ctx, doc.FileID)
	if err != nil {
		m.logger.Warn("package path fetch failed",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("error", err.Error()),
		)
		notes = append(notes, "⚠️ I can't open this file for re-upload, so it will be forwarded as-is at the end.")
	} else {
		sess.PackagePath = path
		if doc.FileSize > m.opts.UploadLimit {
			key, parkErr := m.parkPackage(ctx, ev.ChatID, statusID, path)
			if parkErr != nil {
				m.logger.Warn("package offload failed",
					slog.Int64("chat_id", ev.ChatID),
					slog.String("error", parkErr.Error()),
				)
				notes = append(notes, "⚠️ The file is over the re-upload limit, so it will be forwarded with its original name.")
			} else {
				sess.StorageKey = key
			}
		}
	}

	sess.Step = session.StepAwaitingIcon
	if err := m.sessions.Put(ctx, ev.ChatID, sess, m.opts.SessionTTL); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	text := "🖼 Now send me the icon as a photo."
	if len(notes) > 0 {
		text = strings.Join(notes, "\n") + "\n\n" + text
	}
	return m.tg.EditMessageText(ctx, ev.ChatID, statusID, text)
}

// parkPackage streams an oversized package into blob storage so the download
// link keeps working after Telegram's bot download window closes.
func (m *Machine) parkPackage(ctx context.Context, chatID int64, statusID int, filePath string) (string, error) {
	_ = m.tg.EditMessageText(ctx, chatID, statusID, "☁️ Large package, moving it to storage…")
	body, _, err := m.tg.FileStream(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer body.Close()

	key := "packages/" + m.ids.Hex() + requiredExt
	if err := m.blobs.Put(ctx, key, body, "application/octet-stream"); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Machine) handlePhoto(ctx context.Context, ev Event, sess *session.Session) error {
	switch sess.Step {
	case session.StepAwaitingPackage:
		return m.reply(ctx, ev.ChatID, "Send the .ipa package first, then the icon.")
	case session.StepAwaitingName:
		return m.reply(ctx, ev.ChatID, stepHint(sess.Step))
	}

	photo := pickLargest(ev.Photos)
	sess.IconFileID = photo.FileID

	var note string
	path, err := m.tg.GetFile(ctx, photo.FileID)
	if err != nil {
		m.logger.Warn("icon path fetch failed",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("error", err.Error()),
		)
		note = "⚠️ I couldn't fetch the icon; the file may go out without it.\n\n"
	} else {
		sess.IconPath = path
		if sess.StorageKey != "" {
			key, parkErr := m.parkThumb(ctx, path)
			if parkErr != nil {
				m.logger.Warn("thumbnail offload failed",
					slog.Int64("chat_id", ev.ChatID),
					slog.String("error", parkErr.Error()),
				)
			} else {
				sess.ThumbKey = key
			}
		}
	}

	sess.Step = session.StepAwaitingName
	if err := m.sessions.Put(ctx, ev.ChatID, sess, m.opts.SessionTTL); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return m.reply(ctx, ev.ChatID, note+"✏️ What should the file be called? Send a name ending in .ipa, e.g. MyApp.ipa.")
}

func (m *Machine) parkThumb(ctx context.Context, filePath string) (string, error) {
	body, _, err := m.tg.FileStream(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer body.Close()

	key := "thumbs/" + m.ids.Hex() + ".jpg"
	if err := m.blobs.Put(ctx, key, body, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

func (m *Machine) handleText(ctx context.Context, ev Event, sess *session.Session) error {
	switch sess.Step {
	case session.StepAwaitingPackage:
		return m.reply(ctx, ev.ChatID, "Send me an .ipa file to get started.")
	case session.StepAwaitingIcon:
		return m.reply(ctx, ev.ChatID, "🖼 Send the icon as a photo first, or /reset to start over.")
	}

	name := strings.TrimSpace(ev.Text)
	if !hasRequiredExt(name) {
		return m.reply(ctx, ev.ChatID, "The name must end in .ipa. Try again, e.g. MyApp.ipa.")
	}
	sess.Filename = name
	return m.finalize(ctx, ev.ChatID, sess)
}

// finalize performs the terminal dispatch. The single-flight lock makes a
// redelivered webhook for the same chat a silent no-op instead of a double
// send. The session is cleared no matter how delivery went.
func (m *Machine) finalize(ctx context.Context, chatID int64, sess *session.Session) error {
	if err := m.locks.Acquire(ctx, chatID, m.opts.LockTTL); err != nil {
		if errors.Is(err, session.ErrLockHeld) {
			m.logger.Info("duplicate final dispatch ignored", slog.Int64("chat_id", chatID))
			return nil
		}
		return fmt.Errorf("acquire dispatch lock: %w", err)
	}
	defer func() {
		if err := m.locks.Release(ctx, chatID); err != nil {
			m.logger.Warn("lock release failed",
				slog.Int64("chat_id", chatID),
				slog.String("error", err.Error()),
			)
		}
	}()

	downloadURL := m.mintDownloadLink(ctx, sess)

	statusID, err := m.tg.SendMessage(ctx, chatID, "🚀 Preparing your file…")
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	if err := m.tg.SendChatAction(ctx, chatID, telegram.ChatUploadDocument); err != nil {
		m.logger.Debug("chat action failed", slog.String("error", err.Error()))
	}

	out, sendErr := m.sender.Send(ctx, dispatch.Request{
		ChatID:        chatID,
		Filename:      sess.Filename,
		PackageFileID: sess.PackageFileID,
		PackagePath:   sess.PackagePath,
		PackageSize:   sess.PackageSize,
		StorageKey:    sess.StorageKey,
		IconFileID:    sess.IconFileID,
		IconPath:      sess.IconPath,
		ThumbKey:      sess.ThumbKey,
		DownloadURL:   downloadURL,
	})
	if sendErr != nil {
		m.logger.Error("final dispatch failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", sendErr.Error()),
		)
	}

	if err := m.sessions.Delete(ctx, chatID); err != nil {
		m.logger.Error("session cleanup failed",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}

	if err := m.tg.EditMessageText(ctx, chatID, statusID, outcomeText(sess, out, sendErr, downloadURL)); err != nil {
		return fmt.Errorf("edit status: %w", err)
	}
	return nil
}

// mintDownloadLink stores a download token and returns the public link, or
// empty when no direct-download source or base URL is available.
func (m *Machine) mintDownloadLink(ctx context.Context, sess *session.Session) string {
	if m.opts.BaseURL == "" || (sess.StorageKey == "" && sess.PackagePath == "") {
		return ""
	}
	token := m.ids.Hex()
	err := m.sessions.PutToken(ctx, token, session.DownloadToken{
		StorageKey:  sess.StorageKey,
		PackagePath: sess.PackagePath,
		Filename:    sess.Filename,
	}, m.opts.TokenTTL)
	if err != nil {
		m.logger.Warn("download token store failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimRight(m.opts.BaseURL, "/") + "/d/" + token
}

func outcomeText(sess *session.Session, out dispatch.Outcome, sendErr error, downloadURL string) string {
	if sendErr != nil {
		text := "❌ Sending failed. Please try again with /reset."
		if downloadURL != "" {
			text += "\n⬇️ You can still download the file here:\n" + downloadURL
		}
		return text
	}
	switch out.Mode {
	case dispatch.ModeStreamed:
		text := fmt.Sprintf("✅ Done! Sent as %s.", sess.Filename)
		if sess.IconFileID != "" && !out.IconApplied {
			text += "\n⚠️ The icon could not be attached."
		}
		if downloadURL != "" {
			text += "\n⬇️ Direct download (time-limited):\n" + downloadURL
		}
		return text
	case dispatch.ModeForwarded:
		text := "📎 The file is too large to re-upload, so I sent the original. " +
			"The custom name and icon could not be applied on this path."
		if downloadURL != "" {
			text += "\n⬇️ Download it with your chosen name here (time-limited):\n" + downloadURL
		}
		return text
	case dispatch.ModeLinkOnly:
		return "⚠️ I couldn't send the file in this chat. Use the download link above."
	}
	return "✅ Done."
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string) error {
	_, err := m.tg.SendMessage(ctx, chatID, text)
	return err
}

func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}

func hasRequiredExt(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), requiredExt)
}

// pickLargest selects the highest-resolution variant. Telegram orders the
// variants ascending, so the last one wins unless sizes say otherwise.
func pickLargest(photos []Photo) Photo {
	best := photos[len(photos)-1]
	for _, p := range photos {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best
}

func stepHint(step session.Step) string {
	switch step {
	case session.StepAwaitingIcon:
		return "🖼 I'm waiting for the icon. Send it as a photo, or /reset to start over."
	case session.StepAwaitingName:
		return "✏️ I'm waiting for the new file name. Send a name ending in .ipa, or /reset to start over."
	default:
		return "Send me an .ipa file to get started."
	}
}

func humanSize(n int64) string {
	const mb = 1 << 20
	switch {
	case n <= 0:
		return "unknown size"
	case n < mb:
		return fmt.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
}
