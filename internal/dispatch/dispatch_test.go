package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ipaforge/ipaforge/internal/storage"
	"github.com/ipaforge/ipaforge/internal/telegram"
)

type uploadCall struct {
	filename string
	hadIcon  bool
	document string
}

type fakeTelegram struct {
	streamErr    error
	streamsOpen  int
	uploadErrs   []error
	uploads      []uploadCall
	refErrs      []error
	refCalls     []string // thumbFileID per call
	messages     []string
	messageErr   error
}

func (f *fakeTelegram) FileStream(_ context.Context, filePath string) (io.ReadCloser, int64, error) {
	if f.streamErr != nil {
		return nil, 0, f.streamErr
	}
	f.streamsOpen++
	return io.NopCloser(strings.NewReader("STREAM:" + filePath)), 0, nil
}

func (f *fakeTelegram) UploadDocument(_ context.Context, req telegram.UploadRequest) error {
	data, _ := io.ReadAll(req.Document)
	f.uploads = append(f.uploads, uploadCall{
		filename: req.Filename,
		hadIcon:  req.Thumbnail != nil,
		document: string(data),
	})
	if len(f.uploadErrs) > 0 {
		err := f.uploadErrs[0]
		f.uploadErrs = f.uploadErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTelegram) SendDocumentByFileID(_ context.Context, _ int64, _, _, thumbFileID string) error {
	f.refCalls = append(f.refCalls, thumbFileID)
	if len(f.refErrs) > 0 {
		err := f.refErrs[0]
		f.refErrs = f.refErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTelegram) SendMessage(_ context.Context, _ int64, text string) (int, error) {
	if f.messageErr != nil {
		return 0, f.messageErr
	}
	f.messages = append(f.messages, text)
	return len(f.messages), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(tg *fakeTelegram, limit int64) *Dispatcher {
	return New(testLogger(), tg, storage.NewMemoryStore(), limit)
}

func TestSendStreamsWithinCeiling(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:      1,
		Filename:    "Renamed.ipa",
		PackagePath: "documents/pkg.ipa",
		PackageSize: 100, // ceiling is inclusive
		IconPath:    "photos/icon.jpg",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeStreamed || !out.IconApplied {
		t.Fatalf("outcome = %+v", out)
	}
	if len(tg.uploads) != 1 || !tg.uploads[0].hadIcon {
		t.Fatalf("uploads = %+v", tg.uploads)
	}
	if tg.uploads[0].document != "STREAM:documents/pkg.ipa" {
		t.Fatalf("document payload = %q", tg.uploads[0].document)
	}
}

func TestSendForwardsAboveCeiling(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:        1,
		PackageFileID: "BIGFILE",
		PackagePath:   "documents/pkg.ipa",
		PackageSize:   101,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeForwarded || out.IconApplied {
		t.Fatalf("outcome = %+v", out)
	}
	if len(tg.uploads) != 0 {
		t.Fatal("oversized package must not be re-uploaded")
	}
	if len(tg.refCalls) != 1 {
		t.Fatalf("refCalls = %v", tg.refCalls)
	}
}

func TestSendTreatsUnknownSizeAsOversized(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:        1,
		PackageFileID: "FILE",
		PackagePath:   "documents/pkg.ipa",
		PackageSize:   0,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeForwarded {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSendRetriesWithoutIcon(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{uploadErrs: []error{errors.New("thumbnail rejected")}}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:      1,
		Filename:    "Renamed.ipa",
		PackagePath: "documents/pkg.ipa",
		PackageSize: 50,
		IconPath:    "photos/icon.jpg",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeStreamed || out.IconApplied {
		t.Fatalf("outcome = %+v", out)
	}
	if len(tg.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(tg.uploads))
	}
	if !tg.uploads[0].hadIcon || tg.uploads[1].hadIcon {
		t.Fatalf("icon attempts = %+v", tg.uploads)
	}
	// Second attempt must read a complete, freshly opened package stream.
	if tg.uploads[1].document != "STREAM:documents/pkg.ipa" {
		t.Fatalf("retry payload = %q", tg.uploads[1].document)
	}
}

func TestSendStreamsFromBlobStore(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{}
	blobs := storage.NewMemoryStore()
	ctx := context.Background()
	if err := blobs.Put(ctx, "pkg/tok", strings.NewReader("OFFLOADED"), "application/octet-stream"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	d := New(testLogger(), tg, blobs, 100)

	out, err := d.Send(ctx, Request{
		ChatID:      1,
		Filename:    "Renamed.ipa",
		StorageKey:  "pkg/tok",
		PackageSize: 9,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeStreamed {
		t.Fatalf("outcome = %+v", out)
	}
	if tg.uploads[0].document != "OFFLOADED" {
		t.Fatalf("payload = %q", tg.uploads[0].document)
	}
}

func TestSendReferenceRetriesWithoutThumbnail(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{refErrs: []error{errors.New("thumb rejected")}}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:        1,
		PackageFileID: "BIG",
		PackageSize:   200,
		IconFileID:    "ICON",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeForwarded {
		t.Fatalf("outcome = %+v", out)
	}
	if len(tg.refCalls) != 2 || tg.refCalls[0] != "ICON" || tg.refCalls[1] != "" {
		t.Fatalf("refCalls = %v", tg.refCalls)
	}
}

func TestSendFallsBackToLink(t *testing.T) {
	t.Parallel()

	tg := &fakeTelegram{refErrs: []error{errors.New("gone"), errors.New("gone")}}
	d := newDispatcher(tg, 100)

	out, err := d.Send(context.Background(), Request{
		ChatID:        1,
		PackageFileID: "BIG",
		PackageSize:   200,
		IconFileID:    "ICON",
		DownloadURL:   "https://example.test/d/tok",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Mode != ModeLinkOnly {
		t.Fatalf("outcome = %+v", out)
	}
	if len(tg.messages) != 1 || !strings.Contains(tg.messages[0], "https://example.test/d/tok") {
		t.Fatalf("messages = %v", tg.messages)
	}
}

func TestSendFailsWithoutAnyPath(t *testing.T) {
	t.Parallel()

	d := newDispatcher(&fakeTelegram{}, 100)
	_, err := d.Send(context.Background(), Request{ChatID: 1, PackageSize: 200})
	if err == nil {
		t.Fatal("expected delivery failure")
	}
}
