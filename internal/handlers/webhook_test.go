package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ipaforge/ipaforge/internal/flow"
)

type fakeFlow struct {
	events []flow.Event
	err    error
}

func (f *fakeFlow) Handle(_ context.Context, ev flow.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

type fakeGate struct {
	allow   bool
	channel string
}

func (f *fakeGate) Allow(_ context.Context, _ int64) bool { return f.allow }
func (f *fakeGate) Channel() string                       { return f.channel }

type fakeReplier struct {
	messages []string
}

func (f *fakeReplier) SendMessage(_ context.Context, _ int64, text string) (int, error) {
	f.messages = append(f.messages, text)
	return len(f.messages), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postUpdate(e *echo.Echo, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if secret != "" {
		req.Header.Set(secretTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	t.Parallel()

	fl := &fakeFlow{}
	h := NewWebhookHandler(testLogger(), fl, &fakeGate{allow: true}, &fakeReplier{}, "")
	e := echo.New()
	h.Register(e)

	body := `{"update_id":1,"message":{"message_id":5,"from":{"id":9},"chat":{"id":7},
		"text":"",
		"document":{"file_id":"DOC","file_name":"app.ipa","file_size":1234},
		"photo":[{"file_id":"P1","width":90,"height":90},{"file_id":"P2","width":320,"height":320}]}}`
	rec := postUpdate(e, body, "")

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if len(fl.events) != 1 {
		t.Fatalf("events = %d", len(fl.events))
	}
	ev := fl.events[0]
	if ev.ChatID != 7 || ev.UserID != 9 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Document == nil || ev.Document.FileName != "app.ipa" || ev.Document.FileSize != 1234 {
		t.Fatalf("document = %+v", ev.Document)
	}
	if len(ev.Photos) != 2 || ev.Photos[1].FileID != "P2" {
		t.Fatalf("photos = %+v", ev.Photos)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	t.Parallel()

	fl := &fakeFlow{}
	h := NewWebhookHandler(testLogger(), fl, &fakeGate{allow: true}, &fakeReplier{}, "topsecret")
	e := echo.New()
	h.Register(e)

	rec := postUpdate(e, `{"update_id":1}`, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fl.events) != 0 {
		t.Fatal("update must not be processed")
	}
}

func TestWebhookGateBlocksWithRemediation(t *testing.T) {
	t.Parallel()

	fl := &fakeFlow{}
	replier := &fakeReplier{}
	h := NewWebhookHandler(testLogger(), fl, &fakeGate{allow: false, channel: "mychannel"}, replier, "")
	e := echo.New()
	h.Register(e)

	body := `{"update_id":1,"message":{"message_id":5,"from":{"id":9},"chat":{"id":7},"text":"hi"}}`
	rec := postUpdate(e, body, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, webhook must still acknowledge", rec.Code)
	}
	if len(fl.events) != 0 {
		t.Fatal("blocked user reached the flow")
	}
	if len(replier.messages) != 1 || !strings.Contains(replier.messages[0], "@mychannel") {
		t.Fatalf("remediation = %v", replier.messages)
	}
}

func TestWebhookIgnoresNonMessageUpdates(t *testing.T) {
	t.Parallel()

	fl := &fakeFlow{}
	h := NewWebhookHandler(testLogger(), fl, &fakeGate{allow: true}, &fakeReplier{}, "")
	e := echo.New()
	h.Register(e)

	rec := postUpdate(e, `{"update_id":1,"edited_message":{"message_id":5}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(fl.events) != 0 {
		t.Fatal("non-message update must be ignored")
	}
}
