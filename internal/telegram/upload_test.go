package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ipaforge/ipaforge/internal/ids"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return &Client{
		logger:       testLogger(),
		http:         srv.Client(),
		ids:          &ids.Sequence{},
		token:        "123:TESTTOKEN",
		apiEndpoint:  srv.URL + "/bot%s/%s",
		fileEndpoint: srv.URL + "/file/bot%s/%s",
	}
}

func TestUploadDocumentStreamsMultipart(t *testing.T) {
	t.Parallel()

	var (
		gotChatID   string
		gotCaption  string
		gotFilename string
		gotDoc      string
		gotThumb    string
		order       []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendDocument") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			content, _ := io.ReadAll(part)
			order = append(order, part.FormName())
			switch part.FormName() {
			case "chat_id":
				gotChatID = string(content)
			case "caption":
				gotCaption = string(content)
			case "document":
				gotFilename = part.FileName()
				gotDoc = string(content)
			case "thumbnail":
				gotThumb = string(content)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	err := client.UploadDocument(context.Background(), UploadRequest{
		ChatID:    99,
		Caption:   "here you go",
		Filename:  "Cool App.ipa",
		Document:  strings.NewReader("IPA-DATA"),
		Thumbnail: strings.NewReader("THUMB-DATA"),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}

	if gotChatID != "99" {
		t.Fatalf("chat_id = %q", gotChatID)
	}
	if gotCaption != "here you go" {
		t.Fatalf("caption = %q", gotCaption)
	}
	if gotFilename != "Cool_App.ipa" {
		t.Fatalf("filename = %q, want sanitized name", gotFilename)
	}
	if gotDoc != "IPA-DATA" || gotThumb != "THUMB-DATA" {
		t.Fatalf("payloads = %q / %q", gotDoc, gotThumb)
	}
	want := []string{"chat_id", "caption", "document", "thumbnail"}
	if len(order) != len(want) {
		t.Fatalf("part order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("part order = %v, want %v", order, want)
		}
	}
}

func TestUploadDocumentOmitsThumbnailWhenAbsent(t *testing.T) {
	t.Parallel()

	var names []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return
			}
			io.Copy(io.Discard, part)
			names = append(names, part.FormName())
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	err := client.UploadDocument(context.Background(), UploadRequest{
		ChatID:   5,
		Filename: "app.ipa",
		Document: strings.NewReader("data"),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	for _, n := range names {
		if n == "thumbnail" {
			t.Fatal("thumbnail part should be absent")
		}
	}
}

func TestUploadDocumentSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: file is too big"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	err := client.UploadDocument(context.Background(), UploadRequest{
		ChatID:   5,
		Filename: "app.ipa",
		Document: strings.NewReader("data"),
	})
	if err == nil || !strings.Contains(err.Error(), "file is too big") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestUploadDocumentRequiresDocument(t *testing.T) {
	t.Parallel()

	client := &Client{logger: testLogger(), ids: &ids.Sequence{}}
	if err := client.UploadDocument(context.Background(), UploadRequest{ChatID: 1}); err == nil {
		t.Fatal("missing document stream should be rejected")
	}
}
