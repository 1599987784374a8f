package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type stubHandler struct {
	registered bool
}

func (s *stubHandler) Register(e *echo.Echo) {
	s.registered = true
	e.GET("/stub", func(c echo.Context) error {
		return c.String(http.StatusOK, "stub")
	})
}

func TestNewRegistersHandlers(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &stubHandler{}
	srv := New(log, "", h, nil)

	if !h.registered {
		t.Fatal("handler was not registered")
	}
	if srv.addr != ":8080" {
		t.Fatalf("addr = %q, want default", srv.addr)
	}

	req := httptest.NewRequest(http.MethodGet, "/stub", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "stub" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
}
