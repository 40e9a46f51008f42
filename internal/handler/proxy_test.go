package handler

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"rewrite-proxy-go/internal/model"
)

func TestProxyHandler_HTML(t *testing.T) {
	cfg := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pages/main.html" {
			t.Errorf("upstream path = %q, want landing page", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		_, _ = w.Write([]byte(`<html><body><a href="/jg/1.html">Game</a></body></html>`))
	})
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Handle(c); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `href="/proxy/jg/1.html"`) {
		t.Errorf("body not rewritten:\n%s", rec.Body.String())
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "" {
		t.Errorf("X-Frame-Options = %q, want stripped", v)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/html; charset=utf-8")
	}
}

func TestProxyHandler_BinaryBody(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01, 0xfe, 0xff}
	cfg := newUpstream(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/img/logo.png", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !bytes.Equal(rec.Body.Bytes(), img) {
		t.Errorf("body = %v, want raw image bytes %v", rec.Body.Bytes(), img)
	}
}

func TestProxyHandler_RedirectAndCookies(t *testing.T) {
	var upstreamURL string
	cfg := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "a=1; Domain=example.test; Path=/")
		w.Header().Add("Set-Cookie", "b=2; Path=/; SameSite=None; Secure")
		w.Header().Set("Location", upstreamURL+"/login")
		w.WriteHeader(http.StatusFound)
	})
	upstreamURL = "http://" + cfg.Upstream.Domain
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/account", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/proxy/login" {
		t.Errorf("Location = %q, want %q", loc, "/proxy/login")
	}
	cookies := rec.Header().Values("Set-Cookie")
	want := []string{"a=1; Path=/", "b=2; Path=/; SameSite=Lax; Secure"}
	if len(cookies) != len(want) {
		t.Fatalf("Set-Cookie = %v, want %v", cookies, want)
	}
	for i := range want {
		if cookies[i] != want[i] {
			t.Errorf("Set-Cookie[%d] = %q, want %q", i, cookies[i], want[i])
		}
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestProxyHandler_ForwardsPostBody(t *testing.T) {
	cfg := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "q=fractions" {
			t.Errorf("upstream body = %q, want %q", body, "q=fractions")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("upstream Content-Type = %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/proxy/servlets/search", strings.NewReader("q=fractions"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q, want upstream JSON unchanged", rec.Body.String())
	}
}

func TestProxyHandler_QueryForwardedVerbatim(t *testing.T) {
	var gotQuery string
	cfg := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/servlets/search?b=2&a=1&flag", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if gotQuery != "b=2&a=1&flag" {
		t.Errorf("upstream query = %q, want %q", gotQuery, "b=2&a=1&flag")
	}
}

func TestProxyHandler_UpstreamDown(t *testing.T) {
	cfg := newUpstream(t, func(http.ResponseWriter, *http.Request) {})
	cfg.Upstream.Domain = "127.0.0.1:1"
	h := NewProxyHandler(newTestService(t, cfg), testLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/", http.NoBody)
	rec := httptest.NewRecorder()

	if err := h.Handle(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q, want text/html", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Proxy Error") {
		t.Errorf("body = %q, want error page", rec.Body.String())
	}
}

func TestWriteResponse_InvalidBase64(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)

	err := writeResponse(c.Response(), &model.Response{
		StatusCode:      http.StatusOK,
		Body:            "***",
		IsBase64Encoded: true,
	})
	if err == nil {
		t.Fatal("writeResponse() expected error for invalid base64 body, got nil")
	}
	if c.Response().Committed {
		t.Error("response committed despite decode failure")
	}
}
