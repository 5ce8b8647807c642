package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func runETag(t *testing.T, config CacheConfig, method, path, ifNoneMatch string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := ETag(config)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func dashboardHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"total_chws": 3})
}

func TestETag_SetsHeaders(t *testing.T) {
	rec := runETag(t, DefaultCacheConfig(), http.MethodGet, "/api/v1/dashboard", "", dashboardHandler)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	etag := rec.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Errorf("expected weak ETag, got %q", etag)
	}
	if got := rec.Header().Get("Cache-Control"); got != "private, max-age=0" {
		t.Errorf("unexpected Cache-Control %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Accept, Authorization" {
		t.Errorf("unexpected Vary %q", got)
	}
	if !strings.Contains(rec.Body.String(), "total_chws") {
		t.Errorf("expected body to be flushed, got %q", rec.Body.String())
	}
}

func TestETag_NotModifiedOnMatch(t *testing.T) {
	first := runETag(t, DefaultCacheConfig(), http.MethodGet, "/api/v1/dashboard", "", dashboardHandler)
	etag := first.Header().Get("ETag")

	rec := runETag(t, DefaultCacheConfig(), http.MethodGet, "/api/v1/dashboard", etag, dashboardHandler)
	if rec.Code != http.StatusNotModified {
		t.Errorf("expected 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestETag_MismatchReturnsBody(t *testing.T) {
	rec := runETag(t, DefaultCacheConfig(), http.MethodGet, "/api/v1/dashboard", `W/"stale"`, dashboardHandler)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestETag_SkipsWrites(t *testing.T) {
	rec := runETag(t, DefaultCacheConfig(), http.MethodPost, "/api/v1/workers", "", func(c echo.Context) error {
		return c.JSON(http.StatusCreated, map[string]string{"id": "CHW001"})
	})
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on POST")
	}
}

func TestETag_SkipsErrorResponses(t *testing.T) {
	rec := runETag(t, DefaultCacheConfig(), http.MethodGet, "/api/v1/workers/CHW404", "", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "record not found"})
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("ETag") != "" {
		t.Error("expected no ETag on error response")
	}
}

func TestETag_SkipsExcludedPaths(t *testing.T) {
	config := DefaultCacheConfig()
	config.ExcludePaths = []string{"/api/v1/sandbox/export"}
	rec := runETag(t, config, http.MethodGet, "/api/v1/sandbox/export", "", func(c echo.Context) error {
		return c.String(http.StatusOK, "{}\n")
	})
	if rec.Header().Get("ETag") != "" {
		t.Error("expected excluded path to skip ETag")
	}
}

func TestETagMatch(t *testing.T) {
	tests := []struct {
		header string
		etag   string
		want   bool
	}{
		{"*", `W/"abc"`, true},
		{`W/"abc"`, `W/"abc"`, true},
		{`"abc"`, `W/"abc"`, true},
		{`"x", W/"abc"`, `W/"abc"`, true},
		{`"x"`, `W/"abc"`, false},
	}
	for _, tt := range tests {
		if got := etagMatch(tt.header, tt.etag); got != tt.want {
			t.Errorf("etagMatch(%q, %q) = %v, want %v", tt.header, tt.etag, got, tt.want)
		}
	}
}
