package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CacheConfig controls the ETag and Cache-Control headers on read responses.
type CacheConfig struct {
	MaxAge       int      // seconds
	Private      bool
	VaryHeaders  []string // default: Accept, Authorization
	ExcludePaths []string
}

// DefaultCacheConfig returns a private policy that forces revalidation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:      0,
		Private:     true,
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (w *bufferedResponseWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// ETag buffers GET and HEAD responses, tags them with a weak ETag computed
// from the body and answers a matching If-None-Match with 304.
func ETag(config CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			for _, ex := range config.ExcludePaths {
				if strings.HasPrefix(req.URL.Path, ex) {
					return next(c)
				}
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedResponseWriter{writer: orig, statusCode: http.StatusOK}
			res.Writer = buf

			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}
			if buf.statusCode >= 400 {
				return buf.flushTo()
			}

			res.Header().Set("Cache-Control", buildCacheControl(config))
			if len(config.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(config.VaryHeaders, ", "))
			}
			etag := computeETag(buf.buf.Bytes())
			res.Header().Set("ETag", etag)

			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flushTo()
		}
	}
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:16])
}

func buildCacheControl(config CacheConfig) string {
	scope := "public"
	if config.Private {
		scope = "private"
	}
	return fmt.Sprintf("%s, max-age=%d", scope, config.MaxAge)
}

// etagMatch compares an If-None-Match value against etag using weak
// comparison. Supports lists and "*".
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
