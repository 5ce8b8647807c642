package middleware

import (
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// DefaultBodyLimit bounds JSON write payloads.
const DefaultBodyLimit = "1MB"

// BodyLimit rejects request bodies larger than limit with 413. limit is a
// human-readable size such as "512KB" or "1MB"; an unparsable value falls
// back to DefaultBodyLimit.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// Content-Length allows early rejection; the wrapped reader
			// catches bodies that lie about it or omit it.
			if req.ContentLength > maxBytes {
				return payloadTooLarge(maxBytes)
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: maxBytes, limit: maxBytes}

			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, payloadTooLarge(r.limit)
	}

	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)

	if r.remaining < 0 {
		r.exceeded = true
		return 0, payloadTooLarge(r.limit)
	}
	return n, err
}

func payloadTooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		"request body exceeds "+humanize.Bytes(uint64(limit)))
}

func parseLimit(s string) int64 {
	n, err := humanize.ParseBytes(s)
	if err != nil || n == 0 {
		n, _ = humanize.ParseBytes(DefaultBodyLimit)
	}
	return int64(n)
}
