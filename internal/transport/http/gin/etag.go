package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contentTypeJSON     = "application/json; charset=utf-8"
	contentTypeCalendar = "text/calendar; charset=utf-8"
)

// writeJSONWithCache writes v as JSON with a weak ETag and Cache-Control.
func writeJSONWithCache(c *gin.Context, status int, v any, cacheControl string) {
	b, err := json.Marshal(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}
	writeWithCache(c, status, contentTypeJSON, b, cacheControl)
}

// writeWithCache answers 304 when If-None-Match names the body's tag.
func writeWithCache(c *gin.Context, status int, contentType string, body []byte, cacheControl string) {
	tag := etag(body)

	c.Header("ETag", tag)
	if cacheControl != "" {
		c.Header("Cache-Control", cacheControl)
	}

	if matchesETag(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(status, contentType, body)
}

func etag(b []byte) string {
	sum := sha256.Sum256(b)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`
}

// matchesETag compares weakly, so a strong form of the same tag matches.
func matchesETag(header, tag string) bool {
	if header == "" {
		return false
	}
	want := strings.TrimPrefix(tag, "W/")
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == want {
			return true
		}
	}
	return false
}
