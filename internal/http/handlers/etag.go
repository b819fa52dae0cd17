package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondOKWithETag wraps data in the success envelope and answers 304
// when the client already holds the same representation.
func RespondOKWithETag(ctx *gin.Context, data interface{}) {
	body := gin.H{"success": true, "data": data}

	etag, err := buildETag(body)
	if err != nil {
		ctx.JSON(http.StatusOK, body)
		return
	}

	ctx.Header("ETag", etag)
	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(http.StatusOK, body)
}

// weak: the tag is derived from the JSON value, not the exact bytes on the wire
func buildETag(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(b)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

func ifNoneMatchMatches(header, current string) bool {
	header = strings.TrimSpace(header)
	if header == "" || current == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaqueTag(current)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == want {
			return true
		}
	}
	return false
}

// If-None-Match uses weak comparison, so W/ prefixes are ignored.
func opaqueTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "W/")
}
