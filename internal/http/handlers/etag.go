package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CachedJSON is a success envelope rendered once: the exact bytes to write
// plus the strong ETag over them. Values are safe to share across requests.
type CachedJSON struct {
	Body []byte
	ETag string
}

// RenderEnvelope marshals data into the success envelope and hashes the
// result, so listings can be cached and conditionally served.
func RenderEnvelope(data interface{}) (CachedJSON, error) {
	body, err := json.Marshal(Envelope{Success: true, Data: data})

	if err != nil {
		return CachedJSON{}, err
	}

	sum := sha256.Sum256(body)

	return CachedJSON{
		Body: body,
		ETag: `"` + hex.EncodeToString(sum[:]) + `"`,
	}, nil
}

// WriteCached writes a pre-rendered envelope, answering If-None-Match with
// 304 when the client already holds the current representation.
func WriteCached(ctx *gin.Context, status int, cached CachedJSON) {
	ctx.Header("ETag", cached.ETag)

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), cached.ETag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", cached.Body)
}

// RespondDataETag is the one-shot form: envelope, hash, conditional write.
// Falls back to a plain JSON response if the payload cannot marshal.
func RespondDataETag(ctx *gin.Context, status int, data interface{}) {
	cached, err := RenderEnvelope(data)

	if err != nil {
		RespondData(ctx, status, data)
		return
	}

	WriteCached(ctx, status, cached)
}

func ifNoneMatchMatches(headerValue, currentETag string) bool {
	if strings.TrimSpace(headerValue) == "" || strings.TrimSpace(currentETag) == "" {
		return false
	}

	if strings.TrimSpace(headerValue) == "*" {
		return true
	}

	current := normalizeETag(currentETag)

	for _, part := range strings.Split(headerValue, ",") {
		if normalizeETag(part) == current {
			return true
		}
	}

	return false
}

func normalizeETag(raw string) string {
	v := strings.TrimSpace(raw)

	// RFC allows weak validators like W/"abc".
	if strings.HasPrefix(v, "W/") {
		v = strings.TrimSpace(strings.TrimPrefix(v, "W/"))
	}

	return v
}
