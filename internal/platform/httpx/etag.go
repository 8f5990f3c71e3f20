package httpx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
)

// ETagFromVersion renders a millisecond version stamp as a strong ETag value.
func ETagFromVersion(version int64) string {
	return strconv.FormatInt(version, 10)
}

// ETagFromBody hashes the canonical JSON serialization of body. Used when a
// payload carries no explicit version field.
func ETagFromBody(body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// WriteCached sends body with the given ETag, or a bare 304 when the request's
// If-None-Match already carries it.
func WriteCached(w http.ResponseWriter, r *http.Request, etag string, body any) {
	w.Header().Set("ETag", `"`+etag+`"`)
	if match := r.Header.Get("If-None-Match"); match != "" && trimETag(match) == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	JSON(w, http.StatusOK, body)
}

func trimETag(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
