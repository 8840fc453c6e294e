package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLabelWithoutMiddleware(t *testing.T) {
	assert.Empty(t, GetLabel(context.Background()))
}

func TestMiddlewareStoresParsedLabel(t *testing.T) {
	var seenUA, label string
	parse := func(ua string) string {
		seenUA = ua
		return "Firefox on Linux"
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label = GetLabel(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/attendance/check-in", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Firefox/121.0")
	rr := httptest.NewRecorder()
	Middleware(parse)(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "Mozilla/5.0 Firefox/121.0", seenUA)
	assert.Equal(t, "Firefox on Linux", label)
}
