package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity(t *testing.T) {
	var seen string
	h := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("Success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/coupons", nil)
		req.Header.Set(UserIDHeader, " user1 ")
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "user1", seen)
	})

	t.Run("Missing Header", func(t *testing.T) {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/coupons", nil)
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, seen)
		assert.Contains(t, rr.Body.String(), "unauthenticated")
	})
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewStructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/market", nil)
	req.Header.Set(UserIDHeader, "user1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"msg":"server error"`)
	assert.Contains(t, buf.String(), `"user_id":"user1"`)
	assert.Contains(t, buf.String(), `"status":500`)
}
