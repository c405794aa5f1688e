package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func preflight(handler http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", IdempotencyHeader)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	handler := CORS([]string{" https://shop.example.com/ ", ""})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	resp := preflight(handler, "https://shop.example.com")
	assert.Equal(t, "https://shop.example.com", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header().Get("Access-Control-Allow-Credentials"))

	resp = preflight(handler, "https://evil.example.com")
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))

	resp = preflight(handler, "http://localhost:3000")
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"), "local origins only apply when nothing is configured")
}

func TestCORSDefaultsToLocalOrigins(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	resp := preflight(handler, "http://localhost:3000")
	assert.Equal(t, "http://localhost:3000", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	handler := CORS([]string{"*"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	resp := preflight(handler, "https://anywhere.example.com")
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Credentials"))
}
