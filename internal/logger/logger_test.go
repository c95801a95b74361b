package logger

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeHeadersRedactsCredentials(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("Sec-WebSocket-Protocol", "bearer, secret")
	r.Header.Set("Accept", "application/json")

	h := SafeHeaders(r)
	assert.Equal(t, "<redacted>", h["Authorization"])
	assert.Equal(t, "<redacted>", h["Sec-Websocket-Protocol"])
	assert.Equal(t, "application/json", h["Accept"])
}

func TestInitLevels(t *testing.T) {
	assert.NoError(t, Init("debug", true))
	assert.True(t, Log.Core().Enabled(-1))

	assert.NoError(t, Init("bogus", false))
	assert.False(t, Log.Core().Enabled(-1))
}
