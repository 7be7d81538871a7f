package server

import (
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSCheck(t *testing.T) {
	assert.NoError(t, rssCheck(math.MaxUint64)())

	err := rssCheck(1)()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit 1")
}

func TestReadyFailsOverMemoryLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.SessionConfig = testConfig()
	cfg.MaxMemoryBytes = 1
	_, ts := newTestServerWithConfig(t, cfg, counterRoute())

	code, body := get(t, ts.URL+"/ready?full=1")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "exceeds limit")
}
