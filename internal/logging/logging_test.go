package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := L()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })
	return logs
}

func TestWithRequestID(t *testing.T) {
	logs := observe(t)

	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))

	WithContext(ctx).Info("hello")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()["request_id"])
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t)

	var seen string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/x", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	t.Run("keeps client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(RequestIDHeader, "abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.NotEmpty(t, seen)
		assert.NotEqual(t, "abc", seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 2)
	assert.EqualValues(t, http.StatusNoContent, completed[1].ContextMap()["status"])
}

func TestInitLevel(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetLogger(prev) })

	require.NoError(t, Init(Config{Level: "warn", Format: "json", OutputPath: "stderr"}))
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L().Core().Enabled(zapcore.WarnLevel))

	// Unknown levels fall back to info.
	require.NoError(t, Init(Config{Level: "loud", Format: "console", OutputPath: "stderr"}))
	assert.True(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, L().Core().Enabled(zapcore.DebugLevel))
}
