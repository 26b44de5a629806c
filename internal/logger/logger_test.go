package logger_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"jazzcash-gateway/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	r := gin.New()
	r.Use(logger.RequestLogger(log))
	r.GET("/orders/:id", func(c *gin.Context) {
		logger.FromContext(c, log).Info("inside")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/42?pp_MobileNumber=03001234567", nil))

	rid := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, rid)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, rid, entries[0].ContextMap()["request_id"])

	fields := entries[1].ContextMap()
	assert.Equal(t, "http_request", entries[1].Message)
	assert.Equal(t, "/orders/:id", fields["path"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
	for _, v := range fields {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, "03001234567")
		}
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(logger.RequestLogger(zap.New(core)))
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNew(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		log, err := logger.New(env)
		require.NoError(t, err)
		assert.NotNil(t, log)
	}
}
