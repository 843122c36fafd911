package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestGinMiddleware_LogsRequest(t *testing.T) {
	log, logs := observedLogger()

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/invoices", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invoices?status=DRAFT", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.InfoLevel, entry.Level)
	assert.Equal(t, "http request", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "/invoices", fields["path"])
	assert.Equal(t, "status=DRAFT", fields["query"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

func TestGinMiddleware_WarnsOnClientError(t *testing.T) {
	log, logs := observedLogger()

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
}

func TestGinMiddleware_ErrorsOnServerError(t *testing.T) {
	log, logs := observedLogger()

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
}

func TestGinMiddleware_IncludesTenant(t *testing.T) {
	log, logs := observedLogger()
	tenantID := uuid.New()

	r := gin.New()
	r.Use(GinMiddleware(log))
	r.GET("/", func(c *gin.Context) {
		c.Set("tenant_id", tenantID)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, tenantID.String(), logs.All()[0].ContextMap()["tenant_id"])
}

func TestRecovery_RespondsServerError(t *testing.T) {
	log, logs := observedLogger()

	r := gin.New()
	r.Use(Recovery(log))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}

func TestGetGinLogger_FallsBackToNop(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}

func TestGetGinLogger_ReturnsRequestLogger(t *testing.T) {
	log, _ := observedLogger()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set("logger", log)
	assert.Same(t, log, GetGinLogger(c))
}
