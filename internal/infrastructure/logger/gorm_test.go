package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), logs
}

func TestGormLogger_TraceQuery(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Info)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM invoices", 3
	}, nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.DebugLevel, entry.Level)
	assert.Equal(t, "SELECT * FROM invoices", entry.ContextMap()["sql"])
	assert.EqualValues(t, 3, entry.ContextMap()["rows"])
}

func TestGormLogger_TraceError(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO invoices", 0
	}, assert.AnError)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sql error", logs.All()[0].Message)
}

func TestGormLogger_RecordNotFoundSuppressed(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Error)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM invoices WHERE id = $1", 0
	}, gorm.ErrRecordNotFound)

	assert.Equal(t, 0, logs.Len())
}

func TestGormLogger_RecordNotFoundLoggedWhenEnabled(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Error, WithRecordNotFoundLogging())

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM invoices WHERE id = $1", 0
	}, gorm.ErrRecordNotFound)

	assert.Equal(t, 1, logs.Len())
}

func TestGormLogger_SlowQueryWarns(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Warn, WithSlowThreshold(time.Nanosecond))

	gl.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM invoices", 100
	}, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
}

func TestGormLogger_SilentLogsNothing(t *testing.T) {
	gl, logs := newTestGormLogger(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 1
	}, assert.AnError)
	gl.Error(context.Background(), "error %s", "message")

	assert.Equal(t, 0, logs.Len())
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newTestGormLogger(gormlogger.Silent)

	elevated := gl.LogMode(gormlogger.Info)
	assert.NotSame(t, gl, elevated)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
