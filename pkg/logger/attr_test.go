package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certflow/certflow/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
}

func TestIdentifierAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "order_id", logger.OrderID("o1").Key)
	assert.True(t, logger.OrderID("").Equal(slog.Attr{}))

	assert.Equal(t, "domain", logger.Domain("example.com").Key)
	assert.True(t, logger.Domain("").Equal(slog.Attr{}))

	assert.Equal(t, "provider", logger.Provider("cloudflare").Key)
	assert.True(t, logger.Provider("").Equal(slog.Attr{}))

	assert.Equal(t, "domains", logger.Domains([]string{"a", "b"}).Key)
	assert.True(t, logger.Domains(nil).Equal(slog.Attr{}))
}

func TestNumericAttrs(t *testing.T) {
	t.Parallel()

	attr := logger.Attempt(3)
	assert.Equal(t, "attempt", attr.Key)
	assert.Equal(t, int64(3), attr.Value.Int64())

	attr = logger.Count("renewed", 7)
	assert.Equal(t, "renewed", attr.Key)
	assert.Equal(t, int64(7), attr.Value.Int64())

	attr = logger.Duration(time.Second)
	assert.Equal(t, time.Second, attr.Value.Duration())

	attr = logger.Elapsed(time.Now().Add(-time.Minute))
	assert.GreaterOrEqual(t, attr.Value.Duration(), 59*time.Second)
}
