package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redissession "github.com/certflow/certflow/integration/session/redis"
)

func TestConnectRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	_, err := redissession.Connect(context.Background(), redissession.Config{})
	assert.ErrorIs(t, err, redissession.ErrEmptyConnectionURL)
}

func TestConnectRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	_, err := redissession.Connect(context.Background(), redissession.Config{
		ConnectionURL: "http://localhost:6379",
	})
	assert.ErrorIs(t, err, redissession.ErrFailedToParseConnString)
}

func TestConnectGivesUpWhenRedisUnreachable(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := redissession.Connect(context.Background(), redissession.Config{
		// Reserved TEST-NET-1 address, nothing answers there.
		ConnectionURL:  "redis://192.0.2.1:6379/0",
		RetryAttempts:  1,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: 200 * time.Millisecond,
	})
	require.ErrorIs(t, err, redissession.ErrNotReady)
	assert.Less(t, time.Since(start), 5*time.Second)
}
