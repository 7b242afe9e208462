// Package redis provides a Redis-backed renewal session store for
// deployments where several workers share certificate orders.
//
// The in-process store that the renewal service uses by default keeps
// manual renewal sessions and the per-order renewal guard in memory, which
// is fine for a single process but lets two workers renew the same order
// concurrently. This package moves both to Redis: sessions are JSON
// documents with a TTL, and the guard is a SET NX lock so only one worker
// can renew an order at a time across the whole fleet.
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	client, err := redis.Connect(ctx, redis.Config{
//		ConnectionURL: "redis://localhost:6379/0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	sessions := redis.NewStore(client)
//	svc := renewal.New(store, registry, renewal.WithSessionStore(sessions))
//
// # Configuration
//
// Connect is configured through the Config struct with environment
// variable mapping:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL,required"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// Both redis:// and rediss:// (TLS) URL schemes are supported. Connection
// establishment retries transient failures and verifies connectivity with
// a ping before returning the client.
//
// # Error Handling
//
// The package defines errors that can be checked with errors.Is():
//
//   - ErrEmptyConnectionURL: no connection URL was provided
//   - ErrFailedToParseConnString: the connection URL is malformed
//   - ErrNotReady: Redis did not answer a ping within the retry budget
//   - ErrHealthcheckFailed: the health check ping failed
//
// Store methods return renewal.ErrSessionNotFound for missing sessions so
// callers handle both store implementations the same way.
package redis
