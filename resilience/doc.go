// Package resilience provides exponential backoff and retry.
//
// The consumer's HTTP connector uses Backoff to space reconnection attempts,
// and the Redis event log wraps its writes in Retry:
//
//	id, err := resilience.Retry(ctx, cfg, func() (string, error) {
//	    return client.XAdd(ctx, args).Result()
//	})
//
// A non-retryable *errors.AppError stops Retry immediately.
package resilience
