package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bunkr-rpc/message"
)

// RetryMiddleware re-issues a call when retryable(err) holds, with exponential backoff.
// Every attempt is a fresh request with a new correlation id.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, retryable func(error) bool, logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) (*message.Message, error) {
			template := req.Clone()
			resp, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(err) {
					return resp, err
				}
				logger.Debug().Err(err).Int("attempt", i+1).Str("resource", req.Resource).Msg("retrying call")

				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				resp, err = next(ctx, template.Clone())
			}
			return resp, err
		}
	}
}
