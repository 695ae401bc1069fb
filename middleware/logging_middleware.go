package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bunkr-rpc/message"
)

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) (*message.Message, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev = ev.Str("method", string(req.Method)).
				Str("resource", req.Resource).
				Str("id", req.ID).
				Dur("duration", time.Since(start))
			if resp != nil {
				ev = ev.Int("status", resp.Status)
			}
			ev.Msg("call")
			return resp, err
		}
	}
}
