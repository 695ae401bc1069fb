package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bunkr-rpc/message"
)

var ErrTimeout = errors.New("request timed out")

// TimeOutMiddleware stops waiting for a response after timeout. The request itself stays
// outstanding: a late response still completes its correlation entry.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) (*message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := next(ctx, req)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s %s after %s", ErrTimeout, req.Method, req.Resource, timeout)
			}
			return resp, err
		}
	}
}
