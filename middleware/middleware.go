// Package middleware wraps client calls in an onion of cross-cutting behavior.
//
//	Chain(A, B, C)(call) → A(B(C(call)))
//	Execution order: A.before → B.before → C.before → call → C.after → B.after → A.after
package middleware

import (
	"context"

	"bunkr-rpc/message"
)

// HandlerFunc performs one logical call and returns its response.
type HandlerFunc func(ctx context.Context, req *message.Message) (*message.Message, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
