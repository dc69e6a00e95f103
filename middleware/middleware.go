// Package middleware wraps the server's dispatch path. Middlewares apply to
// every dispatch, blocking or background, before the result is framed.
package middleware

import (
	"context"

	"relayrpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.CallMessage) *message.ResultEnvelope

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, onion style:
// Chain(A, B, C)(handler) → A(B(C(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
