package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"relayrpc/message"
)

// RateLimitMiddleware rejects dispatches beyond a token-bucket budget.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallMessage) *message.ResultEnvelope {
			if !limiter.Allow() {
				return message.Fail(&message.ErrorRecord{
					Message:   "rate limit exceeded",
					ClassName: "RateLimitError",
				})
			}
			return next(ctx, req)
		}
	}
}
