package middleware

import (
	"context"
	"time"

	"relayrpc/message"
)

// TimeoutMiddleware bounds a single dispatch. The callee goroutine is not
// interrupted — it runs to completion — but the caller gets a timeout
// envelope once the budget expires.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallMessage) *message.ResultEnvelope {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.ResultEnvelope, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case env := <-done:
				return env
			case <-ctx.Done():
				return message.Fail(&message.ErrorRecord{
					Message:   "dispatch timed out",
					ClassName: "TimeoutError",
				})
			}
		}
	}
}
