package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"relayrpc/message"
)

// LoggingMiddleware reports every dispatch with its duration. This is the
// server's own diagnostic trail, independent of the bounded-summary
// call/exception hooks.
func LoggingMiddleware(log logrus.FieldLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.CallMessage) *message.ResultEnvelope {
			start := time.Now()
			env := next(ctx, req)
			entry := log.WithFields(logrus.Fields{
				"method":   req.Method,
				"duration": time.Since(start),
			})
			if env.Err != nil {
				entry.WithField("error", env.Err.Message).Error("dispatch failed")
			} else {
				entry.Debug("dispatch done")
			}
			return env
		}
	}
}
