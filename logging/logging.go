// Package logging adapts a logrus logger into the plain func(string) sinks
// the client and server logging hooks expect. The core only formats bounded
// summaries and hands them over; it never routes logs itself.
package logging

import (
	"github.com/sirupsen/logrus"
)

// CallSink returns a sink for completed-call summaries.
func CallSink(log logrus.FieldLogger) func(string) {
	return func(msg string) {
		log.Info(msg)
	}
}

// ExceptionSink returns a sink for failure summaries.
func ExceptionSink(log logrus.FieldLogger) func(string) {
	return func(msg string) {
		log.Error(msg)
	}
}
