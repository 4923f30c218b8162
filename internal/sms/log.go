package sms

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Log is a dry-run gateway for development and tests: it logs the message
// instead of dispatching it, so codes can be read from the server log.
type Log struct {
	logger *logrus.Logger
}

func NewLog(logger *logrus.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, recipient, message string) error {
	l.logger.WithFields(logrus.Fields{
		"recipient": recipient,
		"message":   message,
	}).Info("Dry-run message dispatch")
	return nil
}
