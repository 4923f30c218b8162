package sms

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// SMTP delivers verification codes over email for records issued on the
// email channel.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
	logger *logrus.Logger
}

func NewSMTP(host string, port int, username, password, from string, logger *logrus.Logger) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		logger: logger,
	}
}

func (s *SMTP) Send(ctx context.Context, recipient, message string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", "Your verification code")
	msg.SetBody("text/plain", message)

	// gomail has no context support, so honor cancellation by running the
	// dial-and-send in a goroutine and abandoning it on deadline.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.WithError(err).Error("SMTP delivery failed")
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
	}

	s.logger.WithField("recipient", recipient).Info("Email dispatched")
	return nil
}
