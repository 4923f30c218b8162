// Package sms holds the outbound message gateways. Delivery is
// fire-and-forget from the verification subsystem's point of view: a failed
// dispatch is reported as ErrDeliveryFailed but never invalidates the
// persisted verification record.
package sms

import (
	"context"
	"errors"
)

// ErrDeliveryFailed wraps any provider-side failure, including timeouts at
// the integration boundary.
var ErrDeliveryFailed = errors.New("delivery failed")

// Gateway delivers a rendered verification message to a recipient. Which
// concrete provider backs it is a deployment decision; callers must not
// depend on any provider specifics.
type Gateway interface {
	Send(ctx context.Context, recipient, message string) error
}
