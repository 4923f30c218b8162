// Package store provides durable keyed storage for verification records and
// capability tokens. Backends must expire records past their TTL and must
// implement the conditional consume operations atomically: when two callers
// race to flip is_used on the same key, exactly one wins.
package store

import (
	"context"
	"errors"

	"github.com/tutorlink/tutorlink/internal/models"
)

// ErrNotFound is returned when no record exists for the key. Backends prune
// by TTL, so a record past its expiry may surface either as ErrNotFound
// (already purged) or as a raw record the caller must check against its
// expires_at; correctness never depends on purge timing.
var ErrNotFound = errors.New("store: record not found")

type Store interface {
	// PutVerification stores rec keyed by (phone, purpose), replacing any
	// previous record for the pair. Replacement is what keeps at most one
	// code verifiable per pair at a time.
	PutVerification(ctx context.Context, rec *models.VerificationRecord) error

	// GetVerification returns the current record for the pair, used or not.
	// Callers must apply the expiry check themselves; see ErrNotFound.
	GetVerification(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationRecord, error)

	// IncrementVerificationAttempts bumps the attempt counter and returns
	// the new value.
	IncrementVerificationAttempts(ctx context.Context, phone string, purpose models.Purpose) (int, error)

	// ConsumeVerification atomically transitions is_used from false to true.
	// Returns true iff this caller performed the transition.
	ConsumeVerification(ctx context.Context, phone string, purpose models.Purpose) (bool, error)

	PutToken(ctx context.Context, tok *models.CapabilityToken) error
	GetToken(ctx context.Context, token string) (*models.CapabilityToken, error)

	// ConsumeToken atomically transitions is_used from false to true.
	// Returns true iff this caller performed the transition.
	ConsumeToken(ctx context.Context, token string) (bool, error)

	Close() error
}
