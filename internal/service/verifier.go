package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// CodeVerifier checks submitted codes against the active record for a
// (phone, purpose) pair and mints a capability token on success.
type CodeVerifier struct {
	store  store.Store
	minter *TokenMinter
	logger *logrus.Logger
}

func NewCodeVerifier(st store.Store, minter *TokenMinter, logger *logrus.Logger) *CodeVerifier {
	return &CodeVerifier{
		store:  st,
		minter: minter,
		logger: logger,
	}
}

// Verify validates a submitted code. A mismatch burns one attempt; spending
// the whole budget permanently voids the record (a new Request is required),
// which bounds brute-force guessing to MaxAttempts tries per issuance. On a
// match the record is consumed atomically, so of two racing calls only one
// can reach the mint.
func (s *CodeVerifier) Verify(ctx context.Context, phoneNumber, submittedCode string, purpose models.Purpose) (*models.CapabilityToken, error) {
	if !models.ValidCodePurpose(purpose) {
		return nil, ErrInvalidPurpose
	}

	rec, err := s.store.GetVerification(ctx, phoneNumber, purpose)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.IsUsed {
		return nil, ErrNotFound
	}
	if rec.Expired(time.Now()) {
		return nil, ErrExpired
	}
	if rec.Exhausted() {
		return nil, ErrLimitExceeded
	}

	// bcrypt comparison is constant-time with respect to the submitted
	// code, so mismatches leak no positional information.
	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(submittedCode)) != nil {
		attempts, err := s.store.IncrementVerificationAttempts(ctx, phoneNumber, purpose)
		if err != nil {
			return nil, err
		}

		remaining := rec.MaxAttempts - attempts
		if remaining < 0 {
			remaining = 0
		}

		s.logger.WithFields(logrus.Fields{
			"phone":    phoneNumber,
			"purpose":  purpose,
			"attempts": attempts,
		}).Warn("Verification code mismatch")

		return nil, &InvalidCodeError{AttemptsRemaining: remaining}
	}

	won, err := s.store.ConsumeVerification(ctx, phoneNumber, purpose)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent call consumed the record first; fail closed.
		return nil, ErrNotFound
	}

	return s.minter.Mint(ctx, phoneNumber, models.TokenPurpose(purpose))
}
