package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/store"
)

// TokenMinter creates capability tokens after a successful verification.
type TokenMinter struct {
	store  store.Store
	ttl    time.Duration
	logger *logrus.Logger
}

func NewTokenMinter(st store.Store, ttl time.Duration, logger *logrus.Logger) *TokenMinter {
	return &TokenMinter{
		store:  st,
		ttl:    ttl,
		logger: logger,
	}
}

// Mint issues an opaque 256-bit token bound to the verified phone number and
// purpose.
func (m *TokenMinter) Mint(ctx context.Context, phoneNumber string, purpose models.Purpose) (*models.CapabilityToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now()
	tok := &models.CapabilityToken{
		Token:       base64.RawURLEncoding.EncodeToString(raw),
		PhoneNumber: phoneNumber,
		Purpose:     purpose,
		IsUsed:      false,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}

	if err := m.store.PutToken(ctx, tok); err != nil {
		return nil, fmt.Errorf("failed to store capability token: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"phone":   phoneNumber,
		"purpose": purpose,
	}).Info("Capability token minted")

	return tok, nil
}

// TokenValidator consumes capability tokens on behalf of the privileged
// handlers. A successful Consume proves the phone number was verified for
// this specific action, once.
type TokenValidator struct {
	store  store.Store
	logger *logrus.Logger
}

func NewTokenValidator(st store.Store, logger *logrus.Logger) *TokenValidator {
	return &TokenValidator{
		store:  st,
		logger: logger,
	}
}

// Consume validates the token against the expected purpose and atomically
// marks it used, returning the verified phone number. The early checks are
// advisory; only the store's conditional update decides the winner when
// calls race, and the loser gets ErrAlreadyUsed.
func (v *TokenValidator) Consume(ctx context.Context, token string, expectedPurpose models.Purpose) (string, error) {
	if token == "" {
		return "", ErrNotFound
	}

	tok, err := v.store.GetToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if tok.Purpose != expectedPurpose {
		return "", ErrPurposeMismatch
	}
	if tok.Expired(time.Now()) {
		return "", ErrExpired
	}
	if tok.IsUsed {
		return "", ErrAlreadyUsed
	}

	won, err := v.store.ConsumeToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !won {
		return "", ErrAlreadyUsed
	}

	v.logger.WithFields(logrus.Fields{
		"phone":   tok.PhoneNumber,
		"purpose": tok.Purpose,
	}).Info("Capability token consumed")

	return tok.PhoneNumber, nil
}
