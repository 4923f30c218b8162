package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/config"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/sms"
	"github.com/tutorlink/tutorlink/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// CodeIssuer creates one-time verification codes. Storing a new record for a
// (phone, purpose) pair replaces the previous one, so at most one code is
// ever verifiable for the pair.
type CodeIssuer struct {
	store       store.Store
	gateways    map[models.Channel]sms.Gateway
	cfg         *config.VerificationConfig
	sendTimeout time.Duration
	logger      *logrus.Logger
}

func NewCodeIssuer(
	st store.Store,
	gateways map[models.Channel]sms.Gateway,
	cfg *config.VerificationConfig,
	sendTimeout time.Duration,
	logger *logrus.Logger,
) *CodeIssuer {
	return &CodeIssuer{
		store:       st,
		gateways:    gateways,
		cfg:         cfg,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Request issues a fresh code for the pair and dispatches it through the
// channel's gateway. The phone number must already be normalized by the
// caller. A delivery failure is logged but does not fail the request: the
// persisted record stays valid and the user may complete verification
// through a side channel or re-request after the cooldown.
func (s *CodeIssuer) Request(ctx context.Context, phoneNumber string, purpose models.Purpose, channel models.Channel) error {
	if !models.ValidCodePurpose(purpose) {
		return ErrInvalidPurpose
	}
	if !models.ValidChannel(channel) {
		return ErrInvalidChannel
	}
	gateway, ok := s.gateways[channel]
	if !ok {
		return ErrInvalidChannel
	}

	prev, err := s.store.GetVerification(ctx, phoneNumber, purpose)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up previous verification: %w", err)
	}
	if prev != nil {
		if since := time.Since(prev.CreatedAt); since < s.cfg.ResendCooldown {
			return &RateLimitedError{RetryAfter: s.cfg.ResendCooldown - since}
		}
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	now := time.Now()
	rec := &models.VerificationRecord{
		ID:          uuid.New().String(),
		PhoneNumber: phoneNumber,
		CodeHash:    string(hash),
		Purpose:     purpose,
		Channel:     channel,
		Attempts:    0,
		MaxAttempts: s.cfg.MaxAttempts,
		IsUsed:      false,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.TTLFor(purpose)),
	}

	if err := s.store.PutVerification(ctx, rec); err != nil {
		return fmt.Errorf("failed to store verification record: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := gateway.Send(sendCtx, phoneNumber, renderMessage(purpose, code, rec.ExpiresAt.Sub(now))); err != nil {
		// Delivery state is decoupled from verification state: the record
		// stays valid even when the dispatch fails.
		s.logger.WithError(err).WithFields(logrus.Fields{
			"phone":   phoneNumber,
			"purpose": purpose,
			"channel": channel,
		}).Error("Failed to deliver verification code")
	}

	return nil
}

func generateCode(length int) (string, error) {
	code := ""
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code += num.String()
	}
	return code, nil
}

func renderMessage(purpose models.Purpose, code string, ttl time.Duration) string {
	action := "verify your phone number"
	switch purpose {
	case models.PurposeRegistration:
		action = "complete your registration"
	case models.PurposeLogin:
		action = "sign in"
	case models.PurposePasswordReset:
		action = "reset your password"
	}
	return fmt.Sprintf("TutorLink: use code %s to %s. It expires in %d minutes.", code, action, int(ttl.Minutes()))
}
