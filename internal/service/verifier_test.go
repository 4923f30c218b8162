package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type verifyFixture struct {
	store    *store.Memory
	gateway  *fakeGateway
	issuer   *CodeIssuer
	verifier *CodeVerifier
}

func newVerifyFixture(t *testing.T, cooldown time.Duration) *verifyFixture {
	t.Helper()
	st := store.NewMemory()
	gw := &fakeGateway{}
	minter := NewTokenMinter(st, 10*time.Minute, testLogger())
	return &verifyFixture{
		store:    st,
		gateway:  gw,
		issuer:   newIssuer(st, gw, cooldown),
		verifier: NewCodeVerifier(st, minter, testLogger()),
	}
}

func (f *verifyFixture) seedRecord(t *testing.T, phone, code string, purpose models.Purpose, mutate func(*models.VerificationRecord)) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now()
	rec := &models.VerificationRecord{
		ID:          "test-record",
		PhoneNumber: phone,
		CodeHash:    string(hash),
		Purpose:     purpose,
		Channel:     models.ChannelSMS,
		MaxAttempts: 3,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, f.store.PutVerification(context.Background(), rec))
}

func TestVerifyCorrectCodeMintsToken(t *testing.T) {
	f := newVerifyFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.issuer.Request(ctx, "+85291234567", models.PurposeRegistration, models.ChannelSMS))
	code := f.gateway.lastCode(t)

	token, err := f.verifier.Verify(ctx, "+85291234567", code, models.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "+85291234567", token.PhoneNumber)
	assert.Equal(t, models.PurposeRegistration, token.Purpose)
	assert.GreaterOrEqual(t, len(token.Token), 43, "token must carry at least 256 bits")

	// The record is spent: a second submission of the same code fails.
	_, err = f.verifier.Verify(ctx, "+85291234567", code, models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyWrongCodeBurnsAttempts(t *testing.T) {
	f := newVerifyFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.issuer.Request(ctx, "+85291234567", models.PurposeRegistration, models.ChannelSMS))

	for _, want := range []int{2, 1, 0} {
		_, err := f.verifier.Verify(ctx, "+85291234567", "000000", models.PurposeRegistration)
		var invalidCode *InvalidCodeError
		require.ErrorAs(t, err, &invalidCode)
		assert.Equal(t, want, invalidCode.AttemptsRemaining)
	}
}

func TestAttemptExhaustionIsTerminal(t *testing.T) {
	f := newVerifyFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.issuer.Request(ctx, "+85291234567", models.PurposeRegistration, models.ChannelSMS))
	code := f.gateway.lastCode(t)

	for i := 0; i < 3; i++ {
		_, err := f.verifier.Verify(ctx, "+85291234567", "000000", models.PurposeRegistration)
		require.Error(t, err)
	}

	// Even the correct code no longer verifies against the voided record.
	_, err := f.verifier.Verify(ctx, "+85291234567", code, models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestReissueResetsAttemptsAndInvalidatesOldCode(t *testing.T) {
	f := newVerifyFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.issuer.Request(ctx, "+85291234567", models.PurposeRegistration, models.ChannelSMS))
	oldCode := f.gateway.lastCode(t)

	for i := 0; i < 3; i++ {
		_, err := f.verifier.Verify(ctx, "+85291234567", "000000", models.PurposeRegistration)
		require.Error(t, err)
	}

	require.NoError(t, f.issuer.Request(ctx, "+85291234567", models.PurposeRegistration, models.ChannelSMS))
	newCode := f.gateway.lastCode(t)

	if oldCode != newCode {
		_, err := f.verifier.Verify(ctx, "+85291234567", oldCode, models.PurposeRegistration)
		require.Error(t, err, "old code must not verify after reissue")
		var invalidCode *InvalidCodeError
		require.ErrorAs(t, err, &invalidCode)
		assert.Equal(t, 2, invalidCode.AttemptsRemaining, "fresh record starts with a full attempt budget")
	}

	token, err := f.verifier.Verify(ctx, "+85291234567", newCode, models.PurposeRegistration)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
}

func TestVerifyExpiredRecord(t *testing.T) {
	f := newVerifyFixture(t, 0)
	f.seedRecord(t, "+85291234567", "123456", models.PurposeRegistration, func(rec *models.VerificationRecord) {
		rec.CreatedAt = time.Now().Add(-11 * time.Minute)
		rec.ExpiresAt = time.Now().Add(-time.Minute)
	})

	_, err := f.verifier.Verify(context.Background(), "+85291234567", "123456", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyUsedRecordFailsClosed(t *testing.T) {
	f := newVerifyFixture(t, 0)
	f.seedRecord(t, "+85291234567", "123456", models.PurposeRegistration, func(rec *models.VerificationRecord) {
		rec.IsUsed = true
	})

	_, err := f.verifier.Verify(context.Background(), "+85291234567", "123456", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyWithoutRequest(t *testing.T) {
	f := newVerifyFixture(t, 0)

	_, err := f.verifier.Verify(context.Background(), "+85291234567", "123456", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyPhoneUpdateTokenPurpose(t *testing.T) {
	f := newVerifyFixture(t, 0)
	ctx := context.Background()

	require.NoError(t, f.issuer.Request(ctx, "+85299887766", models.PurposePhoneVerification, models.ChannelSMS))
	code := f.gateway.lastCode(t)

	token, err := f.verifier.Verify(ctx, "+85299887766", code, models.PurposePhoneVerification)
	require.NoError(t, err)
	assert.Equal(t, models.PurposePhoneUpdate, token.Purpose)
}
