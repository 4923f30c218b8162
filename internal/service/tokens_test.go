package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/store"
)

func TestMintAndConsume(t *testing.T) {
	st := store.NewMemory()
	minter := NewTokenMinter(st, 10*time.Minute, testLogger())
	validator := NewTokenValidator(st, testLogger())
	ctx := context.Background()

	tok, err := minter.Mint(ctx, "+85291234567", models.PurposeRegistration)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tok.Token), 43)
	assert.WithinDuration(t, tok.CreatedAt.Add(10*time.Minute), tok.ExpiresAt, time.Second)

	phone, err := validator.Consume(ctx, tok.Token, models.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "+85291234567", phone)

	_, err = validator.Consume(ctx, tok.Token, models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestConsumePurposeMismatch(t *testing.T) {
	st := store.NewMemory()
	minter := NewTokenMinter(st, 10*time.Minute, testLogger())
	validator := NewTokenValidator(st, testLogger())
	ctx := context.Background()

	tok, err := minter.Mint(ctx, "+85291234567", models.PurposeRegistration)
	require.NoError(t, err)

	_, err = validator.Consume(ctx, tok.Token, models.PurposePhoneUpdate)
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	// The mismatch must not have spent the token.
	phone, err := validator.Consume(ctx, tok.Token, models.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "+85291234567", phone)
}

func TestConsumeExpiredToken(t *testing.T) {
	st := store.NewMemory()
	validator := NewTokenValidator(st, testLogger())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, st.PutToken(ctx, &models.CapabilityToken{
		Token:       "expired-token",
		PhoneNumber: "+85291234567",
		Purpose:     models.PurposeRegistration,
		CreatedAt:   now.Add(-20 * time.Minute),
		ExpiresAt:   now.Add(-10 * time.Minute),
	}))

	_, err := validator.Consume(ctx, "expired-token", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestConsumeUnknownToken(t *testing.T) {
	validator := NewTokenValidator(store.NewMemory(), testLogger())

	_, err := validator.Consume(context.Background(), "no-such-token", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = validator.Consume(context.Background(), "", models.PurposeRegistration)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentConsumeHasSingleWinner(t *testing.T) {
	st := store.NewMemory()
	minter := NewTokenMinter(st, 10*time.Minute, testLogger())
	validator := NewTokenValidator(st, testLogger())
	ctx := context.Background()

	tok, err := minter.Mint(ctx, "+85291234567", models.PurposeRegistration)
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := validator.Consume(ctx, tok.Token, models.PurposeRegistration)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, alreadyUsed int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrAlreadyUsed):
			alreadyUsed++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent consume may win")
	assert.Equal(t, callers-1, alreadyUsed)
}

func TestMintedTokensAreUnique(t *testing.T) {
	st := store.NewMemory()
	minter := NewTokenMinter(st, 10*time.Minute, testLogger())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		tok, err := minter.Mint(ctx, "+85291234567", models.PurposeRegistration)
		require.NoError(t, err)
		require.False(t, seen[tok.Token])
		seen[tok.Token] = true
	}
}
