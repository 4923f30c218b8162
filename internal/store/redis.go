package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
)

// consumeScript flips is_used from 0 to 1 in a single round trip. Running
// it as a script is what makes the transition atomic under concurrent
// callers; a missing key (HGET returns false) loses like a used one.
var consumeScript = redis.NewScript(`
local used = redis.call("HGET", KEYS[1], "is_used")
if used == "0" then
	redis.call("HSET", KEYS[1], "is_used", "1")
	return 1
end
return 0
`)

type Redis struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedis(client *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
	}
}

func verificationKey(phone string, purpose models.Purpose) string {
	return fmt.Sprintf("verify:%s:%s", purpose, phone)
}

func tokenKey(token string) string {
	return fmt.Sprintf("captoken:%s", token)
}

func (s *Redis) PutVerification(ctx context.Context, rec *models.VerificationRecord) error {
	key := verificationKey(rec.PhoneNumber, rec.Purpose)
	fields := map[string]interface{}{
		"id":           rec.ID,
		"phone_number": rec.PhoneNumber,
		"code_hash":    rec.CodeHash,
		"purpose":      string(rec.Purpose),
		"channel":      string(rec.Channel),
		"attempts":     rec.Attempts,
		"max_attempts": rec.MaxAttempts,
		"is_used":      boolField(rec.IsUsed),
		"created_at":   rec.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":   rec.ExpiresAt.Format(time.RFC3339Nano),
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.ExpireAt(ctx, key, rec.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to store verification record in Redis")
		return fmt.Errorf("failed to store verification record: %w", err)
	}

	return nil
}

func (s *Redis) GetVerification(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationRecord, error) {
	fields, err := s.client.HGetAll(ctx, verificationKey(phone, purpose)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get verification record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return parseVerification(fields)
}

func (s *Redis) IncrementVerificationAttempts(ctx context.Context, phone string, purpose models.Purpose) (int, error) {
	n, err := s.client.HIncrBy(ctx, verificationKey(phone, purpose), "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}
	return int(n), nil
}

func (s *Redis) ConsumeVerification(ctx context.Context, phone string, purpose models.Purpose) (bool, error) {
	return s.runConsume(ctx, verificationKey(phone, purpose))
}

func (s *Redis) PutToken(ctx context.Context, tok *models.CapabilityToken) error {
	key := tokenKey(tok.Token)
	fields := map[string]interface{}{
		"token":        tok.Token,
		"phone_number": tok.PhoneNumber,
		"purpose":      string(tok.Purpose),
		"is_used":      boolField(tok.IsUsed),
		"created_at":   tok.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":   tok.ExpiresAt.Format(time.RFC3339Nano),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ExpireAt(ctx, key, tok.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to store capability token in Redis")
		return fmt.Errorf("failed to store capability token: %w", err)
	}

	return nil
}

func (s *Redis) GetToken(ctx context.Context, token string) (*models.CapabilityToken, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get capability token: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	return parseToken(fields)
}

func (s *Redis) ConsumeToken(ctx context.Context, token string) (bool, error) {
	return s.runConsume(ctx, tokenKey(token))
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) runConsume(ctx context.Context, key string) (bool, error) {
	won, err := consumeScript.Run(ctx, s.client, []string{key}).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume record: %w", err)
	}
	return won == 1, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseVerification(fields map[string]string) (*models.VerificationRecord, error) {
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse attempts: %w", err)
	}
	maxAttempts, err := strconv.Atoi(fields["max_attempts"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse max_attempts: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &models.VerificationRecord{
		ID:          fields["id"],
		PhoneNumber: fields["phone_number"],
		CodeHash:    fields["code_hash"],
		Purpose:     models.Purpose(fields["purpose"]),
		Channel:     models.Channel(fields["channel"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		IsUsed:      fields["is_used"] == "1",
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}

func parseToken(fields map[string]string) (*models.CapabilityToken, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}

	return &models.CapabilityToken{
		Token:       fields["token"],
		PhoneNumber: fields["phone_number"],
		Purpose:     models.Purpose(fields["purpose"]),
		IsUsed:      fields["is_used"] == "1",
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}, nil
}
