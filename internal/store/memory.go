package store

import (
	"context"
	"sync"

	"github.com/tutorlink/tutorlink/internal/models"
)

// Memory is a mutex-guarded in-process Store used by tests and local
// development. It applies the same expiry and conditional-use semantics as
// the durable backends.
type Memory struct {
	mu            sync.Mutex
	verifications map[string]*models.VerificationRecord
	tokens        map[string]*models.CapabilityToken
}

func NewMemory() *Memory {
	return &Memory{
		verifications: make(map[string]*models.VerificationRecord),
		tokens:        make(map[string]*models.CapabilityToken),
	}
}

func (s *Memory) PutVerification(ctx context.Context, rec *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.verifications[verificationKey(rec.PhoneNumber, rec.Purpose)] = &cp
	return nil
}

func (s *Memory) GetVerification(ctx context.Context, phone string, purpose models.Purpose) (*models.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.verifications[verificationKey(phone, purpose)]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *rec
	return &cp, nil
}

func (s *Memory) IncrementVerificationAttempts(ctx context.Context, phone string, purpose models.Purpose) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.verifications[verificationKey(phone, purpose)]
	if !ok {
		return 0, ErrNotFound
	}

	rec.Attempts++
	return rec.Attempts, nil
}

func (s *Memory) ConsumeVerification(ctx context.Context, phone string, purpose models.Purpose) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.verifications[verificationKey(phone, purpose)]
	if !ok || rec.IsUsed {
		return false, nil
	}

	rec.IsUsed = true
	return true, nil
}

func (s *Memory) PutToken(ctx context.Context, tok *models.CapabilityToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tok
	s.tokens[tok.Token] = &cp
	return nil
}

func (s *Memory) GetToken(ctx context.Context, token string) (*models.CapabilityToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *tok
	return &cp, nil
}

func (s *Memory) ConsumeToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok || tok.IsUsed {
		return false, nil
	}

	tok.IsUsed = true
	return true, nil
}

func (s *Memory) Close() error {
	return nil
}
