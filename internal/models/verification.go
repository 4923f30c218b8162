package models

import "time"

// Purpose scopes a verification code or capability token to the single
// privileged action it may authorize.
type Purpose string

const (
	PurposeRegistration      Purpose = "registration"
	PurposeLogin             Purpose = "login"
	PurposePasswordReset     Purpose = "password_reset"
	PurposePhoneVerification Purpose = "phone_verification"

	// PurposePhoneUpdate is a token-only purpose: a code verified with
	// PurposePhoneVerification mints a token scoped to PurposePhoneUpdate.
	PurposePhoneUpdate Purpose = "phone_update"
)

// ValidCodePurpose reports whether p is accepted on the code issuance and
// verification paths.
func ValidCodePurpose(p Purpose) bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset, PurposePhoneVerification:
		return true
	}
	return false
}

// TokenPurpose maps a verified code's purpose to the purpose of the token
// minted for it.
func TokenPurpose(p Purpose) Purpose {
	if p == PurposePhoneVerification {
		return PurposePhoneUpdate
	}
	return p
}

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func ValidChannel(c Channel) bool {
	return c == ChannelSMS || c == ChannelEmail
}

// VerificationRecord is the stored state of one issued code. The plain code
// is never persisted, only its bcrypt hash.
type VerificationRecord struct {
	ID          string    `json:"id" dynamodbav:"id"`
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	CodeHash    string    `json:"code_hash" dynamodbav:"code_hash"`
	Purpose     Purpose   `json:"purpose" dynamodbav:"purpose"`
	Channel     Channel   `json:"channel" dynamodbav:"channel"`
	Attempts    int       `json:"attempts" dynamodbav:"attempts"`
	MaxAttempts int       `json:"max_attempts" dynamodbav:"max_attempts"`
	IsUsed      bool      `json:"is_used" dynamodbav:"is_used"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

// Expired reports whether the record is past its TTL. Read paths apply this
// even when the backing store prunes by TTL, since store expiry may lag.
func (r *VerificationRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Exhausted reports whether the attempt budget is spent.
func (r *VerificationRecord) Exhausted() bool {
	return r.Attempts >= r.MaxAttempts
}
