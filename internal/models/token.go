package models

import "time"

// CapabilityToken is a short-lived, single-use credential minted after a
// successful code verification. It is the only artifact downstream
// privileged handlers may trust; the verification record behind it is spent
// the moment the token is minted.
type CapabilityToken struct {
	Token       string    `json:"token" dynamodbav:"token"`
	PhoneNumber string    `json:"phone_number" dynamodbav:"phone_number"`
	Purpose     Purpose   `json:"purpose" dynamodbav:"purpose"`
	IsUsed      bool      `json:"is_used" dynamodbav:"is_used"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

func (t *CapabilityToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
