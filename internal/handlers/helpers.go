package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/tutorlink/tutorlink/internal/service"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, detail ErrorDetail) {
	respondWithJSON(w, status, ErrorResponse{Error: detail})
}

// respondWithTokenError maps capability-token failures onto 401 with a
// distinct reason code; the client treats all of them as "verify again".
func respondWithTokenError(w http.ResponseWriter, err error) {
	detail := ErrorDetail{Code: "TOKEN_INVALID", Message: "Verification token rejected"}
	switch {
	case errors.Is(err, service.ErrNotFound):
		detail = ErrorDetail{Code: "TOKEN_NOT_FOUND", Message: "Unknown verification token"}
	case errors.Is(err, service.ErrExpired):
		detail = ErrorDetail{Code: "TOKEN_EXPIRED", Message: "Verification token expired"}
	case errors.Is(err, service.ErrAlreadyUsed):
		detail = ErrorDetail{Code: "TOKEN_ALREADY_USED", Message: "Verification token was already used"}
	case errors.Is(err, service.ErrPurposeMismatch):
		detail = ErrorDetail{Code: "TOKEN_PURPOSE_MISMATCH", Message: "Verification token was issued for a different action"}
	}
	respondWithError(w, http.StatusUnauthorized, detail)
}

var phoneNumberPattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// normalizePhoneNumber trims and prefixes "+", then validates E.164.
func normalizePhoneNumber(phone string) (string, bool) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", false
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone, phoneNumberPattern.MatchString(phone)
}
