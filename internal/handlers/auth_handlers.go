package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/repository"
	"github.com/tutorlink/tutorlink/internal/service"
)

// UserStore is the slice of the profile repository the verification flows
// touch: creating a profile at registration and moving one to a new phone
// number.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	ChangePhone(ctx context.Context, oldPhone, newPhone string) (*models.User, error)
}

type AuthHandlers struct {
	issuer     *service.CodeIssuer
	verifier   *service.CodeVerifier
	validator  *service.TokenValidator
	jwtService *service.JWTService
	users      UserStore
	logger     *logrus.Logger
}

func NewAuthHandlers(
	issuer *service.CodeIssuer,
	verifier *service.CodeVerifier,
	validator *service.TokenValidator,
	jwtService *service.JWTService,
	users UserStore,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		issuer:     issuer,
		verifier:   verifier,
		validator:  validator,
		jwtService: jwtService,
		users:      users,
		logger:     logger,
	}
}

type RequestCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose"`
	Channel     string `json:"channel,omitempty"`
}

type RequestCodeResponse struct {
	Status string `json:"status"`
}

type VerifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Purpose     string `json:"purpose"`
}

type VerifyCodeResponse struct {
	Token string `json:"token"`
}

type RegisterRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type RegisterResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        UserResponse `json:"user"`
}

type UserResponse struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
}

// RequestVerificationCode handles POST /auth/request-verification-code.
func (h *AuthHandlers) RequestVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req RequestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: "Invalid request body"})
		return
	}

	phoneNumber, ok := normalizePhoneNumber(req.PhoneNumber)
	if !ok {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_PHONE", Message: "Invalid phone number format"})
		return
	}

	channel := models.Channel(req.Channel)
	if req.Channel == "" {
		channel = models.ChannelSMS
	}

	err := h.issuer.Request(r.Context(), phoneNumber, models.Purpose(req.Purpose), channel)
	if err != nil {
		var rateLimited *service.RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			respondWithError(w, http.StatusTooManyRequests, ErrorDetail{
				Code:              "RATE_LIMITED",
				Message:           "Verification code requested too recently",
				RetryAfterSeconds: int(rateLimited.RetryAfter.Seconds()),
			})
		case errors.Is(err, service.ErrInvalidPurpose), errors.Is(err, service.ErrInvalidChannel):
			respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_INPUT", Message: "Unknown purpose or channel"})
		default:
			h.logger.WithError(err).Error("Failed to issue verification code")
			respondWithError(w, http.StatusInternalServerError, ErrorDetail{Code: "ISSUE_FAILED", Message: "Failed to issue verification code"})
		}
		return
	}

	respondWithJSON(w, http.StatusOK, RequestCodeResponse{Status: "sent"})
}

// VerifyCode handles POST /auth/verify-code.
func (h *AuthHandlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: "Invalid request body"})
		return
	}

	phoneNumber, ok := normalizePhoneNumber(req.PhoneNumber)
	if !ok {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_PHONE", Message: "Invalid phone number format"})
		return
	}

	code := strings.TrimSpace(req.Code)
	if len(code) < 4 || len(code) > 8 {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_CODE", Message: "Invalid code format"})
		return
	}

	token, err := h.verifier.Verify(r.Context(), phoneNumber, code, models.Purpose(req.Purpose))
	if err != nil {
		var invalidCode *service.InvalidCodeError
		switch {
		case errors.As(err, &invalidCode):
			respondWithError(w, http.StatusBadRequest, ErrorDetail{
				Code:              "INVALID_CODE",
				Message:           "Code is incorrect",
				AttemptsRemaining: &invalidCode.AttemptsRemaining,
			})
		case errors.Is(err, service.ErrNotFound):
			respondWithError(w, http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: "No active verification for this phone number"})
		case errors.Is(err, service.ErrExpired):
			respondWithError(w, http.StatusGone, ErrorDetail{Code: "EXPIRED", Message: "Code expired, request a new one"})
		case errors.Is(err, service.ErrLimitExceeded):
			respondWithError(w, http.StatusLocked, ErrorDetail{Code: "LIMIT_EXCEEDED", Message: "Attempt limit reached, request a new code"})
		case errors.Is(err, service.ErrInvalidPurpose):
			respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_INPUT", Message: "Unknown purpose"})
		default:
			h.logger.WithError(err).Error("Failed to verify code")
			respondWithError(w, http.StatusInternalServerError, ErrorDetail{Code: "VERIFY_FAILED", Message: "Failed to verify code"})
		}
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyCodeResponse{Token: token.Token})
}

// Register handles POST /auth/register: it exchanges a registration
// capability token for a new profile and an initial access token.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: "Invalid request body"})
		return
	}

	phoneNumber, err := h.validator.Consume(r.Context(), req.Token, models.PurposeRegistration)
	if err != nil {
		respondWithTokenError(w, err)
		return
	}

	user := &models.User{
		PhoneNumber: phoneNumber,
		Name:        strings.TrimSpace(req.Name),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			respondWithError(w, http.StatusConflict, ErrorDetail{Code: "ALREADY_REGISTERED", Message: "An account already exists for this phone number"})
			return
		}
		h.logger.WithError(err).Error("Failed to create user")
		respondWithError(w, http.StatusInternalServerError, ErrorDetail{Code: "REGISTRATION_FAILED", Message: "Failed to create account"})
		return
	}

	accessToken, expiresIn, err := h.jwtService.GenerateAccessToken(phoneNumber)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate access token")
		respondWithError(w, http.StatusInternalServerError, ErrorDetail{Code: "TOKEN_GENERATION_FAILED", Message: "Failed to generate access token"})
		return
	}

	respondWithJSON(w, http.StatusCreated, RegisterResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		User: UserResponse{
			PhoneNumber: user.PhoneNumber,
			Name:        user.Name,
		},
	})
}
