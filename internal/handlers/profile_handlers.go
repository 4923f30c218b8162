package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/repository"
	"github.com/tutorlink/tutorlink/internal/service"
)

type ProfileHandlers struct {
	validator *service.TokenValidator
	users     UserStore
	logger    *logrus.Logger
}

func NewProfileHandlers(validator *service.TokenValidator, users UserStore, logger *logrus.Logger) *ProfileHandlers {
	return &ProfileHandlers{
		validator: validator,
		users:     users,
		logger:    logger,
	}
}

type ChangePhoneRequest struct {
	Token string `json:"token"`
}

type ChangePhoneResponse struct {
	PhoneNumber string `json:"phone_number"`
}

// ChangePhone handles PUT /profile/phone. The caller is authenticated by
// the bearer middleware; the capability token carries the new, verified
// phone number and authorizes exactly this one change.
func (h *ProfileHandlers) ChangePhone(w http.ResponseWriter, r *http.Request) {
	currentPhone, ok := r.Context().Value("phone").(string)
	if !ok || currentPhone == "" {
		respondWithError(w, http.StatusUnauthorized, ErrorDetail{Code: "UNAUTHORIZED", Message: "Missing authenticated phone number"})
		return
	}

	var req ChangePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: "Invalid request body"})
		return
	}

	newPhone, err := h.validator.Consume(r.Context(), req.Token, models.PurposePhoneUpdate)
	if err != nil {
		respondWithTokenError(w, err)
		return
	}

	if newPhone == currentPhone {
		respondWithJSON(w, http.StatusOK, ChangePhoneResponse{PhoneNumber: currentPhone})
		return
	}

	user, err := h.users.ChangePhone(r.Context(), currentPhone, newPhone)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			respondWithError(w, http.StatusConflict, ErrorDetail{Code: "PHONE_IN_USE", Message: "An account already exists for this phone number"})
			return
		}
		h.logger.WithError(err).Error("Failed to change phone number")
		respondWithError(w, http.StatusInternalServerError, ErrorDetail{Code: "PHONE_CHANGE_FAILED", Message: "Failed to change phone number"})
		return
	}

	respondWithJSON(w, http.StatusOK, ChangePhoneResponse{PhoneNumber: user.PhoneNumber})
}
