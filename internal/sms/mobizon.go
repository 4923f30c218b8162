package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMobizonURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

// Mobizon sends SMS through the Mobizon HTTP API.
type Mobizon struct {
	apiKey     string
	sender     string
	apiURL     string
	httpClient *http.Client
	logger     *logrus.Logger
}

type mobizonResponse struct {
	Code int `json:"code"`
	Data struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewMobizon(apiKey, sender string, timeout time.Duration, logger *logrus.Logger) *Mobizon {
	return &Mobizon{
		apiKey: apiKey,
		sender: sender,
		apiURL: defaultMobizonURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (m *Mobizon) Send(ctx context.Context, recipient, message string) error {
	form := url.Values{
		"apiKey":    {m.apiKey},
		"recipient": {recipient},
		"text":      {message},
	}
	if m.sender != "" {
		form.Set("from", m.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.WithError(err).Error("Mobizon request failed")
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	var result mobizonResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: failed to parse provider response: %v", ErrDeliveryFailed, err)
	}
	if result.Code != 0 {
		return fmt.Errorf("%w: provider returned code %d", ErrDeliveryFailed, result.Code)
	}

	m.logger.WithFields(logrus.Fields{
		"recipient":  recipient,
		"message_id": result.Data.MessageID,
	}).Info("SMS dispatched")

	return nil
}
