package service

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tutorlink/tutorlink/internal/config"
	"github.com/tutorlink/tutorlink/internal/models"
	"github.com/tutorlink/tutorlink/internal/sms"
	"github.com/tutorlink/tutorlink/internal/store"
)

var codePattern = regexp.MustCompile(`\d{6}`)

type sentMessage struct {
	Recipient string
	Message   string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (g *fakeGateway) Send(ctx context.Context, recipient, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{Recipient: recipient, Message: message})
	return g.err
}

func (g *fakeGateway) lastCode(t *testing.T) string {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.sent)
	code := codePattern.FindString(g.sent[len(g.sent)-1].Message)
	require.NotEmpty(t, code)
	return code
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testVerificationConfig(cooldown time.Duration) *config.VerificationConfig {
	return &config.VerificationConfig{
		CodeLength:     6,
		CodeTTL:        10 * time.Minute,
		MaxAttempts:    3,
		ResendCooldown: cooldown,
	}
}

func newIssuer(st store.Store, gw sms.Gateway, cooldown time.Duration) *CodeIssuer {
	gateways := map[models.Channel]sms.Gateway{
		models.ChannelSMS:   gw,
		models.ChannelEmail: gw,
	}
	return NewCodeIssuer(st, gateways, testVerificationConfig(cooldown), 10*time.Second, testLogger())
}

func TestRequestStoresRecordAndDispatchesCode(t *testing.T) {
	st := store.NewMemory()
	gw := &fakeGateway{}
	issuer := newIssuer(st, gw, 90*time.Second)

	err := issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, models.ChannelSMS)
	require.NoError(t, err)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "+85291234567", gw.sent[0].Recipient)
	assert.Regexp(t, `\d{6}`, gw.sent[0].Message)

	rec, err := st.GetVerification(context.Background(), "+85291234567", models.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempts)
	assert.Equal(t, 3, rec.MaxAttempts)
	assert.False(t, rec.IsUsed)
	assert.Equal(t, models.ChannelSMS, rec.Channel)
	assert.WithinDuration(t, rec.CreatedAt.Add(10*time.Minute), rec.ExpiresAt, time.Second)
	assert.True(t, strings.HasPrefix(rec.CodeHash, "$2"), "code must be stored as a bcrypt hash")
}

func TestRequestWithinCooldownIsRateLimited(t *testing.T) {
	st := store.NewMemory()
	gw := &fakeGateway{}
	issuer := newIssuer(st, gw, 90*time.Second)

	require.NoError(t, issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, models.ChannelSMS))

	err := issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, models.ChannelSMS)
	var rateLimited *RateLimitedError
	require.ErrorAs(t, err, &rateLimited)
	assert.InDelta(t, 90, rateLimited.RetryAfter.Seconds(), 2)
	assert.Len(t, gw.sent, 1, "no second dispatch while throttled")
}

func TestRequestCooldownIsPerPurpose(t *testing.T) {
	st := store.NewMemory()
	gw := &fakeGateway{}
	issuer := newIssuer(st, gw, 90*time.Second)

	require.NoError(t, issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, models.ChannelSMS))
	require.NoError(t, issuer.Request(context.Background(), "+85291234567", models.PurposeLogin, models.ChannelSMS))
	assert.Len(t, gw.sent, 2)
}

func TestRequestDeliveryFailureKeepsRecord(t *testing.T) {
	st := store.NewMemory()
	gw := &fakeGateway{err: sms.ErrDeliveryFailed}
	issuer := newIssuer(st, gw, 90*time.Second)

	err := issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, models.ChannelSMS)
	require.NoError(t, err, "delivery failure must not fail the request")

	rec, err := st.GetVerification(context.Background(), "+85291234567", models.PurposeRegistration)
	require.NoError(t, err)
	assert.False(t, rec.IsUsed, "record stays verifiable after failed dispatch")
}

func TestRequestRejectsBadInput(t *testing.T) {
	st := store.NewMemory()
	issuer := newIssuer(st, &fakeGateway{}, 90*time.Second)

	err := issuer.Request(context.Background(), "+85291234567", "billing", models.ChannelSMS)
	assert.ErrorIs(t, err, ErrInvalidPurpose)

	err = issuer.Request(context.Background(), "+85291234567", models.PurposeRegistration, "carrier_pigeon")
	assert.ErrorIs(t, err, ErrInvalidChannel)

	err = issuer.Request(context.Background(), "+85291234567", models.PurposePhoneUpdate, models.ChannelSMS)
	assert.ErrorIs(t, err, ErrInvalidPurpose, "token-only purpose is not issuable")
}
