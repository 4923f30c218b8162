package sms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestMobizonSend(t *testing.T) {
	var gotRecipient, gotText, gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotRecipient = r.PostForm.Get("recipient")
		gotText = r.PostForm.Get("text")
		gotFrom = r.PostForm.Get("from")
		w.Write([]byte(`{"code":0,"data":{"messageId":"msg-1"}}`))
	}))
	defer srv.Close()

	gw := NewMobizon("key", "TutorLink", 5*time.Second, testLogger())
	gw.apiURL = srv.URL

	err := gw.Send(context.Background(), "+85291234567", "code 123456")
	require.NoError(t, err)
	assert.Equal(t, "+85291234567", gotRecipient)
	assert.Equal(t, "code 123456", gotText)
	assert.Equal(t, "TutorLink", gotFrom)
}

func TestMobizonSendProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":5}`))
	}))
	defer srv.Close()

	gw := NewMobizon("key", "", 5*time.Second, testLogger())
	gw.apiURL = srv.URL

	err := gw.Send(context.Background(), "+85291234567", "code 123456")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestMobizonSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	gw := NewMobizon("key", "", 5*time.Second, testLogger())
	gw.apiURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gw.Send(ctx, "+85291234567", "code 123456")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}
