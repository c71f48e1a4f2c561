package logging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "json", false)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = New("warn", "console", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1), "debug flag forces debug level")

	_, err = New("loud", "json", false)
	assert.Error(t, err)

	_, err = New("info", "xml", false)
	assert.Error(t, err)
}

func TestDualLogger_NotifiesOperators(t *testing.T) {
	var got string
	notify := func(ctx context.Context, text string) error {
		got = text
		return nil
	}

	dl := NewDualLogger(zaptest.NewLogger(t), notify)
	errCtx := CreateErrorContext("relay", "deliver").WithRequest("req-1", "/char", "C1", "alice")
	dl.LogError(context.Background(), errCtx, errors.New("boom"), "Delivery failed")

	assert.Contains(t, got, "*Error in relay*")
	assert.Contains(t, got, "*Operation*: deliver")
	assert.Contains(t, got, "*Error*: boom")
	assert.Contains(t, got, "*Command*: /char by alice in C1")
	assert.Contains(t, got, "*Request*: req-1")
}

func TestDualLogger_NotifierFailureIsSwallowed(t *testing.T) {
	dl := NewDualLogger(zaptest.NewLogger(t), func(ctx context.Context, text string) error {
		return errors.New("webhook down")
	})
	dl.LogErrorf(context.Background(), CreateErrorContext("relay", "deliver"), errors.New("boom"), "attempt %d", 1)
}

func TestDualLogger_ConsoleOnly(t *testing.T) {
	dl := NewDualLogger(zaptest.NewLogger(t), nil)
	dl.LogError(context.Background(), CreateErrorContext("relay", "deliver"), errors.New("boom"), "x")
}

func TestFormatSlackMessage(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	msg := FormatSlackMessage(CreateErrorContext("relay", "deliver"), errors.New("boom"), "failed", at)

	assert.Contains(t, msg, "[15:04:05]")
	assert.NotContains(t, msg, "*Command*")
	assert.NotContains(t, msg, "*Request*")
}

func TestWebhookNotifier(t *testing.T) {
	assert.Nil(t, WebhookNotifier(nil, time.Second))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] == "hello" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notify := WebhookNotifier([]string{srv.URL, srv.URL}, time.Second)
	require.NoError(t, notify(context.Background(), "hello"))
	assert.Equal(t, int32(2), hits.Load())

	failing := WebhookNotifier([]string{srv.URL + "/missing-but-ok", "http://127.0.0.1:1/unreachable"}, time.Second)
	assert.Error(t, failing(context.Background(), "hello"))
}

func TestWebhookNotifier_HungWebhookTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	notify := WebhookNotifier([]string{srv.URL}, 50*time.Millisecond)

	start := time.Now()
	err := notify(context.Background(), "hello")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
