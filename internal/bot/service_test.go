package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghabxph/dnd-relay/internal/character"
	"github.com/ghabxph/dnd-relay/internal/command"
	"github.com/ghabxph/dnd-relay/internal/config"
	"github.com/ghabxph/dnd-relay/internal/dice"
	"github.com/ghabxph/dnd-relay/internal/logging"
	"github.com/ghabxph/dnd-relay/internal/repository"
)

type stubDispatcher struct {
	mu   sync.Mutex
	urls []string
	msgs []*slack.WebhookMessage
	err  error
}

func (d *stubDispatcher) Dispatch(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, responseURL)
	d.msgs = append(d.msgs, msg)
	return d.err
}

func (d *stubDispatcher) sent() []*slack.WebhookMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*slack.WebhookMessage(nil), d.msgs...)
}

type stubAudit struct {
	mu      sync.Mutex
	records []*repository.RelayRecord
}

func (a *stubAudit) Record(ctx context.Context, rec *repository.RelayRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		VerificationToken: "vtoken",
		TeamID:            "T1",
		DeliveryTimeout:   2 * time.Second,
		HealthCheckPath:   "/health",
		ShutdownTimeout:   time.Second,
		ServerHost:        "127.0.0.1",
		ServerPort:        0,
	}
}

func testRoster() *character.Roster {
	return &character.Roster{
		Characters: character.NewTable(
			character.Entry{Alias: "strahd", DisplayName: "Lord Strahd Says", ImageURL: "https://img.example/strahd.png"},
			character.Entry{Alias: "uhl", DisplayName: "Uhl the Bold"},
		),
		Commands: []character.Command{
			{Path: "/char", Style: command.StyleFlags},
			{Path: "/gm", Style: command.StyleGM},
			{Path: "/strahd", Style: command.StylePlayer, Character: "strahd", AllowedUsers: []string{"alice"}},
		},
	}
}

func newTestService(t *testing.T, d Dispatcher, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithDispatcher(d)}, opts...)
	return NewService(testConfig(), testRoster(), zaptest.NewLogger(t), opts...)
}

func slashForm(path, user, text string) url.Values {
	return url.Values{
		"token":        {"vtoken"},
		"team_id":      {"T1"},
		"channel_id":   {"C123"},
		"user_name":    {user},
		"command":      {path},
		"text":         {text},
		"response_url": {"https://hooks.example/commands/1"},
	}
}

func post(t *testing.T, s *Service, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	s.Wait()
	return w
}

func TestCommand_PlayerRelay(t *testing.T) {
	d := &stubDispatcher{}
	s := newTestService(t, d)

	w := post(t, s, "/strahd", slashForm("/strahd", "alice", "|You shall not pass"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://hooks.example/commands/1", d.urls[0])
	assert.Equal(t, "*Lord Strahd Says... (from alice)*\nYou shall not pass", sent[0].Text)
	assert.Equal(t, slack.ResponseTypeInChannel, sent[0].ResponseType)
	assert.Equal(t, "C123", sent[0].Channel)

	require.NotNil(t, sent[0].Blocks)
	require.Len(t, sent[0].Blocks.BlockSet, 3)
	section, ok := sent[0].Blocks.BlockSet[1].(*slack.SectionBlock)
	require.True(t, ok)
	require.NotNil(t, section.Accessory)
	require.NotNil(t, section.Accessory.ImageElement)
	assert.Equal(t, "https://img.example/strahd.png", section.Accessory.ImageElement.ImageURL)
}

func TestCommand_GMRelay(t *testing.T) {
	d := &stubDispatcher{}
	s := newTestService(t, d)

	w := post(t, s, "/gm", slashForm("/gm", "dm", "uhl|combat|Attack!"))

	assert.Equal(t, http.StatusOK, w.Code)
	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "*Uhl the Bold... [combat] (from dm)*\nAttack!", sent[0].Text)

	section := sent[0].Blocks.BlockSet[1].(*slack.SectionBlock)
	assert.Nil(t, section.Accessory, "uhl has no portrait")
}

func TestCommand_UnknownCharacterUsesAlias(t *testing.T) {
	d := &stubDispatcher{}
	s := newTestService(t, d)

	post(t, s, "/gm", slashForm("/gm", "dm", "Goblin|Hey!"))

	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "*Goblin... (from dm)*\nHey!", sent[0].Text)
}

func TestCommand_FlagsWithRoll(t *testing.T) {
	d := &stubDispatcher{}
	result := &dice.Result{
		Terms: []dice.Term{{Count: 1, Sides: 20, Rolls: []int{12}, Kept: []bool{true}}},
		Total: 12,
	}
	var rolled string
	s := newTestService(t, d, WithRoller(func(expr string) (*dice.Result, error) {
		rolled = expr
		return result, nil
	}))

	w := post(t, s, "/char", slashForm("/char", "bob", `-c strahd -e " glares" -m "Kneel." -r 1d20`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1d20", rolled)
	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "*Lord Strahd Says ... glares (from bob)*\nKneel.\n\n"+result.String(), sent[0].Text)
}

func TestCommand_Help(t *testing.T) {
	d := &stubDispatcher{}
	s := newTestService(t, d)

	w := post(t, s, "/char", slashForm("/char", "bob", "-H"))

	assert.Equal(t, http.StatusOK, w.Code)
	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, slack.ResponseTypeEphemeral, sent[0].ResponseType)
	assert.Equal(t, command.Usage, sent[0].Text)
}

func TestCommand_Rejections(t *testing.T) {
	tests := []struct {
		name string
		path string
		form func() url.Values
		code int
	}{
		{
			name: "bad token",
			path: "/strahd",
			form: func() url.Values {
				f := slashForm("/strahd", "alice", "|hi")
				f.Set("token", "stolen")
				return f
			},
			code: http.StatusUnauthorized,
		},
		{
			name: "wrong team",
			path: "/gm",
			form: func() url.Values {
				f := slashForm("/gm", "dm", "uhl|hi")
				f.Set("team_id", "T2")
				return f
			},
			code: http.StatusUnauthorized,
		},
		{
			name: "player not allowed",
			path: "/strahd",
			form: func() url.Values { return slashForm("/strahd", "mallory", "|hi") },
			code: http.StatusBadRequest,
		},
		{
			name: "unbalanced quotes",
			path: "/char",
			form: func() url.Values { return slashForm("/char", "bob", `-c strahd -m "oops`) },
			code: http.StatusBadRequest,
		},
		{
			name: "too many segments",
			path: "/gm",
			form: func() url.Values { return slashForm("/gm", "dm", "a|b|c|d") },
			code: http.StatusBadRequest,
		},
		{
			name: "bad roll",
			path: "/char",
			form: func() url.Values { return slashForm("/char", "bob", "-c strahd -m hi -r fireball") },
			code: http.StatusBadRequest,
		},
		{
			name: "missing response url",
			path: "/gm",
			form: func() url.Values {
				f := slashForm("/gm", "dm", "uhl|hi")
				f.Del("response_url")
				return f
			},
			code: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{}
			s := newTestService(t, d)

			w := post(t, s, tt.path, tt.form())

			assert.Equal(t, tt.code, w.Code)
			assert.Empty(t, d.sent(), "nothing is delivered for a rejected request")
		})
	}
}

func TestCommand_MethodAndRouteMismatch(t *testing.T) {
	s := newTestService(t, &stubDispatcher{})

	r := httptest.NewRequest(http.MethodGet, "/strahd", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = post(t, s, "/nobody", slashForm("/nobody", "alice", "|hi"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommand_DeliveryFailureStillAcknowledged(t *testing.T) {
	d := &stubDispatcher{err: errors.New("slack unavailable")}
	audit := &stubAudit{}
	s := newTestService(t, d, WithAudit(audit))

	w := post(t, s, "/strahd", slashForm("/strahd", "alice", "|hi"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, d.sent(), 1, "delivery is attempted exactly once")

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.False(t, rec.Delivered)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "slack unavailable", *rec.Error)
	assert.Equal(t, "strahd", rec.Character)
	assert.Equal(t, "/strahd", rec.Command)
	assert.NotEmpty(t, rec.RequestID)
}

func TestCommand_AuditOnSuccess(t *testing.T) {
	audit := &stubAudit{}
	s := newTestService(t, &stubDispatcher{}, WithAudit(audit))

	post(t, s, "/gm", slashForm("/gm", "dm", "uhl|hi"))

	require.Len(t, audit.records, 1)
	assert.True(t, audit.records[0].Delivered)
	assert.Nil(t, audit.records[0].Error)
	assert.Equal(t, "C123", audit.records[0].ChannelID)
	assert.Equal(t, "dm", audit.records[0].UserName)
}

func TestWebhookDispatcher_EndToEnd(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			received <- body
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slackSrv.Close()

	s := newTestService(t, NewWebhookDispatcher(time.Second))

	form := slashForm("/strahd", "alice", "|You shall not pass")
	form.Set("response_url", slackSrv.URL)
	w := post(t, s, "/strahd", form)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case body := <-received:
		assert.Equal(t, "in_channel", body["response_type"])
		assert.Equal(t, "*Lord Strahd Says... (from alice)*\nYou shall not pass", body["text"])
		blocks, ok := body["blocks"].([]interface{})
		require.True(t, ok)
		assert.Len(t, blocks, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("response_url was never called")
	}
}

func TestWebhookDispatcher_ReportsFailure(t *testing.T) {
	slackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer slackSrv.Close()

	err := NewWebhookDispatcher(time.Second).Dispatch(context.Background(), slackSrv.URL, &slack.WebhookMessage{Text: "x"})
	assert.Error(t, err)
}

func TestHealthAndVersion(t *testing.T) {
	s := newTestService(t, &stubDispatcher{})

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(3), health["commands"])
	assert.Equal(t, float64(2), health["characters"])

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "dnd-relay", info["app"])
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
	assert.NotEmpty(t, info["uptime"])
}

type stubHealth struct{ err error }

func (h stubHealth) Health() error { return h.err }

func TestHealth_Database(t *testing.T) {
	s := newTestService(t, &stubDispatcher{}, WithDatabase(stubHealth{}))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"connected"`)

	s = newTestService(t, &stubDispatcher{}, WithDatabase(stubHealth{err: errors.New("gone")}))
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestCommand_FailedDeliveryNotificationIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.DeliveryTimeout = 100 * time.Millisecond

	notified := make(chan struct{}, 1)
	blocking := func(ctx context.Context, text string) error {
		notified <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	s := NewService(cfg, testRoster(), zaptest.NewLogger(t),
		WithDispatcher(&stubDispatcher{err: errors.New("slack unavailable")}),
		WithErrorLogger(logging.NewDualLogger(zaptest.NewLogger(t), blocking)))

	done := make(chan struct{})
	go func() {
		post(t, s, "/gm", slashForm("/gm", "dm", "uhl|hi"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pending deliveries never drained while the operator webhook hung")
	}
	assert.Len(t, notified, 1, "operators are told about the failure")
}

func TestCommand_OpenAllowList(t *testing.T) {
	roster := testRoster()
	roster.Commands = append(roster.Commands, character.Command{
		Path:         "/tavern",
		Style:        command.StylePlayer,
		Character:    "barkeep",
		AllowedUsers: []string{character.AllUsers},
	})

	d := &stubDispatcher{}
	s := NewService(testConfig(), roster, zaptest.NewLogger(t), WithDispatcher(d))

	w := post(t, s, "/tavern", slashForm("/tavern", "stranger", "cheerful | What'll it be?"))

	assert.Equal(t, http.StatusOK, w.Code)
	sent := d.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "*barkeep... [cheerful] (from stranger)*\nWhat'll it be?", sent[0].Text)
}

func TestStartStop(t *testing.T) {
	s := newTestService(t, &stubDispatcher{})
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
