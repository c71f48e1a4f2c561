package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghabxph/dnd-relay/internal/repository"
)

type fakeRelays struct {
	records   map[string]*repository.RelayRecord
	lastLimit int
	err       error
}

func (f *fakeRelays) ListRecent(ctx context.Context, channelID string, limit int) ([]*repository.RelayRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []*repository.RelayRecord
	for _, rec := range f.records {
		if rec.ChannelID == channelID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRelays) GetByRequestID(ctx context.Context, requestID string) (*repository.RelayRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[requestID], nil
}

func newAdminService(t *testing.T, relays RelayReader, token string) *Service {
	t.Helper()
	cfg := testConfig()
	cfg.RelayAdminToken = token
	return NewService(cfg, testRoster(), zaptest.NewLogger(t),
		WithDispatcher(&stubDispatcher{}), WithRelayReader(relays))
}

func adminGet(s *Service, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	return w
}

func TestRelayAPI(t *testing.T) {
	id := uuid.New().String()
	relays := &fakeRelays{records: map[string]*repository.RelayRecord{
		id: {ID: 7, RequestID: id, ChannelID: "C123", UserName: "alice", Character: "strahd", Text: "hi", Delivered: true},
	}}
	s := newAdminService(t, relays, "s3cret")

	w := adminGet(s, "/relays/"+id, "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	var rec map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	assert.Equal(t, id, rec["request_id"])
	assert.Equal(t, "strahd", rec["character"])
	_, hasError := rec["error"]
	assert.False(t, hasError)

	w = adminGet(s, "/relays/"+uuid.New().String(), "s3cret")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminGet(s, "/relays/not-a-uuid", "s3cret")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminGet(s, "/relays/channel/C123?limit=500", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxRelayLimit, relays.lastLimit)
	var list struct {
		ChannelID string                    `json:"channel_id"`
		Relays    []*repository.RelayRecord `json:"relays"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, "C123", list.ChannelID)
	require.Len(t, list.Relays, 1)
	assert.Equal(t, int64(7), list.Relays[0].ID)

	w = adminGet(s, "/relays/channel/C999", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultRelayLimit, relays.lastLimit)
	assert.Contains(t, w.Body.String(), `"relays":[]`)

	w = adminGet(s, "/relays/channel/C123?limit=zero", "s3cret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRelayAPI_RequiresToken(t *testing.T) {
	s := newAdminService(t, &fakeRelays{}, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, adminGet(s, "/relays/channel/C123", "").Code)
	assert.Equal(t, http.StatusUnauthorized, adminGet(s, "/relays/channel/C123", "guess").Code)
}

func TestRelayAPI_DisabledWithoutToken(t *testing.T) {
	s := newAdminService(t, &fakeRelays{}, "")
	assert.Equal(t, http.StatusNotFound, adminGet(s, "/relays/channel/C123", "").Code)
}

func TestRelayAPI_StoreError(t *testing.T) {
	s := newAdminService(t, &fakeRelays{err: errors.New("db down")}, "s3cret")

	assert.Equal(t, http.StatusInternalServerError, adminGet(s, "/relays/channel/C123", "s3cret").Code)
	assert.Equal(t, http.StatusInternalServerError, adminGet(s, "/relays/"+uuid.New().String(), "s3cret").Code)
}
