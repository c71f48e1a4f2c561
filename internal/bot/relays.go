package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/auth"
	"github.com/ghabxph/dnd-relay/internal/repository"
)

const (
	defaultRelayLimit = 20
	maxRelayLimit     = 100
)

// RelayReader looks up recorded relays for the admin API.
type RelayReader interface {
	ListRecent(ctx context.Context, channelID string, limit int) ([]*repository.RelayRecord, error)
	GetByRequestID(ctx context.Context, requestID string) (*repository.RelayRecord, error)
}

// WithRelayReader serves the read-only relay log API from r. The routes are
// only mounted when an admin token is configured as well.
func WithRelayReader(r RelayReader) Option {
	return func(s *Service) { s.relays = r }
}

func (s *Service) mountRelayRoutes(r *mux.Router) {
	if s.relays == nil || s.config.RelayAdminToken == "" {
		return
	}

	admin := r.PathPrefix("/relays").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/channel/{channel_id}", s.handleChannelRelays).Methods(http.MethodGet)
	admin.HandleFunc("/{request_id}", s.handleRelay).Methods(http.MethodGet)
}

func (s *Service) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.BearerMatches(r.Header.Get("Authorization"), s.config.RelayAdminToken) {
			s.logger.Warn("Rejected relay log request", zap.String("path", r.URL.Path))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleRelay(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if _, err := uuid.Parse(requestID); err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	rec, err := s.relays.GetByRequestID(r.Context(), requestID)
	if err != nil {
		s.logger.Error("Failed to load relay", zap.String("request_id", requestID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	writeJSON(w, rec)
}

func (s *Service) handleChannelRelays(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channel_id"]

	limit := defaultRelayLimit
	if val := r.URL.Query().Get("limit"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRelayLimit)
	}

	records, err := s.relays.ListRecent(r.Context(), channelID, limit)
	if err != nil {
		s.logger.Error("Failed to list relays", zap.String("channel_id", channelID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*repository.RelayRecord{}
	}

	writeJSON(w, map[string]interface{}{
		"channel_id": channelID,
		"relays":     records,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
