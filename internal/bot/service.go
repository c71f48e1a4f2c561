package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/auth"
	"github.com/ghabxph/dnd-relay/internal/character"
	"github.com/ghabxph/dnd-relay/internal/command"
	"github.com/ghabxph/dnd-relay/internal/config"
	"github.com/ghabxph/dnd-relay/internal/dice"
	"github.com/ghabxph/dnd-relay/internal/logging"
	"github.com/ghabxph/dnd-relay/internal/message"
	"github.com/ghabxph/dnd-relay/internal/repository"
	"github.com/ghabxph/dnd-relay/internal/version"
)

// AuditRecorder stores the outcome of each delivery.
type AuditRecorder interface {
	Record(ctx context.Context, rec *repository.RelayRecord) error
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health() error
}

// Service represents the relay HTTP service
type Service struct {
	config     *config.Config
	logger     *zap.Logger
	errors     *logging.DualLogger
	auth       *auth.Service
	roster     *character.Roster
	dispatcher Dispatcher
	audit      AuditRecorder
	database   HealthChecker
	relays     RelayReader
	roll       func(expr string) (*dice.Result, error)
	httpServer *http.Server
	wg         sync.WaitGroup
	startTime  time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithDispatcher replaces the response_url dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithAudit records every delivery to a.
func WithAudit(a AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithDatabase adds the database to the health report.
func WithDatabase(db HealthChecker) Option {
	return func(s *Service) { s.database = db }
}

// WithRoller replaces the dice roller.
func WithRoller(roll func(expr string) (*dice.Result, error)) Option {
	return func(s *Service) { s.roll = roll }
}

// WithErrorLogger reports delivery failures through dl.
func WithErrorLogger(dl *logging.DualLogger) Option {
	return func(s *Service) { s.errors = dl }
}

// NewService creates a new relay service
func NewService(cfg *config.Config, roster *character.Roster, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		config:     cfg,
		logger:     logger,
		auth:       auth.NewService(cfg.VerificationToken, cfg.TeamID, cfg.SigningSecret, logger),
		roster:     roster,
		dispatcher: NewWebhookDispatcher(cfg.DeliveryTimeout),
		roll:       dice.Roll,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.errors == nil {
		s.errors = logging.NewDualLogger(logger, nil)
	}
	return s
}

// Router wires every roster command plus the health and version endpoints.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()

	for _, c := range s.roster.Commands {
		r.HandleFunc(c.Path, s.commandHandler(c)).Methods(http.MethodPost)
	}

	r.HandleFunc(s.config.HealthCheckPath, s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	s.mountRelayRoutes(r)

	return r
}

// Start starts the HTTP server in the background.
func (s *Service) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("Starting character relay",
		zap.String("addr", s.httpServer.Addr),
		zap.Int("commands", len(s.roster.Commands)),
		zap.Int("characters", s.roster.Characters.Len()),
		zap.String("health_path", s.config.HealthCheckPath))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the server down and waits for pending deliveries.
func (s *Service) Stop() {
	s.logger.Info("Stopping character relay")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Relay stopped successfully")
}

// Wait blocks until every in-flight delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) commandHandler(c character.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		logger := s.logger.With(
			zap.String("request_id", requestID),
			zap.String("path", c.Path))

		cmd, err := s.auth.ParseRequest(r)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidRequest) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			logger.Warn("Failed to parse slash command", zap.Error(err))
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		logger = logger.With(
			zap.String("user_name", cmd.UserName),
			zap.String("channel_id", cmd.ChannelID))

		if cmd.ResponseURL == "" {
			logger.Warn("Slash command has no response_url")
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		if err := s.auth.AuthorizeUser(c, cmd.UserName); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		parsed, err := command.Parse(c.Style, cmd.Text, c.Character)
		if err != nil {
			logger.Info("Rejected malformed command", zap.Error(err))
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		var out *message.Outbound
		if parsed.Help {
			out = message.Help(cmd.ChannelID)
		} else {
			var rollResult string
			if parsed.HasRoll() {
				res, err := s.roll(parsed.Roll)
				if err != nil {
					logger.Info("Rejected dice expression",
						zap.String("roll", parsed.Roll),
						zap.Error(err))
					http.Error(w, "Bad request", http.StatusBadRequest)
					return
				}
				rollResult = res.String()
			}
			out = message.Compose(parsed, s.roster.Characters, cmd.UserName, cmd.ChannelID, rollResult)
		}

		s.deliver(requestID, cmd.Command, cmd.UserName, cmd.ResponseURL, parsed.Character, out)

		// Slack shows nothing for an empty 200; the real reply goes to response_url.
		w.WriteHeader(http.StatusOK)
	}
}

// deliver posts out to responseURL in the background. The request has
// already been acknowledged, so failures are only logged.
func (s *Service) deliver(requestID, cmdName, user, responseURL, characterAlias string, out *message.Outbound) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.DeliveryTimeout)
		defer cancel()

		err := s.dispatcher.Dispatch(ctx, responseURL, out.Webhook())
		if err != nil {
			errCtx := logging.CreateErrorContext("relay", "deliver").
				WithRequest(requestID, cmdName, out.Channel, user)
			notifyCtx, notifyCancel := context.WithTimeout(context.Background(), s.config.DeliveryTimeout)
			s.errors.LogErrorf(notifyCtx, errCtx, err, "Failed to deliver %s message as %s", out.ResponseType, characterAlias)
			notifyCancel()
		} else {
			s.logger.Info("Relayed message",
				zap.String("request_id", requestID),
				zap.String("command", cmdName),
				zap.String("user_name", user),
				zap.String("character", characterAlias),
				zap.String("response_type", out.ResponseType))
		}

		if s.audit == nil {
			return
		}
		rec := &repository.RelayRecord{
			RequestID: requestID,
			Command:   cmdName,
			ChannelID: out.Channel,
			UserName:  user,
			Character: characterAlias,
			Text:      out.Text,
			Delivered: err == nil,
		}
		if err != nil {
			msg := err.Error()
			rec.Error = &msg
		}
		auditCtx, auditCancel := context.WithTimeout(context.Background(), s.config.DeliveryTimeout)
		defer auditCancel()
		if auditErr := s.audit.Record(auditCtx, rec); auditErr != nil {
			s.logger.Warn("Failed to record relay",
				zap.String("request_id", requestID),
				zap.Error(auditErr))
		}
	}()
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(s.startTime).String(),
		"commands":   len(s.roster.Commands),
		"characters": s.roster.Characters.Len(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if s.database != nil {
		if err := s.database.Health(); err != nil {
			s.logger.Warn("Database health check failed", zap.Error(err))
			health["status"] = "degraded"
			health["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(health)
}

func (s *Service) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		version.Info
		Uptime string `json:"uptime"`
	}{
		Info:   version.Get(),
		Uptime: time.Since(s.startTime).String(),
	})
}
