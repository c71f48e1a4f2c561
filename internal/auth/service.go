package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/character"
)

var (
	// ErrInvalidRequest means the request did not come from our Slack team.
	ErrInvalidRequest = errors.New("invalid slack request")
	// ErrUserNotAllowed means the user may not speak as this character.
	ErrUserNotAllowed = errors.New("user not allowed")
)

// Service validates inbound slash commands and authorizes their users.
type Service struct {
	token         string
	teamID        string
	signingSecret string
	logger        *zap.Logger
}

// NewService creates a new authentication service. signingSecret is
// optional; when set, request signatures are verified as well.
func NewService(token, teamID, signingSecret string, logger *zap.Logger) *Service {
	return &Service{
		token:         token,
		teamID:        teamID,
		signingSecret: signingSecret,
		logger:        logger,
	}
}

// ParseRequest reads the slash command form from r and validates it. The
// request body is consumed.
func (s *Service) ParseRequest(r *http.Request) (slack.SlashCommand, error) {
	var verifier slack.SecretsVerifier
	if s.signingSecret != "" {
		var err error
		verifier, err = slack.NewSecretsVerifier(r.Header, s.signingSecret)
		if err != nil {
			s.logger.Warn("Missing or stale Slack signature headers", zap.Error(err))
			return slack.SlashCommand{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		r.Body = io.NopCloser(io.TeeReader(r.Body, &verifier))
	}

	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		return slack.SlashCommand{}, fmt.Errorf("failed to parse slash command: %w", err)
	}

	if s.signingSecret != "" {
		if err := verifier.Ensure(); err != nil {
			s.logger.Warn("Invalid Slack signature", zap.String("command", cmd.Command))
			return slack.SlashCommand{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if !s.IsRequestValid(cmd.Token, cmd.TeamID) {
		s.logger.Warn("Rejected request with bad token or team",
			zap.String("command", cmd.Command),
			zap.String("team_id", cmd.TeamID))
		return slack.SlashCommand{}, ErrInvalidRequest
	}

	return cmd, nil
}

// IsRequestValid compares the shared token and team id with the expected
// values.
func (s *Service) IsRequestValid(token, teamID string) bool {
	tokenOK := subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
	teamOK := subtle.ConstantTimeCompare([]byte(teamID), []byte(s.teamID)) == 1
	return tokenOK && teamOK && s.token != ""
}

// AuthorizeUser checks the command's allow-list for user.
func (s *Service) AuthorizeUser(c character.Command, user string) error {
	if !c.IsAllowed(user) {
		s.logger.Warn("Blocked unauthorized user",
			zap.String("user_name", user),
			zap.String("command", c.Path),
			zap.String("character", c.Character))
		return fmt.Errorf("%w: %s may not use %s", ErrUserNotAllowed, user, c.Path)
	}
	return nil
}

// BearerMatches reports whether an Authorization header carries token as a
// bearer credential. An empty token never matches.
func BearerMatches(header, token string) bool {
	const prefix = "Bearer "
	if token == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(header, prefix)), []byte(token)) == 1
}
