package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"earmark/internal/analysis"
	"earmark/internal/logging"
	"earmark/internal/services"
	"earmark/internal/services/aispy"
)

var (
	// ErrChatUnavailable means the tier does not include chat.
	ErrChatUnavailable = errors.New("chat requires a pro subscription")
	// ErrChatQuotaExceeded means the per-job message limit was reached.
	ErrChatQuotaExceeded = errors.New("chat message limit reached for this analysis")
)

// DefaultProLimit is the per-job message quota for the paid tier.
const DefaultProLimit = 10

// Remote sends chat messages.
type Remote interface {
	SendChatMessage(ctx context.Context, jobID string, tier analysis.Tier, msg aispy.ChatMessage) (aispy.ChatReply, error)
}

// UsageCounter persists per-job message counts.
type UsageCounter interface {
	ChatUsage(ctx context.Context, jobID string) (int, error)
	IncrementChatUsage(ctx context.Context, jobID string) (int, error)
}

// Option customises Session construction.
type Option func(*Session)

// WithLimit overrides the paid-tier quota. Zero disables chat entirely.
func WithLimit(limit int) Option {
	return func(s *Session) {
		if limit >= 0 {
			s.limit = limit
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is a conversation about one cached result.
type Session struct {
	remote  Remote
	usage   UsageCounter
	tier    analysis.Tier
	limit   int
	payload Payload
	logger  *slog.Logger
}

// NewSession starts a conversation seeded with payload.
func NewSession(remote Remote, usage UsageCounter, payload Payload, tier analysis.Tier, opts ...Option) *Session {
	s := &Session{
		remote:  remote,
		usage:   usage,
		tier:    tier,
		limit:   DefaultProLimit,
		payload: payload,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "chat").With(logging.String(logging.FieldJobID, payload.JobID))
	return s
}

// Limit returns the quota that applies to this session's tier.
func (s *Session) Limit() int {
	if !s.tier.HasSubscription() {
		return 0
	}
	return s.limit
}

// Remaining returns how many messages may still be sent.
func (s *Session) Remaining(ctx context.Context) (int, error) {
	used, err := s.usage.ChatUsage(ctx, s.payload.JobID)
	if err != nil {
		return 0, err
	}
	return max(s.Limit()-used, 0), nil
}

// Send transmits message with the analysis context and records the exchange.
func (s *Session) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", services.Wrap(services.ErrInvalidInput, "chat", "send", "message is empty", nil)
	}
	if !s.tier.HasSubscription() {
		return "", ErrChatUnavailable
	}
	remaining, err := s.Remaining(ctx)
	if err != nil {
		return "", fmt.Errorf("read chat usage: %w", err)
	}
	if remaining == 0 {
		return "", ErrChatQuotaExceeded
	}

	reply, err := s.remote.SendChatMessage(ctx, s.payload.JobID, s.tier, aispy.ChatMessage{
		Message:      message,
		Context:      s.payload.HistoryText(),
		AnalysisData: s.payload.AnalysisData(),
	})
	if err != nil {
		return "", err
	}

	count, err := s.usage.IncrementChatUsage(ctx, s.payload.JobID)
	if err != nil {
		logging.WarnWithContext(s.logger, "chat usage not recorded", "chat_usage_write",
			logging.Error(err),
			logging.String(logging.FieldImpact, "local quota may undercount"),
		)
	}
	s.payload.History = append(s.payload.History,
		Turn{Role: RoleUser, Text: message},
		Turn{Role: RoleAssistant, Text: reply.Response},
	)
	s.logger.Debug("chat message sent", logging.Int("used", count), logging.Int("limit", s.Limit()))
	return reply.Response, nil
}

// History returns the conversation so far.
func (s *Session) History() []Turn {
	return append([]Turn(nil), s.payload.History...)
}
