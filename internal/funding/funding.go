// Package funding provides the default local implementation of the external
// funding collaborator. Requests are acknowledged immediately and published
// for out-of-process allocators to act on.
package funding

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arbstack/arbengine/internal/domain"
)

// SimService acknowledges funding requests without moving capital. The
// request is logged and, when a bus is present, published on the "funding"
// channel.
type SimService struct {
	bus    domain.SignalBus // optional
	logger *slog.Logger
}

// NewSimService creates a SimService. bus may be nil.
func NewSimService(bus domain.SignalBus, logger *slog.Logger) *SimService {
	return &SimService{
		bus:    bus,
		logger: logger.With(slog.String("component", "funding")),
	}
}

// RequestFunding records the request and returns its ID. Fire-and-forget:
// the caller proceeds without waiting for settlement.
func (s *SimService) RequestFunding(ctx context.Context, req domain.FundingRequest) (string, error) {
	id := uuid.New().String()
	s.logger.InfoContext(ctx, "funding requested",
		slog.String("request_id", id),
		slog.String("agent", req.AgentID),
		slog.Float64("amount", req.Amount),
		slog.String("urgency", string(req.Urgency)),
		slog.Float64("expected_return", req.ExpectedReturn),
	)
	if s.bus != nil {
		payload, err := json.Marshal(struct {
			RequestID string  `json:"request_id"`
			AgentID   string  `json:"agent_id"`
			Amount    float64 `json:"amount"`
			Reason    string  `json:"reason"`
			Urgency   string  `json:"urgency"`
		}{id, req.AgentID, req.Amount, req.Reason, string(req.Urgency)})
		if err == nil {
			if err := s.bus.Publish(ctx, "funding", payload); err != nil {
				s.logger.DebugContext(ctx, "funding publish failed", slog.String("error", err.Error()))
			}
		}
	}
	return id, nil
}

// Compile-time interface check.
var _ domain.FundingService = (*SimService)(nil)
