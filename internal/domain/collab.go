package domain

import (
	"context"
	"time"
)

// PriceFeed streams normalized price updates for a set of pairs. Decoding of
// each venue's wire format happens behind this interface.
type PriceFeed interface {
	Subscribe(ctx context.Context, pairs []string) (<-chan PriceUpdate, error)
}

// FundingUrgency indicates how quickly a funding request should be serviced.
type FundingUrgency string

const (
	FundingUrgencyLow    FundingUrgency = "low"
	FundingUrgencyMedium FundingUrgency = "medium"
	FundingUrgencyHigh   FundingUrgency = "high"
)

// FundingRequest asks the external capital allocator for funds.
type FundingRequest struct {
	AgentID        string
	Amount         float64
	Reason         string
	Urgency        FundingUrgency
	ExpectedReturn float64
}

// FundingService is the external capital allocator. Requests are
// fire-and-forget: the engine proceeds on the returned request ID and does
// not wait for settlement.
type FundingService interface {
	RequestFunding(ctx context.Context, req FundingRequest) (requestID string, err error)
}

// SignalBus provides pub/sub for engine events (detections, executions,
// margin alerts) so out-of-process consumers can observe the engine without
// touching its tables.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// PriceMirror exposes the latest aggregated price per pair to external
// readers (dashboards, the API layer) through a shared cache.
type PriceMirror interface {
	SetAggregated(ctx context.Context, agg AggregatedPrice) error
	GetAggregated(ctx context.Context, pair string) (AggregatedPrice, error)
}

// PositionStore persists leveraged positions for cross-restart durability.
// Not required for correctness within a single run.
type PositionStore interface {
	Upsert(ctx context.Context, pos LeveragePosition) error
	Close(ctx context.Context, id string, exitPrice float64, closedAt time.Time) error
	ListOpen(ctx context.Context, agentID string) ([]LeveragePosition, error)
}

// ExecutionStore persists completed arbitrage executions.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	ListBefore(ctx context.Context, before time.Time) ([]Execution, error)
}
