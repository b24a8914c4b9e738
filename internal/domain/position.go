package domain

import "time"

// PositionSide is the direction of a leveraged position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// LeveragePosition is an open or historical leveraged position. It is created
// by the leverage manager, mutated on price ticks and deleveraging, and
// destroyed on close.
type LeveragePosition struct {
	ID               string
	AgentID          string
	Asset            string
	Side             PositionSide
	Size             float64 // notional in quote currency
	EntryPrice       float64
	CurrentPrice     float64
	Leverage         float64 // bounded [1.0, 20.0]
	MarginUsed       float64
	UnrealizedPnL    float64
	LiquidationPrice float64
	MarginStatus     MarginStatus
	Status           PositionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
	ExitPrice        *float64
}

// PositionSpec is a request to open a leveraged position.
type PositionSpec struct {
	Asset      string
	Side       PositionSide
	Size       float64 // notional in quote currency
	EntryPrice float64
	Leverage   float64
}

// PositionReceipt is returned to the caller when a position is opened.
type PositionReceipt struct {
	PositionID       string
	MarginUsed       float64
	LiquidationPrice float64
}
