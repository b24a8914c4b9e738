package domain

import "time"

// ExecutionStatus is the state of an arbitrage execution. Completed and
// failed are terminal.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// LegResult records the outcome of one executed leg.
type LegResult struct {
	Leg         ExecutionLeg
	Success     bool
	FilledPrice float64
	GasUsed     float64
	Error       string
}

// Execution records one multi-leg arbitrage execution and its realized
// outcome. It is created when the coordinator begins a validated opportunity
// and never mutated after reaching a terminal status.
type Execution struct {
	ID            string
	OpportunityID string
	AgentID       string
	Status        ExecutionStatus
	ActualProfit  float64
	GasCost       float64
	Slippage      float64 // fraction of notional actually deducted
	Legs          []LegResult
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}
