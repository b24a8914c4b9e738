package domain

import "time"

// OpportunityKind classifies the detector that produced an opportunity.
type OpportunityKind string

const (
	OpportunitySimple     OpportunityKind = "simple"
	OpportunityTriangular OpportunityKind = "triangular"
	OpportunityCrossChain OpportunityKind = "cross_chain"
)

// OpportunityStatus is the lifecycle state of an opportunity. Transitions are
// one-way; see ValidOpportunityTransitions.
type OpportunityStatus string

const (
	OpportunityDetected              OpportunityStatus = "detected"
	OpportunityValidated             OpportunityStatus = "validated"
	OpportunityExecuted              OpportunityStatus = "executed"
	OpportunityFailed                OpportunityStatus = "failed"
	OpportunityExpired               OpportunityStatus = "expired"
	OpportunityInsufficientLiquidity OpportunityStatus = "insufficient_liquidity"
)

// ValidOpportunityTransitions defines the allowed lifecycle transitions.
// Anything not listed is rejected; terminal states have no successors.
var ValidOpportunityTransitions = map[OpportunityStatus][]OpportunityStatus{
	OpportunityDetected: {
		OpportunityValidated,
		OpportunityExpired,
		OpportunityInsufficientLiquidity,
	},
	OpportunityValidated: {
		OpportunityExecuted,
		OpportunityFailed,
		OpportunityExpired,
	},
}

// CanTransition reports whether moving from one opportunity status to
// another is allowed.
func CanTransition(from, to OpportunityStatus) bool {
	for _, s := range ValidOpportunityTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s OpportunityStatus) Terminal() bool {
	return len(ValidOpportunityTransitions[s]) == 0
}

// OrderSide is the direction of a single trade leg.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ExecutionLeg is one atomic trade within a multi-step execution plan.
type ExecutionLeg struct {
	Venue  string
	Chain  string
	Pair   string
	Side   OrderSide
	Price  float64
	Amount float64 // base-asset amount
}

// Opportunity is a detected, time-bounded price discrepancy. It is created by
// a scanner, owned by the engine's opportunity table, and removed by the
// periodic cleanup once terminal and past the retention window.
type Opportunity struct {
	ID              string
	Kind            OpportunityKind
	Pair            string
	BuyVenue        string
	BuyChain        string
	SellVenue       string
	SellChain       string
	BuyPrice        float64
	SellPrice       float64
	SpreadPct       float64
	ProfitEstimate  float64 // gross, before costs
	RequiredCapital float64
	GasCostEstimate float64
	SlippageCost    float64
	NetProfit       float64 // ProfitEstimate - GasCostEstimate - SlippageCost
	Confidence      float64 // 0..1
	LiquidityScore  float64 // 0..1
	EstExecution    time.Duration
	DetectedAt      time.Time
	ValidUntil      time.Time
	Status          OpportunityStatus
	Legs            []ExecutionLeg
	RiskFactors     []string
}

// ExpiredAt reports whether the opportunity's validity window has passed at
// the given instant.
func (o Opportunity) ExpiredAt(now time.Time) bool {
	return now.After(o.ValidUntil)
}
