package domain

import "time"

// DecisionStatus is the final verdict on an application.
type DecisionStatus string

const (
	DecisionApproved            DecisionStatus = "approved"
	DecisionConditionalApproval DecisionStatus = "conditional_approval"
	DecisionRequiresReview      DecisionStatus = "requires_review"
	DecisionRejected            DecisionStatus = "rejected"
)

// FinalDecision is the terminal record produced by the decision aggregator.
type FinalDecision struct {
	Status         DecisionStatus     `json:"status"`
	OverallScore   float64            `json:"overallScore"`
	Confidence     float64            `json:"confidence"`
	RiskLevel      string             `json:"riskLevel"`
	AmountApproved float64            `json:"amountApproved"`
	Conditions     []string           `json:"conditions,omitempty"`
	Reasoning      string             `json:"reasoning"`
	ComponentScore map[string]float64 `json:"componentScores,omitempty"`
	ExpiresAt      time.Time          `json:"expiresAt"`
}
