package rules

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// RiskAnalyzer scores credit exposure from the requested amount, project
// duration and existing debt relative to declared revenue.
type RiskAnalyzer struct {
	clock core.Clock
}

func NewRiskAnalyzer(clock core.Clock) *RiskAnalyzer { return &RiskAnalyzer{clock: clock} }

func (r *RiskAnalyzer) Name() string { return "risk" }

func (r *RiskAnalyzer) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	started := r.clock.Now()

	score := 0.8
	var risks []string

	if app.AnnualRevenue > 0 {
		exposure := app.RequestedAmount / app.AnnualRevenue
		switch {
		case exposure > 3:
			score -= 0.4
			risks = append(risks, fmt.Sprintf("requested amount is %.1fx annual revenue", exposure))
		case exposure > 1.5:
			score -= 0.25
			risks = append(risks, fmt.Sprintf("requested amount is %.1fx annual revenue", exposure))
		case exposure > 0.75:
			score -= 0.1
		}
	} else {
		score -= 0.3
		risks = append(risks, "no declared annual revenue")
	}

	if app.DurationMonths > 60 {
		score -= 0.15
		risks = append(risks, "project horizon beyond five years")
	} else if app.DurationMonths > 36 {
		score -= 0.05
	}

	if app.AnnualRevenue > 0 && app.ExistingDebt > 0 {
		debtRatio := app.ExistingDebt / app.AnnualRevenue
		if debtRatio > 1 {
			score -= 0.2
			risks = append(risks, fmt.Sprintf("existing debt is %.1fx annual revenue", debtRatio))
		} else if debtRatio > 0.5 {
			score -= 0.1
		}
	}

	res := &domain.StageResult{
		Stage:      domain.StageRiskAnalyzing,
		Status:     domain.ResultApproved,
		Score:      clamp01(score),
		Confidence: 0.8,
		Summary:    fmt.Sprintf("exposure risk score %.2f with %d risk factors", clamp01(score), len(risks)),
		Details: map[string]any{
			"riskFactorCount": len(risks),
		},
		Risks: risks,
	}
	if len(risks) > 0 {
		res.Recommendations = []string{"consider collateral or a reduced facility"}
	}
	return finishResult(res, r.clock, started), nil
}
