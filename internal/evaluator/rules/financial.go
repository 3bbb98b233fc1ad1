package rules

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// FinancialAnalyzer scores financial stability from declared revenue,
// existing debt and the serviceability of the requested facility.
type FinancialAnalyzer struct {
	clock core.Clock
}

func NewFinancialAnalyzer(clock core.Clock) *FinancialAnalyzer { return &FinancialAnalyzer{clock: clock} }

func (f *FinancialAnalyzer) Name() string { return "financial" }

func (f *FinancialAnalyzer) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	started := f.clock.Now()

	var risks []string
	score := 0.5

	if app.AnnualRevenue <= 0 {
		risks = append(risks, "no revenue history provided")
		score = 0.2
	} else {
		// Debt burden after the new facility.
		totalDebt := app.ExistingDebt + app.RequestedAmount
		debtToRevenue := totalDebt / app.AnnualRevenue
		switch {
		case debtToRevenue <= 0.5:
			score = 0.9
		case debtToRevenue <= 1:
			score = 0.75
		case debtToRevenue <= 2:
			score = 0.55
			risks = append(risks, fmt.Sprintf("post-facility debt is %.1fx revenue", debtToRevenue))
		default:
			score = 0.3
			risks = append(risks, fmt.Sprintf("post-facility debt is %.1fx revenue", debtToRevenue))
		}

		// Serviceability of the monthly installment.
		if app.DurationMonths > 0 {
			installment := app.RequestedAmount / float64(app.DurationMonths)
			if installment > app.AnnualRevenue/12*0.4 {
				score -= 0.15
				risks = append(risks, "installment above 40% of monthly revenue")
			}
		}
	}

	res := &domain.StageResult{
		Stage:      domain.StageFinancialAnalyzing,
		Status:     domain.ResultApproved,
		Score:      clamp01(score),
		Confidence: 0.8,
		Summary:    fmt.Sprintf("financial stability score %.2f", clamp01(score)),
		Details: map[string]any{
			"annualRevenue": app.AnnualRevenue,
			"existingDebt":  app.ExistingDebt,
		},
		Risks: risks,
	}
	if len(risks) > 0 {
		res.Recommendations = []string{"request audited statements for the last two fiscal years"}
	}
	return finishResult(res, f.clock, started), nil
}
