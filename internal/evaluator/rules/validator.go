package rules

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// Validator scores form completeness and basic feasibility. It rejects the
// application outright when the score falls below the validation floor,
// which short-circuits the pipeline.
type Validator struct {
	clock core.Clock
}

func NewValidator(clock core.Clock) *Validator { return &Validator{clock: clock} }

func (v *Validator) Name() string { return "validator" }

const validationFloor = 0.6

func (v *Validator) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	started := v.clock.Now()

	var errs []string
	checks, passed := 0, 0
	check := func(ok bool, msg string) {
		checks++
		if ok {
			passed++
		} else {
			errs = append(errs, msg)
		}
	}

	check(app.CompanyName != "", "company name is required")
	check(app.ProjectName != "", "project name is required")
	check(len(app.ProjectDescription) >= 30, "project description is missing or too short")
	check(app.RequestedAmount > 0, "requested amount must be positive")
	check(app.DurationMonths > 0, "project duration must be positive")
	check(app.DurationMonths <= 120, "project duration exceeds 120 months")
	check(len(app.Documents) > 0, "no supporting documents attached")

	score := float64(passed) / float64(checks)

	// Feasibility: monthly draw against declared revenue.
	var warnings []string
	if app.RequestedAmount > 0 && app.DurationMonths > 0 && app.AnnualRevenue > 0 {
		monthly := app.RequestedAmount / float64(app.DurationMonths)
		if monthly > app.AnnualRevenue/12 {
			score -= 0.2
			warnings = append(warnings, "monthly draw exceeds monthly revenue")
		}
	}
	score = clamp01(score)

	res := &domain.StageResult{
		Stage:      domain.StageValidating,
		Status:     domain.ResultApproved,
		Score:      score,
		Confidence: 0.9,
		Summary:    fmt.Sprintf("%d of %d validation checks passed", passed, checks),
		Details: map[string]any{
			"checksTotal":  checks,
			"checksPassed": passed,
			"errors":       errs,
			"warnings":     warnings,
		},
		Risks: warnings,
	}
	if score < validationFloor {
		res.Status = domain.ResultRejected
		res.Summary = fmt.Sprintf("validation score %.2f below %.2f floor", score, validationFloor)
	}
	return finishResult(res, v.clock, started), nil
}
