package rules

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// LegalChecker screens the project description for prohibited activities
// and litigation markers. Prohibited activity rejects the application.
type LegalChecker struct {
	clock core.Clock
}

func NewLegalChecker(clock core.Clock) *LegalChecker { return &LegalChecker{clock: clock} }

func (l *LegalChecker) Name() string { return "legal" }

var prohibitedActivities = []string{
	"gambling", "casino", "weapons", "narcotics", "money laundering",
	"pyramid", "counterfeit",
}

var litigationMarkers = []string{
	"lawsuit", "litigation", "bankruptcy", "insolvency", "sanction",
}

func (l *LegalChecker) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	started := l.clock.Now()

	text := app.ProjectDescription + " " + app.ProjectName + " " + app.Sector
	prohibited := containsAny(text, prohibitedActivities)
	markers := containsAny(text, litigationMarkers)

	score := 0.9
	var risks []string
	for _, p := range prohibited {
		risks = append(risks, "prohibited activity: "+p)
	}
	for _, m := range markers {
		score -= 0.2
		risks = append(risks, "litigation marker: "+m)
	}

	res := &domain.StageResult{
		Stage:      domain.StageLegalChecking,
		Status:     domain.ResultApproved,
		Score:      clamp01(score),
		Confidence: 0.85,
		Summary:    "no legal impediments found",
		Details: map[string]any{
			"prohibitedMatches": prohibited,
			"litigationMarkers": markers,
		},
		Risks: risks,
	}
	if len(prohibited) > 0 {
		res.Status = domain.ResultRejected
		res.Score = 0
		res.Summary = fmt.Sprintf("prohibited activity detected: %v", prohibited)
	} else if len(markers) > 0 {
		res.Summary = fmt.Sprintf("%d litigation markers found", len(markers))
		res.Recommendations = []string{"request court and registry extracts before disbursement"}
	}
	return finishResult(res, l.clock, started), nil
}
