package rules

import (
	"context"
	"fmt"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// RelevanceChecker scores how well the project fits the fund's priority
// sectors and development goals.
type RelevanceChecker struct {
	clock core.Clock
}

func NewRelevanceChecker(clock core.Clock) *RelevanceChecker { return &RelevanceChecker{clock: clock} }

func (r *RelevanceChecker) Name() string { return "relevance" }

var prioritySectors = []string{
	"agriculture", "manufacturing", "energy", "logistics", "healthcare",
	"education", "technology", "construction",
}

var developmentKeywords = []string{
	"jobs", "export", "modernization", "infrastructure", "renewable",
	"innovation", "regional",
}

func (r *RelevanceChecker) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	started := r.clock.Now()

	score := 0.4
	sectorHits := containsAny(app.Sector, prioritySectors)
	if len(sectorHits) > 0 {
		score += 0.35
	}
	keywordHits := containsAny(app.ProjectDescription, developmentKeywords)
	score += 0.07 * float64(len(keywordHits))

	res := &domain.StageResult{
		Stage:      domain.StageRelevanceChecking,
		Status:     domain.ResultApproved,
		Score:      clamp01(score),
		Confidence: 0.75,
		Summary:    fmt.Sprintf("sector match: %d, development keywords: %d", len(sectorHits), len(keywordHits)),
		Details: map[string]any{
			"sectorMatches":  sectorHits,
			"keywordMatches": keywordHits,
		},
	}
	if len(sectorHits) == 0 {
		res.Risks = append(res.Risks, "sector outside the fund's priority list")
		res.Recommendations = []string{"document the project's development impact"}
	}
	return finishResult(res, r.clock, started), nil
}
