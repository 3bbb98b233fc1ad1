// Package rules provides the built-in deterministic evaluators for the
// five analysis stages. They implement the rule-based part of each agent's
// logic; richer evaluators (document parsing, LLM-backed analysis) plug in
// through the same evaluator interface.
package rules

import (
	"strings"
	"time"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
	"github.com/creditflow/creditflow/internal/evaluator"
)

// Register installs every built-in evaluator into the registry.
func Register(registry *evaluator.Registry, clock core.Clock) {
	registry.Register(domain.StageValidating, NewValidator(clock))
	registry.Register(domain.StageLegalChecking, NewLegalChecker(clock))
	registry.Register(domain.StageRiskAnalyzing, NewRiskAnalyzer(clock))
	registry.Register(domain.StageRelevanceChecking, NewRelevanceChecker(clock))
	registry.Register(domain.StageFinancialAnalyzing, NewFinancialAnalyzer(clock))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsAny(text string, words []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, w := range words {
		if strings.Contains(lower, w) {
			found = append(found, w)
		}
	}
	return found
}

func finishResult(res *domain.StageResult, clock core.Clock, started time.Time) *domain.StageResult {
	res.Score = clamp01(res.Score)
	res.Confidence = clamp01(res.Confidence)
	res.Elapsed = clock.Now().Sub(started)
	return res
}
