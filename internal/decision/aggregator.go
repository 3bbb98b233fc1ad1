// Package decision combines all stage outputs into the final decision
// record. Aggregate is a pure function: given the same outputs, config and
// reference time it always produces an identical decision.
package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/domain"
)

type criticalFailure struct {
	component string
	score     float64
	threshold float64
}

// Aggregate produces the final decision from the analysis stage outputs.
// Weights, thresholds and the decision ladder come from cfg; now anchors
// the decision expiry.
func Aggregate(cfg *config.AnalysisConfig, app domain.CreditApplication, outputs []domain.StageResult, now time.Time) *domain.FinalDecision {
	scores := make(map[string]float64)
	var failures []criticalFailure
	var warnings []string

	byStage := make(map[domain.Stage]*domain.StageResult, len(outputs))
	for i := range outputs {
		byStage[outputs[i].Stage] = &outputs[i]
	}

	for _, stage := range domain.AnalysisStages() {
		key := stage.WeightKey()
		threshold := cfg.MinThresholds[key]
		out := byStage[stage]
		if out == nil || out.Status == domain.ResultError {
			scores[key] = 0
			failures = append(failures, criticalFailure{component: key, threshold: threshold})
			continue
		}
		scores[key] = out.Score
		if out.Score < threshold {
			failures = append(failures, criticalFailure{component: key, score: out.Score, threshold: threshold})
		}
		if out.Score >= 0.3 && out.Score < threshold {
			warnings = append(warnings, fmt.Sprintf("low %s score %.2f", key, out.Score))
		}
	}

	// Sum in stage order. Map iteration order would randomize float
	// rounding and the same inputs must always produce the same bits.
	var weighted float64
	for _, stage := range domain.AnalysisStages() {
		key := stage.WeightKey()
		weighted += scores[key] * cfg.Weights[key]
	}
	overall := weighted - float64(len(failures))*cfg.CriticalPenalty
	if overall < 0 {
		overall = 0
	}

	status, riskLevel := ladder(cfg, overall, len(failures))
	amount, confidence := amountAndConfidence(status, overall, len(failures), app.RequestedAmount)

	fd := &domain.FinalDecision{
		Status:         status,
		OverallScore:   overall,
		Confidence:     confidence,
		RiskLevel:      riskLevel,
		AmountApproved: amount,
		Conditions:     conditions(riskLevel, failures, warnings),
		Reasoning:      reasoning(overall, riskLevel, scores, failures, byStage),
		ComponentScore: scores,
		ExpiresAt:      now.Add(time.Duration(expiryDays(cfg, status)) * 24 * time.Hour),
	}
	return fd
}

func ladder(cfg *config.AnalysisConfig, overall float64, failureCount int) (domain.DecisionStatus, string) {
	switch {
	case overall >= cfg.ApproveScore && failureCount == 0:
		return domain.DecisionApproved, "low"
	case overall >= cfg.ConditionalScore && failureCount <= 1:
		return domain.DecisionConditionalApproval, "moderate"
	case overall >= cfg.ReviewScore && failureCount <= 2:
		return domain.DecisionRequiresReview, "high"
	default:
		return domain.DecisionRejected, "critical"
	}
}

func amountAndConfidence(status domain.DecisionStatus, overall float64, failureCount int, requested float64) (float64, float64) {
	switch status {
	case domain.DecisionApproved:
		return requested, min(0.95, 0.7+overall*0.25)
	case domain.DecisionConditionalApproval:
		reduction := 1.0 - (float64(failureCount)*0.1 + (0.8-overall)*0.5)
		return requested * max(0.7, reduction), min(0.85, 0.5+overall*0.35)
	case domain.DecisionRequiresReview:
		return requested * max(0.5, overall), min(0.7, 0.3+overall*0.4)
	default:
		return 0, min(0.9, 0.7+(1.0-overall)*0.2)
	}
}

func expiryDays(cfg *config.AnalysisConfig, status domain.DecisionStatus) int {
	switch status {
	case domain.DecisionApproved:
		return cfg.ApprovedExpiryDays
	case domain.DecisionConditionalApproval, domain.DecisionRequiresReview:
		return cfg.ConditionalExpiryDays
	default:
		return cfg.RejectedExpiryDays
	}
}

func conditions(riskLevel string, failures []criticalFailure, warnings []string) []string {
	var out []string
	switch riskLevel {
	case "low":
		out = append(out,
			"standard credit terms",
			"monthly project progress reporting")
	case "moderate":
		out = append(out,
			"enhanced project monitoring",
			"monthly financial reporting",
			"funds restricted to declared project purposes")
	case "high":
		out = append(out,
			"collateral covering the approved amount",
			"quarterly on-site review",
			"tranche-based disbursement tied to milestones")
	default:
		out = append(out, "application does not meet the fund's criteria")
	}
	for _, f := range failures {
		out = append(out, fmt.Sprintf("remediate %s assessment (%.2f below %.2f)", f.component, f.score, f.threshold))
	}
	out = append(out, warnings...)
	return out
}

func reasoning(overall float64, riskLevel string, scores map[string]float64, failures []criticalFailure, byStage map[domain.Stage]*domain.StageResult) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall score %.2f, risk level %s, %d critical findings.", overall, riskLevel, len(failures))
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%.2f;", k, scores[k])
	}
	for _, stage := range domain.AnalysisStages() {
		if out := byStage[stage]; out != nil && out.Summary != "" {
			fmt.Fprintf(&sb, " [%s] %s.", stage.WeightKey(), out.Summary)
		}
	}
	return sb.String()
}
