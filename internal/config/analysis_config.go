package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/creditflow/creditflow/internal/domain"
)

// AnalysisConfig carries the application-specific constants of the credit
// analysis: aggregation weights, per-stage minimum thresholds, the progress
// lookup table and the decision ladder. The built-in defaults mirror the
// values the credit committee signed off on; an optional YAML file
// overrides them.
type AnalysisConfig struct {
	// Weights keyed by analysis component (validation, legal, risk,
	// relevance, financial). Must sum to 1.0 for a meaningful score.
	Weights map[string]float64 `yaml:"weights"`
	// MinThresholds below which a component counts as a critical failure.
	MinThresholds map[string]float64 `yaml:"min_thresholds"`
	// CriticalPenalty subtracted from the weighted score per critical
	// failure.
	CriticalPenalty float64 `yaml:"critical_penalty"`
	// Progress percentage per stage.
	Progress map[domain.Stage]int `yaml:"progress"`
	// Decision ladder cut-offs on the overall score.
	ApproveScore     float64 `yaml:"approve_score"`
	ConditionalScore float64 `yaml:"conditional_score"`
	ReviewScore      float64 `yaml:"review_score"`
	// Decision validity in days per outcome.
	ApprovedExpiryDays    int `yaml:"approved_expiry_days"`
	ConditionalExpiryDays int `yaml:"conditional_expiry_days"`
	RejectedExpiryDays    int `yaml:"rejected_expiry_days"`
}

func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		Weights: map[string]float64{
			"validation": 0.15,
			"legal":      0.20,
			"risk":       0.25,
			"relevance":  0.15,
			"financial":  0.25,
		},
		MinThresholds: map[string]float64{
			"validation": 0.6,
			"legal":      0.5,
			"risk":       0.4,
			"relevance":  0.4,
			"financial":  0.4,
		},
		CriticalPenalty: 0.1,
		Progress: map[domain.Stage]int{
			domain.StageStarted:            5,
			domain.StageValidating:         15,
			domain.StageLegalChecking:      30,
			domain.StageRiskAnalyzing:      45,
			domain.StageRelevanceChecking:  60,
			domain.StageFinancialAnalyzing: 75,
			domain.StageDecisionMaking:     90,
			domain.StageCompleted:          100,
		},
		ApproveScore:          0.8,
		ConditionalScore:      0.6,
		ReviewScore:           0.4,
		ApprovedExpiryDays:    90,
		ConditionalExpiryDays: 60,
		RejectedExpiryDays:    30,
	}
}

// LoadAnalysisConfig returns the defaults overlaid with the YAML file at
// path. An empty path returns the defaults unchanged.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cfg := DefaultAnalysisConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse analysis config %s: %w", path, err)
	}
	return cfg, nil
}

// ProgressFor returns the progress percentage for a stage. Errored and
// Rejected keep the progress the workflow had already reached, so the
// caller passes the current value as fallback.
func (c *AnalysisConfig) ProgressFor(stage domain.Stage, current int) int {
	if p, ok := c.Progress[stage]; ok {
		if p < current {
			return current
		}
		return p
	}
	return current
}
