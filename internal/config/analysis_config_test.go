package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/creditflow/creditflow/internal/domain"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	cfg := DefaultAnalysisConfig()
	var sum float64
	for _, w := range cfg.Weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %.4f", sum)
	}
	if len(cfg.Weights) != len(domain.AnalysisStages()) {
		t.Errorf("expected one weight per analysis stage")
	}
	for _, stage := range domain.AnalysisStages() {
		if _, ok := cfg.MinThresholds[stage.WeightKey()]; !ok {
			t.Errorf("missing threshold for %s", stage.WeightKey())
		}
	}
}

func TestLoadAnalysisConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	content := `
critical_penalty: 0.2
approve_score: 0.85
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadAnalysisConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CriticalPenalty != 0.2 {
		t.Errorf("critical penalty not overridden, got %v", cfg.CriticalPenalty)
	}
	if cfg.ApproveScore != 0.85 {
		t.Errorf("approve score not overridden, got %v", cfg.ApproveScore)
	}
	// Untouched fields keep their defaults.
	if cfg.ConditionalScore != 0.6 {
		t.Errorf("conditional score changed unexpectedly, got %v", cfg.ConditionalScore)
	}
	if cfg.Progress[domain.StageCompleted] != 100 {
		t.Errorf("progress table changed unexpectedly")
	}
}

func TestLoadAnalysisConfigMissingFile(t *testing.T) {
	if _, err := LoadAnalysisConfig("/does/not/exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestProgressForIsMonotonic(t *testing.T) {
	cfg := DefaultAnalysisConfig()

	if got := cfg.ProgressFor(domain.StageValidating, 5); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	// Terminal failure stages have no entry and keep the reached value.
	if got := cfg.ProgressFor(domain.StageErrored, 45); got != 45 {
		t.Errorf("errored must keep prior progress, got %d", got)
	}
	if got := cfg.ProgressFor(domain.StageRejected, 15); got != 15 {
		t.Errorf("rejected must keep prior progress, got %d", got)
	}
	// A stale table never moves progress backwards.
	if got := cfg.ProgressFor(domain.StageValidating, 60); got != 60 {
		t.Errorf("progress went backwards to %d", got)
	}
}
