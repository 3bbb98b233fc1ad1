package evaluator

import (
	"errors"
	"testing"

	"github.com/creditflow/creditflow/internal/domain"
)

func TestValidateResult(t *testing.T) {
	cases := []struct {
		name string
		res  *domain.StageResult
		ok   bool
	}{
		{"valid", &domain.StageResult{Status: domain.ResultApproved, Score: 0.5, Confidence: 0.5}, true},
		{"nil", nil, false},
		{"unknown status", &domain.StageResult{Status: "maybe", Score: 0.5, Confidence: 0.5}, false},
		{"score too high", &domain.StageResult{Status: domain.ResultApproved, Score: 1.2, Confidence: 0.5}, false},
		{"score negative", &domain.StageResult{Status: domain.ResultApproved, Score: -0.1, Confidence: 0.5}, false},
		{"confidence too high", &domain.StageResult{Status: domain.ResultApproved, Score: 0.5, Confidence: 1.01}, false},
		{"boundaries inclusive", &domain.StageResult{Status: domain.ResultRejected, Score: 0, Confidence: 1}, true},
	}
	for _, tc := range cases {
		err := ValidateResult(tc.res)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("%s: expected an error", tc.name)
			} else if !errors.Is(err, ErrContract) {
				t.Errorf("%s: error does not wrap ErrContract: %v", tc.name, err)
			}
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(Transient(errors.New("timeout"))) {
		t.Error("transient error classified as permanent")
	}
	if IsTransient(Permanent(errors.New("bad input"))) {
		t.Error("permanent error classified as transient")
	}
	// Unclassified failures default to retryable.
	if !IsTransient(errors.New("connection reset")) {
		t.Error("plain error should default to transient")
	}
	// The class survives wrapping.
	wrapped := errors.Join(errors.New("outer"), Permanent(errors.New("inner")))
	if IsTransient(wrapped) {
		t.Error("class lost through wrapping")
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Get(domain.StageValidating); ok {
		t.Fatal("empty registry returned an evaluator")
	}
	registry.Register(domain.StageValidating, Func{AgentName: "validator"})
	ev, ok := registry.Get(domain.StageValidating)
	if !ok || ev.Name() != "validator" {
		t.Fatalf("registered evaluator not returned, got %v %v", ev, ok)
	}
}
