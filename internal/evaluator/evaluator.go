package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creditflow/creditflow/internal/domain"
)

// Evaluator implements one stage's business logic. The engine treats it as
// an opaque capability: it gets the immutable application snapshot plus the
// outputs of the stages that already ran, and returns a StageResult.
// Implementations should honor ctx cancellation if they block.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func struct {
	AgentName string
	Fn        func(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error)
}

func (f Func) Name() string { return f.AgentName }

func (f Func) Evaluate(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
	return f.Fn(ctx, app, prior)
}

// ErrContract marks an evaluator response that violates the result
// contract (score or confidence outside [0,1], unknown status).
var ErrContract = errors.New("evaluator: result violates contract")

// Error wraps an evaluator failure with its retry class.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient evaluator error: %v", e.Err)
	}
	return fmt.Sprintf("permanent evaluator error: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error { return &Error{Transient: true, Err: err} }

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error { return &Error{Transient: false, Err: err} }

// IsTransient reports whether err should be retried. Errors that do not
// carry a class are treated as transient, matching how the engine treats
// unknown network-ish failures.
func IsTransient(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Transient
	}
	return true
}

// ValidateResult enforces the evaluator result contract.
func ValidateResult(res *domain.StageResult) error {
	if res == nil {
		return fmt.Errorf("%w: nil result", ErrContract)
	}
	switch res.Status {
	case domain.ResultApproved, domain.ResultRejected, domain.ResultError:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrContract, res.Status)
	}
	if res.Score < 0 || res.Score > 1 {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrContract, res.Score)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrContract, res.Confidence)
	}
	return nil
}

// Registry maps each analysis stage to its registered evaluator. New
// stages require an explicit entry; there is no ad hoc dispatch.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[domain.Stage]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[domain.Stage]Evaluator)}
}

func (r *Registry) Register(stage domain.Stage, ev Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[stage] = ev
}

func (r *Registry) Get(stage domain.Stage) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.evaluators[stage]
	return ev, ok
}
