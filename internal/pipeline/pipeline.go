package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/creditflow/creditflow/internal/checkpoint"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/decision"
	"github.com/creditflow/creditflow/internal/domain"
	"github.com/creditflow/creditflow/internal/evaluator"
)

var (
	// ErrTerminal means the workflow already reached Completed, Errored or
	// Rejected and accepts no further transitions.
	ErrTerminal = errors.New("pipeline: workflow is in a terminal state")
	// ErrConflict means another driving loop won the checkpoint write for
	// this transition. The caller must stop driving and re-read state.
	ErrConflict = errors.New("pipeline: concurrent writer detected")
	// ErrPersistence means the checkpoint store stayed unavailable through
	// all write retries.
	ErrPersistence = errors.New("pipeline: checkpoint store unavailable")
)

// stageOrder is the fixed adjacency table of the linear chain. Errored and
// Rejected are reachable from any stage and have no successors.
var stageOrder = map[domain.Stage]domain.Stage{
	domain.StageStarted:            domain.StageValidating,
	domain.StageValidating:         domain.StageLegalChecking,
	domain.StageLegalChecking:      domain.StageRiskAnalyzing,
	domain.StageRiskAnalyzing:      domain.StageRelevanceChecking,
	domain.StageRelevanceChecking:  domain.StageFinancialAnalyzing,
	domain.StageFinancialAnalyzing: domain.StageDecisionMaking,
	domain.StageDecisionMaking:     domain.StageCompleted,
}

// Pipeline owns all WorkflowState mutation. Each Advance call performs one
// stage transition and durably checkpoints it before the new state becomes
// observable.
type Pipeline struct {
	store          checkpoint.Store
	registry       *evaluator.Registry
	analysisCfg    *config.AnalysisConfig
	retry          RetryConfig
	appendAttempts int
	clock          core.Clock
}

func New(store checkpoint.Store, registry *evaluator.Registry, analysisCfg *config.AnalysisConfig, retry RetryConfig, appendAttempts int, clock core.Clock) *Pipeline {
	if appendAttempts <= 0 {
		appendAttempts = 1
	}
	return &Pipeline{
		store:          store,
		registry:       registry,
		analysisCfg:    analysisCfg,
		retry:          retry,
		appendAttempts: appendAttempts,
		clock:          clock,
	}
}

// Advance performs one stage transition for the workflow: it determines
// the next stage from the latest durable checkpoint, invokes that stage's
// evaluator (unless a cached output already exists), and commits the
// transition. Returns the new state and the transition event to publish.
func (p *Pipeline) Advance(ctx context.Context, workflowID string) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	rec, err := p.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	state := rec.State
	if state.CurrentStage.IsTerminal() {
		return state, nil, ErrTerminal
	}
	if err := ctx.Err(); err != nil {
		return state, nil, err
	}

	target, ok := stageOrder[state.CurrentStage]
	if !ok {
		return state, nil, fmt.Errorf("no transition defined from stage %s", state.CurrentStage)
	}

	switch target {
	case domain.StageCompleted:
		return p.complete(ctx, state, rec.SequenceNo)
	case domain.StageDecisionMaking:
		return p.decide(ctx, state, rec.SequenceNo)
	default:
		return p.evaluate(ctx, state, rec.SequenceNo, target)
	}
}

// evaluate runs an analysis stage's evaluator with bounded retries and
// commits the resulting transition.
func (p *Pipeline) evaluate(ctx context.Context, state *domain.WorkflowState, seq int64, target domain.Stage) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	res := state.Output(target)
	cached := res != nil
	if cached {
		// Already executed for this workflow; resume without re-invoking.
		slog.InfoContext(ctx, "Reusing checkpointed stage output", "workflow_id", state.WorkflowID, "stage", target)
	} else {
		var err error
		res, err = p.runEvaluator(ctx, state, target)
		if err != nil {
			return state, nil, err
		}
	}

	switch res.Status {
	case domain.ResultRejected:
		state.CurrentStage = domain.StageRejected
		state.StatusReason = res.Summary
	case domain.ResultError:
		state.CurrentStage = domain.StageErrored
		state.StatusReason = res.Summary
	default:
		state.CurrentStage = target
		state.ProgressPercent = p.analysisCfg.ProgressFor(target, state.ProgressPercent)
	}
	state.SetOutput(*res)
	if !cached {
		agent := string(target)
		if ev, ok := p.registry.Get(target); ok {
			agent = ev.Name()
		}
		state.AddReasoning(agent, res.Summary, res.Confidence, p.clock.Now().UTC())
	}

	ev := &domain.TransitionEvent{
		Type:   domain.EventStageUpdate,
		Stage:  state.CurrentStage,
		Result: res,
	}
	return p.commit(ctx, state, seq+1, ev)
}

// decide runs the decision aggregator exactly once and enters
// DecisionMaking with its output checkpointed.
func (p *Pipeline) decide(ctx context.Context, state *domain.WorkflowState, seq int64) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	res := state.Output(domain.StageDecisionMaking)
	if res == nil {
		started := p.clock.Now()
		fd := decision.Aggregate(p.analysisCfg, state.Application, state.StageOutputs, started.UTC())
		res = &domain.StageResult{
			Stage:        domain.StageDecisionMaking,
			Status:       domain.ResultApproved,
			Score:        fd.OverallScore,
			Confidence:   fd.Confidence,
			Summary:      fmt.Sprintf("decision %s at overall score %.2f (%s risk)", fd.Status, fd.OverallScore, fd.RiskLevel),
			AttemptCount: 1,
			Elapsed:      p.clock.Now().Sub(started),
			CompletedAt:  p.clock.Now().UTC(),
			Decision:     fd,
		}
		state.SetOutput(*res)
		state.AddReasoning("decision_maker", fd.Reasoning, fd.Confidence, p.clock.Now().UTC())
	}

	state.CurrentStage = domain.StageDecisionMaking
	state.ProgressPercent = p.analysisCfg.ProgressFor(domain.StageDecisionMaking, state.ProgressPercent)

	ev := &domain.TransitionEvent{
		Type:   domain.EventStageUpdate,
		Stage:  state.CurrentStage,
		Result: res,
	}
	return p.commit(ctx, state, seq+1, ev)
}

// complete materializes the aggregator's output as the final decision; the
// only path into Completed.
func (p *Pipeline) complete(ctx context.Context, state *domain.WorkflowState, seq int64) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	out := state.Output(domain.StageDecisionMaking)
	if out == nil || out.Decision == nil {
		return state, nil, fmt.Errorf("workflow %s has no decision output to complete with", state.WorkflowID)
	}
	state.FinalDecision = out.Decision
	state.CurrentStage = domain.StageCompleted
	state.ProgressPercent = p.analysisCfg.ProgressFor(domain.StageCompleted, state.ProgressPercent)
	state.StatusReason = string(out.Decision.Status)

	ev := &domain.TransitionEvent{
		Type:     domain.EventFinalDecision,
		Stage:    state.CurrentStage,
		Decision: out.Decision,
	}
	return p.commit(ctx, state, seq+1, ev)
}

// Terminate settles a non-terminal workflow into Errored with the given
// reason. Used for cooperative cancellation and for unrecoverable
// coordinator-side failures.
func (p *Pipeline) Terminate(ctx context.Context, workflowID, reason string) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	rec, err := p.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	state := rec.State
	if state.CurrentStage.IsTerminal() {
		return state, nil, ErrTerminal
	}
	state.CurrentStage = domain.StageErrored
	state.StatusReason = reason

	ev := &domain.TransitionEvent{
		Type:         domain.EventStageUpdate,
		Stage:        state.CurrentStage,
		StatusReason: reason,
	}
	return p.commit(ctx, state, rec.SequenceNo+1, ev)
}

// runEvaluator invokes the registered evaluator for the stage with bounded
// exponential backoff. Contract violations get exactly one retry; results
// with unretryable failures turn into an error-status output so the
// failure is recorded as a stage output before the workflow errors.
func (p *Pipeline) runEvaluator(ctx context.Context, state *domain.WorkflowState, target domain.Stage) (*domain.StageResult, error) {
	ev, ok := p.registry.Get(target)
	if !ok {
		return errorResult(target, 1, fmt.Sprintf("no evaluator registered for stage %s", target), p.clock), nil
	}

	prior := make([]domain.StageResult, len(state.StageOutputs))
	copy(prior, state.StageOutputs)

	contractRetried := false
	for attempt := 1; ; attempt++ {
		res, err := ev.Evaluate(ctx, state.Application, prior)
		if err == nil {
			if verr := evaluator.ValidateResult(res); verr != nil {
				slog.WarnContext(ctx, "Evaluator violated result contract", "workflow_id", state.WorkflowID, "stage", target, "attempt", attempt, "error", verr)
				if contractRetried {
					return errorResult(target, attempt, verr.Error(), p.clock), nil
				}
				contractRetried = true
				if err := p.backoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			res.Stage = target
			res.AttemptCount = attempt
			res.CompletedAt = p.clock.Now().UTC()
			return res, nil
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		if !evaluator.IsTransient(err) {
			slog.ErrorContext(ctx, "Evaluator failed permanently", "workflow_id", state.WorkflowID, "stage", target, "attempt", attempt, "error", err)
			return errorResult(target, attempt, err.Error(), p.clock), nil
		}
		if attempt >= p.retry.MaxAttempts {
			slog.ErrorContext(ctx, "Evaluator retries exhausted", "workflow_id", state.WorkflowID, "stage", target, "attempts", attempt, "error", err)
			return errorResult(target, attempt, fmt.Sprintf("retries exhausted: %v", err), p.clock), nil
		}
		slog.WarnContext(ctx, "Evaluator failed, retrying", "workflow_id", state.WorkflowID, "stage", target, "attempt", attempt, "error", err)
		if err := p.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (p *Pipeline) backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.retry.Backoff(attempt)):
		return nil
	}
}

// commit writes the checkpoint for the transition. The transition is not
// observable until the append succeeds; a sequence conflict means another
// writer advanced the workflow and this transition is discarded.
func (p *Pipeline) commit(ctx context.Context, state *domain.WorkflowState, seq int64, ev *domain.TransitionEvent) (*domain.WorkflowState, *domain.TransitionEvent, error) {
	state.UpdatedAt = p.clock.Now().UTC()

	rec := &domain.CheckpointRecord{
		WorkflowID: state.WorkflowID,
		SequenceNo: seq,
		State:      state,
		Metadata:   map[string]string{"stage": string(state.CurrentStage)},
	}

	var err error
	for attempt := 1; attempt <= p.appendAttempts; attempt++ {
		err = p.store.Append(ctx, rec)
		if err == nil {
			break
		}
		if errors.Is(err, checkpoint.ErrSequenceConflict) {
			return state, nil, ErrConflict
		}
		slog.WarnContext(ctx, "Checkpoint append failed, retrying", "workflow_id", state.WorkflowID, "sequence_no", seq, "attempt", attempt, "error", err)
		if attempt < p.appendAttempts {
			if werr := p.backoff(ctx, attempt); werr != nil {
				return state, nil, werr
			}
		}
	}
	if err != nil {
		return state, nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Transition checkpointed", "workflow_id", state.WorkflowID, "stage", state.CurrentStage, "sequence_no", seq, "progress", state.ProgressPercent)

	ev.WorkflowID = state.WorkflowID
	ev.SequenceNo = seq
	ev.ProgressPercent = state.ProgressPercent
	if ev.StatusReason == "" {
		ev.StatusReason = state.StatusReason
	}
	ev.Timestamp = state.UpdatedAt
	return state, ev, nil
}

func errorResult(stage domain.Stage, attempts int, summary string, clock core.Clock) *domain.StageResult {
	return &domain.StageResult{
		Stage:        stage,
		Status:       domain.ResultError,
		Summary:      summary,
		AttemptCount: attempts,
		CompletedAt:  clock.Now().UTC(),
	}
}
