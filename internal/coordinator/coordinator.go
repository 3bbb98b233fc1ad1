// Package coordinator owns the driving loops: exactly one per active
// workflow. It exposes start/status/reasoning/subscribe/cancel and the
// crash-recovery scan.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/creditflow/creditflow/internal/checkpoint"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
	"github.com/creditflow/creditflow/internal/hub"
	"github.com/creditflow/creditflow/internal/pipeline"
)

// ErrConflict means a driving loop for the workflow is already running in
// this process; the caller should poll status instead.
var ErrConflict = errors.New("coordinator: workflow already being driven")

// StatusSummary is the read model served by the status query.
type StatusSummary struct {
	WorkflowID      string       `json:"workflowId"`
	CurrentStage    domain.Stage `json:"currentStage"`
	ProgressPercent int          `json:"progressPercent"`
	Summary         string       `json:"summary"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Coordinator struct {
	store    checkpoint.Store
	pipeline *pipeline.Pipeline
	hub      *hub.Hub
	analysis *config.AnalysisConfig
	clock    core.Clock

	baseCtx  context.Context
	baseStop context.CancelFunc

	mu     sync.Mutex
	active map[string]*run
	wg     sync.WaitGroup

	// sem caps concurrently driven workflows; starts beyond the cap queue
	// on it instead of being rejected.
	sem chan struct{}

	statusCache *gocache.Cache
	statusTTL   time.Duration
}

func New(store checkpoint.Store, pipe *pipeline.Pipeline, h *hub.Hub, analysis *config.AnalysisConfig, clock core.Clock, maxActive int, statusTTL time.Duration) *Coordinator {
	if maxActive <= 0 {
		maxActive = 1
	}
	baseCtx, baseStop := context.WithCancel(context.Background())
	return &Coordinator{
		store:       store,
		pipeline:    pipe,
		hub:         h,
		analysis:    analysis,
		clock:       clock,
		baseCtx:     baseCtx,
		baseStop:    baseStop,
		active:      make(map[string]*run),
		sem:         make(chan struct{}, maxActive),
		statusCache: gocache.New(statusTTL, 10*time.Minute),
		statusTTL:   statusTTL,
	}
}

// Start accepts a new application, durably records its Started state and
// schedules the driving loop. It returns the new workflow id immediately;
// the run continues in the background.
func (c *Coordinator) Start(ctx context.Context, app domain.CreditApplication) (string, error) {
	workflowID := uuid.New().String()
	now := c.clock.Now().UTC()

	state := &domain.WorkflowState{
		WorkflowID:      workflowID,
		Application:     app,
		CurrentStage:    domain.StageStarted,
		ProgressPercent: c.analysis.ProgressFor(domain.StageStarted, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	rec := &domain.CheckpointRecord{
		WorkflowID: workflowID,
		SequenceNo: 1,
		State:      state,
		Metadata:   map[string]string{"stage": string(domain.StageStarted)},
	}
	if err := c.store.Append(ctx, rec); err != nil {
		return "", fmt.Errorf("record initial checkpoint: %w", err)
	}

	slog.InfoContext(ctx, "Workflow started", "workflow_id", workflowID, "company", app.CompanyName)
	if err := c.launch(workflowID); err != nil {
		// A fresh uuid cannot already be active; treat as internal.
		return "", err
	}
	return workflowID, nil
}

// Resume schedules the driving loop for an existing non-terminal
// workflow. A loop already running yields ErrConflict.
func (c *Coordinator) Resume(ctx context.Context, workflowID string) error {
	rec, err := c.store.Latest(ctx, workflowID)
	if err != nil {
		return err
	}
	if rec.State.CurrentStage.IsTerminal() {
		return pipeline.ErrTerminal
	}
	return c.launch(workflowID)
}

// RecoverAll resumes every workflow whose latest checkpoint is
// non-terminal. Called once at process start.
func (c *Coordinator) RecoverAll(ctx context.Context) error {
	ids, err := c.store.ActiveWorkflows(ctx)
	if err != nil {
		return fmt.Errorf("scan active workflows: %w", err)
	}
	for _, id := range ids {
		if err := c.Resume(ctx, id); err != nil && !errors.Is(err, ErrConflict) {
			slog.ErrorContext(ctx, "Failed to resume workflow", "workflow_id", id, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Resuming workflow after restart", "workflow_id", id)
	}
	return nil
}

func (c *Coordinator) launch(workflowID string) error {
	c.mu.Lock()
	if _, exists := c.active[workflowID]; exists {
		c.mu.Unlock()
		return ErrConflict
	}
	runCtx, cancel := context.WithCancel(c.baseCtx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	c.active[workflowID] = r
	c.wg.Add(1)
	c.mu.Unlock()

	go c.drive(runCtx, workflowID, r)
	return nil
}

// drive is the per-workflow loop: acquire an admission slot, then advance
// stage by stage until a terminal state, publishing every transition.
func (c *Coordinator) drive(ctx context.Context, workflowID string, r *run) {
	defer func() {
		c.mu.Lock()
		delete(c.active, workflowID)
		c.mu.Unlock()
		close(r.done)
		c.wg.Done()
	}()

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		c.settle(workflowID, "cancelled")
		return
	}

	for {
		state, ev, err := c.pipeline.Advance(ctx, workflowID)
		if ev != nil {
			c.statusCache.Delete(workflowID)
			c.hub.Publish(*ev)
		}
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrTerminal):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.settle(workflowID, "cancelled")
			case errors.Is(err, pipeline.ErrConflict):
				slog.Warn("Another writer advanced the workflow, stopping loop", "workflow_id", workflowID)
			case errors.Is(err, pipeline.ErrPersistence):
				c.settle(workflowID, "persistence_unavailable")
			default:
				slog.Error("Driving loop failed", "workflow_id", workflowID, "error", err)
				c.settle(workflowID, err.Error())
			}
			return
		}
		if state.CurrentStage.IsTerminal() {
			return
		}
	}
}

// settle moves a workflow into Errored with the given reason. Runs on a
// background context: the loop's own context is typically already
// cancelled by the time settle is needed.
func (c *Coordinator) settle(workflowID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, ev, err := c.pipeline.Terminate(ctx, workflowID, reason)
	if err != nil {
		if !errors.Is(err, pipeline.ErrTerminal) {
			slog.Error("Failed to settle workflow", "workflow_id", workflowID, "reason", reason, "error", err)
		}
		return
	}
	c.statusCache.Delete(workflowID)
	c.hub.Publish(*ev)
	slog.Info("Workflow settled", "workflow_id", workflowID, "reason", reason)
}

// Cancel requests cooperative stop: the in-flight stage finishes, no
// further stage starts and the workflow settles into Errored with reason
// cancelled. Returns false when no loop is running for the id.
func (c *Coordinator) Cancel(workflowID string) bool {
	c.mu.Lock()
	r, ok := c.active[workflowID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}

// Status returns the latest durably checkpointed state summary. Reads
// never take the write path; they tolerate at most one in-flight
// transition of staleness.
func (c *Coordinator) Status(ctx context.Context, workflowID string) (*StatusSummary, error) {
	if cached, ok := c.statusCache.Get(workflowID); ok {
		return cached.(*StatusSummary), nil
	}
	rec, err := c.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	state := rec.State
	summary := &StatusSummary{
		WorkflowID:      workflowID,
		CurrentStage:    state.CurrentStage,
		ProgressPercent: state.ProgressPercent,
		Summary:         summaryText(state),
		UpdatedAt:       state.UpdatedAt,
	}
	ttl := c.statusTTL
	if state.CurrentStage.IsTerminal() {
		ttl = gocache.NoExpiration
	}
	c.statusCache.Set(workflowID, summary, ttl)
	return summary, nil
}

// Reasoning returns the reasoning feed in stage order.
func (c *Coordinator) Reasoning(ctx context.Context, workflowID string) ([]domain.AgentReasoning, error) {
	rec, err := c.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return rec.State.Reasoning, nil
}

// Subscribe attaches a live observer. The subscription's first event is a
// synthetic initial_state snapshot of the latest durable checkpoint, so
// subscribers connecting late never miss history.
func (c *Coordinator) Subscribe(ctx context.Context, workflowID string) (*hub.Subscription, error) {
	rec, err := c.store.Latest(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	state := rec.State
	initial := domain.TransitionEvent{
		Type:            domain.EventInitialState,
		WorkflowID:      workflowID,
		Stage:           state.CurrentStage,
		SequenceNo:      rec.SequenceNo,
		ProgressPercent: state.ProgressPercent,
		Decision:        state.FinalDecision,
		StatusReason:    state.StatusReason,
		Timestamp:       state.UpdatedAt,
	}
	return c.hub.Subscribe(workflowID, initial), nil
}

// ActiveCount reports driving loops currently registered.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Shutdown cancels all driving loops and waits for them to settle, up to
// the context deadline.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.baseStop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func summaryText(state *domain.WorkflowState) string {
	if state.StatusReason != "" {
		return state.StatusReason
	}
	if n := len(state.Reasoning); n > 0 {
		return state.Reasoning[n-1].Reasoning
	}
	return "application accepted for processing"
}
