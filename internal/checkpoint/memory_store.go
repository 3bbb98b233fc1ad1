package checkpoint

import (
	"context"
	"sync"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// MemoryStore keeps checkpoint logs in process memory. Used by tests and
// the MEMORY database type; offers the same ordering and conflict
// semantics as the durable stores, without the durability.
type MemoryStore struct {
	mu    sync.RWMutex
	logs  map[string][]domain.CheckpointRecord
	clock core.Clock
}

func NewMemoryStore(clock core.Clock) *MemoryStore {
	return &MemoryStore{
		logs:  make(map[string][]domain.CheckpointRecord),
		clock: clock,
	}
}

func (s *MemoryStore) Append(ctx context.Context, rec *domain.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[rec.WorkflowID]
	var nextSeq int64 = 1
	if len(log) > 0 {
		nextSeq = log[len(log)-1].SequenceNo + 1
	}
	if rec.SequenceNo != nextSeq {
		return ErrSequenceConflict
	}
	rec.WrittenAt = s.clock.Now().UTC()
	stored := *rec
	stored.State = cloneState(rec.State)
	s.logs[rec.WorkflowID] = append(log, stored)
	return nil
}

func (s *MemoryStore) Latest(ctx context.Context, workflowID string) (*domain.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[workflowID]
	if !ok || len(log) == 0 {
		return nil, ErrNotFound
	}
	rec := log[len(log)-1]
	rec.State = cloneState(rec.State)
	return &rec, nil
}

func (s *MemoryStore) History(ctx context.Context, workflowID string) ([]domain.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.logs[workflowID]
	if !ok || len(log) == 0 {
		return nil, ErrNotFound
	}
	out := make([]domain.CheckpointRecord, len(log))
	for i, rec := range log {
		out[i] = rec
		out[i].State = cloneState(rec.State)
	}
	return out, nil
}

func (s *MemoryStore) ActiveWorkflows(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, log := range s.logs {
		if len(log) == 0 {
			continue
		}
		if !log[len(log)-1].State.CurrentStage.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

// cloneState deep-copies a workflow state so readers never share memory
// with the writer.
func cloneState(in *domain.WorkflowState) *domain.WorkflowState {
	if in == nil {
		return nil
	}
	out := *in
	out.StageOutputs = make([]domain.StageResult, len(in.StageOutputs))
	copy(out.StageOutputs, in.StageOutputs)
	out.Reasoning = make([]domain.AgentReasoning, len(in.Reasoning))
	copy(out.Reasoning, in.Reasoning)
	if in.FinalDecision != nil {
		fd := *in.FinalDecision
		out.FinalDecision = &fd
	}
	return &out
}
