package checkpoint

import (
	"context"
	"errors"

	"github.com/creditflow/creditflow/internal/domain"
)

var (
	// ErrNotFound means no checkpoint exists for the workflow.
	ErrNotFound = errors.New("checkpoint: workflow not found")
	// ErrSequenceConflict means another writer already appended the
	// record's sequence number for that workflow.
	ErrSequenceConflict = errors.New("checkpoint: sequence number already written")
)

// Store is the durable, append-only log of workflow state transitions.
//
// Append is the atomicity point of a transition: once it returns nil the
// transition survives a restart. Appends for the same workflow are
// serialized through the record's sequence number, which the caller sets
// to latest+1; a concurrent writer that lost the race gets
// ErrSequenceConflict. Appends for different workflows are independent.
type Store interface {
	Append(ctx context.Context, rec *domain.CheckpointRecord) error
	Latest(ctx context.Context, workflowID string) (*domain.CheckpointRecord, error)
	History(ctx context.Context, workflowID string) ([]domain.CheckpointRecord, error)
	// ActiveWorkflows returns ids whose latest checkpoint is a
	// non-terminal stage, in no particular order. Used by the recovery
	// scan at process start.
	ActiveWorkflows(ctx context.Context) ([]string, error)
	Close() error
}
