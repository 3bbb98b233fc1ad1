package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creditflow/creditflow/internal/core"
	"github.com/creditflow/creditflow/internal/domain"
)

// SQLStore persists checkpoints in a relational table with a unique
// (workflow_id, sequence_no) constraint. The constraint is what enforces
// single-writer-per-workflow: the loser of a concurrent append violates it
// and gets ErrSequenceConflict.
type SQLStore struct {
	db    *sql.DB
	clock core.Clock
}

func NewSQLStore(db *sql.DB, clock core.Clock) *SQLStore {
	return &SQLStore{db: db, clock: clock}
}

func (s *SQLStore) Append(ctx context.Context, rec *domain.CheckpointRecord) error {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal checkpoint metadata: %w", err)
	}
	rec.WrittenAt = s.clock.Now().UTC()

	query := `
		INSERT INTO checkpoints (
			workflow_id, sequence_no, stage, state, metadata, written_at
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `
		)`
	_, err = s.db.ExecContext(ctx, query,
		rec.WorkflowID,
		rec.SequenceNo,
		string(rec.State.CurrentStage),
		string(stateJSON),
		string(metaJSON),
		formatDateInDatabase(rec.WrittenAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSequenceConflict
		}
		slog.ErrorContext(ctx, "Failed to append checkpoint", "workflow_id", rec.WorkflowID, "sequence_no", rec.SequenceNo, "error", err)
		return err
	}
	return nil
}

func (s *SQLStore) Latest(ctx context.Context, workflowID string) (*domain.CheckpointRecord, error) {
	query := `
		SELECT workflow_id, sequence_no, state, metadata, written_at
		FROM checkpoints
		WHERE workflow_id = ` + placeholder(1) + `
		ORDER BY sequence_no DESC
		LIMIT 1
	`
	rec, err := s.scanRecord(s.db.QueryRowContext(ctx, query, workflowID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQLStore) History(ctx context.Context, workflowID string) ([]domain.CheckpointRecord, error) {
	query := `
		SELECT workflow_id, sequence_no, state, metadata, written_at
		FROM checkpoints
		WHERE workflow_id = ` + placeholder(1) + `
		ORDER BY sequence_no ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CheckpointRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

func (s *SQLStore) ActiveWorkflows(ctx context.Context) ([]string, error) {
	query := `
		SELECT c.workflow_id
		FROM checkpoints c
		JOIN (
			SELECT workflow_id, MAX(sequence_no) AS max_seq
			FROM checkpoints
			GROUP BY workflow_id
		) latest ON c.workflow_id = latest.workflow_id AND c.sequence_no = latest.max_seq
		WHERE c.stage NOT IN ('completed', 'errored', 'rejected')
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanRecord(row rowScanner) (*domain.CheckpointRecord, error) {
	var rec domain.CheckpointRecord
	var stateJSON, metaJSON, writtenAt string
	if err := row.Scan(&rec.WorkflowID, &rec.SequenceNo, &stateJSON, &metaJSON, &writtenAt); err != nil {
		return nil, err
	}
	rec.State = &domain.WorkflowState{}
	if err := json.Unmarshal([]byte(stateJSON), rec.State); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	if metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint metadata: %w", err)
		}
	}
	rec.WrittenAt = parseDatabaseDate(writtenAt)
	return &rec, nil
}

// isUniqueViolation matches the duplicate-key error text of the three
// supported drivers.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
