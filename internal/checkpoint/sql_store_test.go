package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/creditflow/creditflow/internal/domain"
)

func newSqlLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	file := filepath.Join(t.TempDir(), "checkpoints-test.db")
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(file)
	})

	ddl, err := os.ReadFile("../migrations/sqllite3/000001_create_checkpoints.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return NewSQLStore(db, &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)})
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := newSqlLiteStore(t)
	ctx := context.Background()

	rec := newTestRecord("wf-sql", 1, domain.StageStarted)
	rec.State.StageOutputs = []domain.StageResult{{
		Stage:      domain.StageValidating,
		Status:     domain.ResultApproved,
		Score:      0.82,
		Confidence: 0.9,
		Summary:    "all required fields present",
	}}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Latest(ctx, "wf-sql")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.SequenceNo != 1 {
		t.Errorf("expected sequence 1, got %d", got.SequenceNo)
	}
	if got.State.Application.CompanyName != "Acme Mills" {
		t.Errorf("application lost in round trip: %+v", got.State.Application)
	}
	if len(got.State.StageOutputs) != 1 || got.State.StageOutputs[0].Score != 0.82 {
		t.Errorf("stage outputs lost in round trip: %+v", got.State.StageOutputs)
	}
	if got.Metadata["stage"] != string(domain.StageStarted) {
		t.Errorf("metadata lost in round trip: %+v", got.Metadata)
	}
}

func TestSQLStoreUniqueConstraintMapsToConflict(t *testing.T) {
	store := newSqlLiteStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, newTestRecord("wf-sql", 1, domain.StageStarted)); err != nil {
		t.Fatalf("append seq 1: %v", err)
	}
	err := store.Append(ctx, newTestRecord("wf-sql", 1, domain.StageValidating))
	if !errors.Is(err, ErrSequenceConflict) {
		t.Fatalf("expected ErrSequenceConflict, got %v", err)
	}
}

func TestSQLStoreHistoryAndActive(t *testing.T) {
	store := newSqlLiteStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, newTestRecord("wf-a", 1, domain.StageStarted)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, newTestRecord("wf-a", 2, domain.StageValidating)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, newTestRecord("wf-b", 1, domain.StageCompleted)); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := store.History(ctx, "wf-a")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].SequenceNo != 1 || history[1].SequenceNo != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}

	ids, err := store.ActiveWorkflows(ctx)
	if err != nil {
		t.Fatalf("active workflows: %v", err)
	}
	if len(ids) != 1 || ids[0] != "wf-a" {
		t.Fatalf("expected only wf-a active, got %v", ids)
	}

	if _, err := store.History(ctx, "wf-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown workflow, got %v", err)
	}
}
