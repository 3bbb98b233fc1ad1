package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creditflow/creditflow/internal/checkpoint"
	"github.com/creditflow/creditflow/internal/config"
	"github.com/creditflow/creditflow/internal/coordinator"
	"github.com/creditflow/creditflow/internal/domain"
	"github.com/creditflow/creditflow/internal/evaluator"
	"github.com/creditflow/creditflow/internal/hub"
	"github.com/creditflow/creditflow/internal/models"
	"github.com/creditflow/creditflow/internal/pipeline"
	"github.com/creditflow/creditflow/internal/util"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }
func (c *testClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}
func (c *testClock) Sleep(d time.Duration) {}

func newTestMux(t *testing.T) (*http.ServeMux, *coordinator.Coordinator, checkpoint.Store) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := checkpoint.NewMemoryStore(clock)

	registry := evaluator.NewRegistry()
	for _, stage := range domain.AnalysisStages() {
		stage := stage
		registry.Register(stage, evaluator.Func{
			AgentName: string(stage),
			Fn: func(ctx context.Context, app domain.CreditApplication, prior []domain.StageResult) (*domain.StageResult, error) {
				return &domain.StageResult{
					Status:     domain.ResultApproved,
					Score:      0.9,
					Confidence: 0.9,
					Summary:    string(stage) + " passed",
				}, nil
			},
		})
	}

	retry := pipeline.RetryConfig{MaxAttempts: 3, RetryIntervalMin: time.Millisecond, RetryIntervalMax: 10 * time.Millisecond}
	pipe := pipeline.New(store, registry, config.DefaultAnalysisConfig(), retry, 3, clock)
	coord := coordinator.New(store, pipe, hub.New(hub.DefaultBufferSize), config.DefaultAnalysisConfig(), clock, 10, 50*time.Millisecond)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		coord.Shutdown(ctx)
	})

	mux := http.NewServeMux()
	NewApplicationsController(coord, store).RegisterRoutes(mux)
	return mux, coord, store
}

const createBody = `{
	"companyName": "Acme Mills",
	"projectName": "Solar expansion",
	"projectDescription": "Rooftop solar for the mill",
	"sector": "renewable energy",
	"requestedAmount": 500000,
	"durationMonths": 36,
	"annualRevenue": 2000000,
	"existingDebt": 100000
}`

func createApplication(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(createBody))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	resp, err := util.DecodeJSONBodyResponse[models.CreateApplicationResponse](rr.Result())
	if err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if resp.WorkflowID == "" {
		t.Fatal("expected a workflow id")
	}
	return resp.WorkflowID
}

func waitForTerminal(t *testing.T, store checkpoint.Store, id string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.Latest(context.Background(), id)
		if err == nil && rec.State.CurrentStage.IsTerminal() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("workflow never became terminal")
}

func TestCreateApplication(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)
}

func TestCreateApplicationValidation(t *testing.T) {
	mux, _, _ := newTestMux(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"unknown field", `{"companyName":"a","projectName":"b","requestedAmount":1,"durationMonths":1,"bogus":true}`},
		{"missing names", `{"requestedAmount":1000,"durationMonths":12}`},
		{"zero amount", `{"companyName":"a","projectName":"b","requestedAmount":0,"durationMonths":12}`},
		{"zero duration", `{"companyName":"a","projectName":"b","requestedAmount":1000,"durationMonths":0}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/applications", strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rr.Code)
		}
	}
}

func TestGetStatus(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/"+id+"/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	summary, err := util.DecodeJSONBodyResponse[coordinator.StatusSummary](rr.Result())
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if summary.CurrentStage != domain.StageCompleted {
		t.Errorf("expected completed, got %s", summary.CurrentStage)
	}
	if summary.ProgressPercent != 100 {
		t.Errorf("expected progress 100, got %d", summary.ProgressPercent)
	}
}

func TestGetStatusUnknown(t *testing.T) {
	mux, _, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/api/applications/unknown/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetReasoning(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/"+id+"/reasoning", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	resp, err := util.DecodeJSONBodyResponse[models.ReasoningResponse](rr.Result())
	if err != nil {
		t.Fatalf("decode reasoning: %v", err)
	}
	if len(resp.Entries) != 6 {
		t.Errorf("expected 6 reasoning entries, got %d", len(resp.Entries))
	}
	if resp.Entries[len(resp.Entries)-1].Agent != "decision_maker" {
		t.Errorf("expected decision_maker last, got %s", resp.Entries[len(resp.Entries)-1].Agent)
	}
}

func TestGetHistory(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/"+id+"/history", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	resp, err := util.DecodeJSONBodyResponse[models.HistoryResponse](rr.Result())
	if err != nil {
		t.Fatalf("decode history: %v", err)
	}
	// started + 5 analysis stages + decision + completed
	if len(resp.Checkpoints) != 8 {
		t.Errorf("expected 8 checkpoints, got %d", len(resp.Checkpoints))
	}
	for i, cp := range resp.Checkpoints {
		if cp.SequenceNo != int64(i+1) {
			t.Errorf("checkpoint %d has sequence %d", i, cp.SequenceNo)
		}
	}
}

func TestCancelWithoutRunningWorkflow(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)

	req := httptest.NewRequest(http.MethodPost, "/api/applications/"+id+"/cancel", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a finished workflow, got %d", rr.Code)
	}
}

func TestStreamEventsTerminalSnapshot(t *testing.T) {
	mux, _, store := newTestMux(t)
	id := createApplication(t, mux)
	waitForTerminal(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/applications/"+id+"/events", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "event: initial_state") {
		t.Errorf("expected an initial_state event, got %q", body)
	}
	// The snapshot payload is well-formed JSON carrying the terminal stage.
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.TransitionEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if !ev.Stage.IsTerminal() {
			t.Errorf("expected terminal snapshot stage, got %s", ev.Stage)
		}
	}
}

func TestStreamEventsUnknownWorkflow(t *testing.T) {
	mux, _, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/api/applications/unknown/events", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	mux, _, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
