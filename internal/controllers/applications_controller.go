package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/creditflow/creditflow/internal/checkpoint"
	"github.com/creditflow/creditflow/internal/coordinator"
	"github.com/creditflow/creditflow/internal/domain"
	"github.com/creditflow/creditflow/internal/models"
)

// ApplicationsController holds dependencies for the application HTTP endpoints.
type ApplicationsController struct {
	Coordinator *coordinator.Coordinator
	Store       checkpoint.Store
}

func NewApplicationsController(coord *coordinator.Coordinator, store checkpoint.Store) *ApplicationsController {
	return &ApplicationsController{Coordinator: coord, Store: store}
}

func (c *ApplicationsController) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateApplicationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if err := validateCreateApplication(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app := domain.CreditApplication{
		CompanyName:        req.CompanyName,
		ProjectName:        req.ProjectName,
		ProjectDescription: req.ProjectDescription,
		Sector:             req.Sector,
		RequestedAmount:    req.RequestedAmount,
		DurationMonths:     req.DurationMonths,
		AnnualRevenue:      req.AnnualRevenue,
		ExistingDebt:       req.ExistingDebt,
		Documents:          req.Documents,
	}

	id, err := c.Coordinator.Start(r.Context(), app)
	if err != nil {
		slog.Error("Failed to start application workflow", "error", err)
		http.Error(w, "failed to create application", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.CreateApplicationResponse{WorkflowID: id})
}

func validateCreateApplication(req models.CreateApplicationRequest) error {
	if req.CompanyName == "" || req.ProjectName == "" {
		return errors.New("companyName and projectName are required")
	}
	if req.RequestedAmount <= 0 {
		return errors.New("requestedAmount must be positive")
	}
	if req.DurationMonths <= 0 {
		return errors.New("durationMonths must be positive")
	}
	return nil
}

func (c *ApplicationsController) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	summary, err := c.Coordinator.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load status", "workflow_id", id, "error", err)
		http.Error(w, "failed to load status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}

func (c *ApplicationsController) handleGetReasoning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	entries, err := c.Coordinator.Reasoning(r.Context(), id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load reasoning", "workflow_id", id, "error", err)
		http.Error(w, "failed to load reasoning", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.ReasoningResponse{WorkflowID: id, Entries: entries})
}

func (c *ApplicationsController) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	records, err := c.Store.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load history", "workflow_id", id, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	resp := models.HistoryResponse{WorkflowID: id, Checkpoints: make([]models.HistoryEntry, 0, len(records))}
	for _, rec := range records {
		resp.Checkpoints = append(resp.Checkpoints, models.HistoryEntry{
			SequenceNo: rec.SequenceNo,
			Stage:      rec.State.CurrentStage,
			WrittenAt:  rec.WrittenAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (c *ApplicationsController) handleCancelApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ok := c.Coordinator.Cancel(id)
	if !ok {
		http.Error(w, "no running workflow for id", http.StatusConflict)
		return
	}
	slog.InfoContext(r.Context(), "Cancellation requested", "workflow_id", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.CancelApplicationResponse{OK: true})
}

// handleStreamEvents serves the live transition feed over server-sent
// events. The first event is always an initial_state snapshot; a terminal
// snapshot ends the stream immediately.
func (c *ApplicationsController) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := c.Coordinator.Subscribe(r.Context(), id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			http.Error(w, "application not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to subscribe", "workflow_id", id, "error", err)
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				slog.Debug("Subscriber connection lost", "workflow_id", id, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev domain.TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}

func (c *ApplicationsController) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := c.Store.ActiveWorkflows(ctx); err != nil {
		http.Error(w, "checkpoint store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
