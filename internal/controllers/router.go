package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *ApplicationsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/applications", c.handleCreateApplication)
	mux.HandleFunc("GET /api/applications/{id}/status", c.handleGetStatus)
	mux.HandleFunc("GET /api/applications/{id}/reasoning", c.handleGetReasoning)
	mux.HandleFunc("GET /api/applications/{id}/history", c.handleGetHistory)
	mux.HandleFunc("POST /api/applications/{id}/cancel", c.handleCancelApplication)
	mux.HandleFunc("GET /api/applications/{id}/events", c.handleStreamEvents)
	mux.HandleFunc("GET /health", c.handleHealth)
}
