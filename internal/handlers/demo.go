package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"marketplace-service/internal/service"
)

// DemoHandler handles demo-related HTTP requests
type DemoHandler struct {
	demoGenerator *service.DemoLeadGenerator
}

// NewDemoHandler creates a new demo handler
func NewDemoHandler(demoGenerator *service.DemoLeadGenerator) *DemoHandler {
	return &DemoHandler{
		demoGenerator: demoGenerator,
	}
}

// RegisterRoutes sets up demo HTTP routes
func (h *DemoHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/demo/start", h.StartDemo).Methods("POST")
	router.HandleFunc("/demo/stop", h.StopDemo).Methods("POST")
	router.HandleFunc("/demo/status", h.GetDemoStatus).Methods("GET")
}

// StartDemo starts the demo lead generator
func (h *DemoHandler) StartDemo(w http.ResponseWriter, r *http.Request) {
	h.demoGenerator.Start()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "started",
		"message": "Demo lead generator started",
	})
}

// StopDemo stops the demo lead generator
func (h *DemoHandler) StopDemo(w http.ResponseWriter, r *http.Request) {
	h.demoGenerator.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "stopped",
		"message": "Demo lead generator stopped",
	})
}

// GetDemoStatus returns the current demo status
func (h *DemoHandler) GetDemoStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.demoGenerator.IsRunning(),
		"status":  "ok",
	})
}
