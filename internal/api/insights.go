package api

import (
	"encoding/json"
	"net/http"

	"github.com/concierge-labs/concierge/internal/model"
)

func (s *Server) handleComputeInsights(w http.ResponseWriter, r *http.Request) {
	var req model.InsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.RootHash == "" || req.FileName == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, msgMissingParameters)
		return
	}

	result, err := s.deps.Insights.Run(r.Context(), req)
	if err != nil {
		writeFailure(w, err, "Compute failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	services, err := s.deps.Models.Services(r.Context())
	if err != nil {
		writeFailure(w, err, "Failed to fetch models")
		return
	}
	models := make([]model.ModelView, 0, len(services))
	for _, svc := range services {
		models = append(models, svc.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
