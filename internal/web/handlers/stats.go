package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diegod088/bot-bens11-sub000/internal/logger"
)

// StatsHandler serves the dashboard numbers.
type StatsHandler struct {
	repo StatsRepository
	log  *logger.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(repo StatsRepository) *StatsHandler {
	return &StatsHandler{repo: repo, log: logger.Component("stats")}
}

// GetStats returns user, download and revenue totals.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("stats: query failed")
		http.Error(w, `{"error":"stats unavailable"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		_ = err // Client disconnected
	}
}
