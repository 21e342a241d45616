// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/pkg/logger"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, problemID string, dimension, limit int) ([]leaderboard.Entry, error)
	CrossDimensionLeaderboard(ctx context.Context, problemID string) (map[string][]leaderboard.Entry, error)
	ContestLeaderboard(ctx context.Context, contestID string) ([]leaderboard.ContestEntry, error)
}

// leaderboardQuery holds the parsed query of a dimension leaderboard. A
// missing dimension selects the problem's default.
type leaderboardQuery struct {
	Dimension int `validate:"gte=0"`
	Limit     int `validate:"gte=0"`
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps   LeaderboardDependencies
	logger logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, l logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps, logger: l}
}

// HandleDimension handles GET /problems/{problemID}/leaderboard?dimension=D&limit=N.
// Limits above the configured maximum are clamped.
func (h *LeaderboardHandler) HandleDimension(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	var q leaderboardQuery
	var err error
	if q.Dimension, err = queryInt(r, "dimension", 0); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if err := validateStruct(q); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}

	entries, err := h.deps.Leaderboard(r.Context(), r.PathValue("problemID"), q.Dimension, q.Limit)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAllDimensions handles GET /problems/{problemID}/leaderboard/all.
func (h *LeaderboardHandler) HandleAllDimensions(w http.ResponseWriter, r *http.Request) {
	boards, err := h.deps.CrossDimensionLeaderboard(r.Context(), r.PathValue("problemID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.get_leaderboard_all", err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// HandleContest handles GET /contests/{contestID}/leaderboard.
func (h *LeaderboardHandler) HandleContest(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.ContestLeaderboard(r.Context(), r.PathValue("contestID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.get_contest_leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
