package api

import (
	"context"
	"net/http"

	"github.com/okian/toprank/internal/domain/ranking"
	"github.com/okian/toprank/pkg/logger"
)

// AdminDependencies defines the interface for maintenance operations.
type AdminDependencies interface {
	RebuildRankings(ctx context.Context) (ranking.RebuildReport, error)
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleRebuild handles POST /admin/rankings/rebuild.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.RebuildRankings(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.rebuild", err)
		return
	}
	h.logger.Info(r.Context(), "rankings rebuilt",
		logger.Int("problems", report.Problems),
		logger.Int("dimensions", report.Dimensions),
		logger.Duration("duration", report.Duration),
	)
	writeJSON(w, http.StatusOK, rebuildResponse{Status: "rebuilt", Report: report})
}
