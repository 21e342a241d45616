package api

import (
	"context"
	"net/http"

	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/logger"
)

// ProblemDependencies defines the interface for problem catalog reads.
type ProblemDependencies interface {
	Problem(ctx context.Context, id string) (model.Problem, error)
	Problems(ctx context.Context) ([]model.Problem, error)
}

// ProblemHandler handles problem catalog requests.
type ProblemHandler struct {
	deps   ProblemDependencies
	logger logger.Logger
}

// NewProblemHandler creates a new problem handler.
func NewProblemHandler(deps ProblemDependencies, l logger.Logger) *ProblemHandler {
	return &ProblemHandler{deps: deps, logger: l}
}

// HandleList handles GET /problems requests.
func (h *ProblemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	problems, err := h.deps.Problems(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.list_problems", err)
		return
	}
	out := make([]problemResponse, 0, len(problems))
	for _, p := range problems {
		out = append(out, newProblemResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /problems/{problemID} requests.
func (h *ProblemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Problem(r.Context(), r.PathValue("problemID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.get_problem", err)
		return
	}
	writeJSON(w, http.StatusOK, newProblemResponse(p))
}
