package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	service "github.com/okian/toprank/internal/app"
	"github.com/okian/toprank/internal/domain/dedupe"
	"github.com/okian/toprank/pkg/logger"
	"github.com/okian/toprank/pkg/metrics"
)

// SubmissionDependencies defines the interface for submission processing.
type SubmissionDependencies interface {
	Submit(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
}

// submitRequest mirrors the body of POST /problems/{problemID}/submit.
type submitRequest struct {
	UserID    string          `json:"userId" validate:"required,max=128"`
	Dimension int             `json:"dimension" validate:"required,gt=0,lte=10000"`
	Solution  json.RawMessage `json:"solution" validate:"required"`
}

const (
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 128
	defaultIdempotencyKeys = 50_000
)

// SubmissionHandler handles solution submissions.
type SubmissionHandler struct {
	deps    SubmissionDependencies
	limiter *submitLimiter
	seen    dedupe.Deduper
	logger  logger.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(deps SubmissionDependencies, limiter *submitLimiter, seen dedupe.Deduper, l logger.Logger) *SubmissionHandler {
	return &SubmissionHandler{deps: deps, limiter: limiter, seen: seen, logger: l}
}

// HandleSubmit handles POST /problems/{problemID}/submit requests.
func (h *SubmissionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	solution, err := parseSolution(req.Solution)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if !h.limiter.Allow(req.UserID) {
		metrics.RecordSubmitRateLimited()
		writeServiceError(r.Context(), w, h.logger, op, ErrRateLimited)
		return
	}

	// Keys are scoped per user so clients cannot collide with each other.
	key := r.Header.Get(idempotencyHeader)
	if len(key) > maxIdempotencyKeyLen {
		writeServiceError(r.Context(), w, h.logger, op,
			fmt.Errorf("%w: %s longer than %d", ErrBadRequest, idempotencyHeader, maxIdempotencyKeyLen))
		return
	}
	if key != "" {
		key = req.UserID + "/" + key
		if h.seen.SeenAndRecord(r.Context(), key) {
			metrics.RecordDuplicateSubmission()
			writeServiceError(r.Context(), w, h.logger, op, ErrDuplicateSubmission)
			return
		}
	}

	res, err := h.deps.Submit(r.Context(), service.SubmitRequest{
		UserID:    req.UserID,
		ProblemID: r.PathValue("problemID"),
		Dimension: req.Dimension,
		Solution:  solution,
	})
	if err != nil {
		if key != "" {
			h.seen.Unrecord(r.Context(), key)
		}
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
