package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/toprank/internal/domain/leaderboard"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/logger"
)

// ContestDependencies defines the interface for contest reads and participation.
type ContestDependencies interface {
	Contests(ctx context.Context) ([]model.Contest, error)
	Contest(ctx context.Context, contestID string) (leaderboard.ContestDetail, error)
	JoinContest(ctx context.Context, contestID, userID, eventCode string) error
}

type participateRequest struct {
	UserID    string `json:"userId" validate:"required,max=128"`
	EventCode string `json:"eventCode"`
}

// contestResponse is the read shape of a contest. The event code is never exposed.
type contestResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status,omitempty"`
	ProblemIDs   []string `json:"problems"`
	Participants []string `json:"participants"`
}

type contestDetailResponse struct {
	contestResponse
	ProblemDetails []problemResponse `json:"problemDetails"`
}

func newContestResponse(c model.Contest) contestResponse {
	return contestResponse{
		ID:           c.ID,
		Name:         c.Name,
		Status:       c.Status,
		ProblemIDs:   c.ProblemIDs,
		Participants: c.Participants,
	}
}

// ContestHandler handles contest requests.
type ContestHandler struct {
	deps   ContestDependencies
	logger logger.Logger
}

// NewContestHandler creates a new contest handler.
func NewContestHandler(deps ContestDependencies, l logger.Logger) *ContestHandler {
	return &ContestHandler{deps: deps, logger: l}
}

// HandleList handles GET /contests?status=S. An empty or "all" status lists every contest.
func (h *ContestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	contests, err := h.deps.Contests(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.list_contests", err)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	out := make([]contestResponse, 0, len(contests))
	for _, c := range contests {
		if status != "" && status != "all" && c.Status != status {
			continue
		}
		out = append(out, newContestResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /contests/{contestID}.
func (h *ContestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.deps.Contest(r.Context(), r.PathValue("contestID"))
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "api.get_contest", err)
		return
	}
	out := contestDetailResponse{
		contestResponse: newContestResponse(detail.Contest),
		ProblemDetails:  make([]problemResponse, 0, len(detail.Problems)),
	}
	for _, p := range detail.Problems {
		out.ProblemDetails = append(out.ProblemDetails, newProblemResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleParticipate handles POST /contests/{contestID}/participate.
func (h *ContestHandler) HandleParticipate(w http.ResponseWriter, r *http.Request) {
	const op = "api.participate"
	var req participateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	if err := h.deps.JoinContest(r.Context(), r.PathValue("contestID"), req.UserID, req.EventCode); err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "joined"})
}
