package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/okian/toprank/internal/domain/fitness"
	"github.com/okian/toprank/internal/domain/model"
)

type problemRow struct {
	ID               string         `gorm:"primaryKey;size:64"`
	Name             string         `gorm:"size:255"`
	Kind             string         `gorm:"size:32;not null"`
	Dimensions       datatypes.JSON `gorm:"not null"`
	Lower            float64        `gorm:"not null"`
	Upper            float64        `gorm:"not null"`
	Status           string         `gorm:"size:16;index"`
	Category         string         `gorm:"size:64"`
	Level            string         `gorm:"size:32"`
	Owner            string         `gorm:"size:64"`
	TotalSubmissions int            `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (problemRow) TableName() string { return "problems" }

type problemCounterRow struct {
	ProblemID string `gorm:"primaryKey;size:64"`
	Dimension int    `gorm:"primaryKey"`
	Total     int    `gorm:"not null;default:0"`
}

func (problemCounterRow) TableName() string { return "problem_submission_counters" }

type userRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:255"`
	Email       string `gorm:"size:255"`
	Institution string `gorm:"size:255"`
	Country     string `gorm:"size:64"`
	CreatedAt   time.Time
}

func (userRow) TableName() string { return "users" }

type submissionRow struct {
	ID           string         `gorm:"primaryKey;size:36"`
	UserID       string         `gorm:"size:64;index"`
	ProblemID    string         `gorm:"size:64;index:idx_submission_key"`
	Dimension    int            `gorm:"index:idx_submission_key"`
	Solution     datatypes.JSON `gorm:"not null"`
	Score        *float64
	Status       string `gorm:"size:16;index:idx_submission_key"`
	ErrorMessage string
	SubmittedAt  time.Time `gorm:"index"`
	EvaluatedAt  *time.Time
}

func (submissionRow) TableName() string { return "submissions" }

type dimensionRankRow struct {
	ProblemID string  `gorm:"primaryKey;size:64"`
	Dimension int     `gorm:"primaryKey"`
	UserID    string  `gorm:"primaryKey;size:64;index"`
	Rank      int     `gorm:"not null"`
	BestScore float64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (dimensionRankRow) TableName() string { return "dimension_ranks" }

type overallRankRow struct {
	ProblemID string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64;index"`
	Rank      int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (overallRankRow) TableName() string { return "overall_ranks" }

type contestRow struct {
	ID         string         `gorm:"primaryKey;size:64"`
	Name       string         `gorm:"size:255"`
	ProblemIDs datatypes.JSON `gorm:"not null"`
	EventCode  string         `gorm:"size:64"`
	Status     string         `gorm:"size:16"`
	CreatedAt  time.Time
}

func (contestRow) TableName() string { return "contests" }

type participantRow struct {
	ContestID string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64"`
	JoinedAt  time.Time
}

func (participantRow) TableName() string { return "contest_participants" }

func allModels() []any {
	return []any{
		&problemRow{},
		&problemCounterRow{},
		&userRow{},
		&submissionRow{},
		&dimensionRankRow{},
		&overallRankRow{},
		&contestRow{},
		&participantRow{},
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func fromProblem(p model.Problem) (problemRow, error) {
	dims, err := toJSON(p.Dimensions)
	if err != nil {
		return problemRow{}, fmt.Errorf("encode dimensions: %w", err)
	}
	return problemRow{
		ID:               p.ID,
		Name:             p.Name,
		Kind:             p.Kind.String(),
		Dimensions:       dims,
		Lower:            p.Lower,
		Upper:            p.Upper,
		Status:           string(p.Status),
		Category:         p.Category,
		Level:            p.Level,
		Owner:            p.Owner,
		TotalSubmissions: p.TotalSubmissions,
	}, nil
}

func (r problemRow) toModel(counters []problemCounterRow) (model.Problem, error) {
	kind, err := fitness.ParseKind(r.Kind)
	if err != nil {
		return model.Problem{}, fmt.Errorf("problem %s: %w", r.ID, err)
	}
	var dims []int
	if err := json.Unmarshal(r.Dimensions, &dims); err != nil {
		return model.Problem{}, fmt.Errorf("problem %s: decode dimensions: %w", r.ID, err)
	}
	p := model.Problem{
		ID:                   r.ID,
		Name:                 r.Name,
		Kind:                 kind,
		Dimensions:           dims,
		Lower:                r.Lower,
		Upper:                r.Upper,
		Status:               model.ProblemStatus(r.Status),
		Category:             r.Category,
		Level:                r.Level,
		Owner:                r.Owner,
		TotalSubmissions:     r.TotalSubmissions,
		DimensionSubmissions: make(map[int]int, len(counters)),
	}
	for _, c := range counters {
		p.DimensionSubmissions[c.Dimension] = c.Total
	}
	return p, nil
}

func fromSubmission(s model.Submission) (submissionRow, error) {
	sol, err := toJSON(s.Solution)
	if err != nil {
		return submissionRow{}, fmt.Errorf("encode solution: %w", err)
	}
	return submissionRow{
		ID:           s.ID,
		UserID:       s.UserID,
		ProblemID:    s.ProblemID,
		Dimension:    s.Dimension,
		Solution:     sol,
		Score:        s.Score,
		Status:       string(s.Status),
		ErrorMessage: s.ErrorMessage,
		SubmittedAt:  s.SubmittedAt,
		EvaluatedAt:  s.EvaluatedAt,
	}, nil
}

func (r submissionRow) toModel() (model.Submission, error) {
	var sol []float64
	if err := json.Unmarshal(r.Solution, &sol); err != nil {
		return model.Submission{}, fmt.Errorf("submission %s: decode solution: %w", r.ID, err)
	}
	return model.Submission{
		ID:           r.ID,
		UserID:       r.UserID,
		ProblemID:    r.ProblemID,
		Dimension:    r.Dimension,
		Solution:     sol,
		Score:        r.Score,
		Status:       model.SubmissionStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
		SubmittedAt:  r.SubmittedAt,
		EvaluatedAt:  r.EvaluatedAt,
	}, nil
}

func (r userRow) toModel() model.User {
	return model.User{ID: r.ID, Name: r.Name, Email: r.Email, Institution: r.Institution, Country: r.Country}
}

func (r contestRow) toModel(participants []participantRow) (model.Contest, error) {
	var ids []string
	if err := json.Unmarshal(r.ProblemIDs, &ids); err != nil {
		return model.Contest{}, fmt.Errorf("contest %s: decode problems: %w", r.ID, err)
	}
	c := model.Contest{
		ID:           r.ID,
		Name:         r.Name,
		ProblemIDs:   ids,
		EventCode:    r.EventCode,
		Status:       r.Status,
		Participants: make([]string, 0, len(participants)),
	}
	for _, p := range participants {
		c.Participants = append(c.Participants, p.UserID)
	}
	return c, nil
}

// assemble groups rank rows into per (user, problem) records.
func assemble(dims []dimensionRankRow, overall []overallRankRow) []model.RankingRecord {
	type key struct{ user, problem string }
	idx := make(map[key]int)
	var out []model.RankingRecord
	for _, d := range dims {
		k := key{d.UserID, d.ProblemID}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, model.RankingRecord{
				UserID:         d.UserID,
				ProblemID:      d.ProblemID,
				DimensionRanks: make(map[int]int),
				BestScores:     make(map[int]float64),
			})
		}
		out[i].DimensionRanks[d.Dimension] = d.Rank
		out[i].BestScores[d.Dimension] = d.BestScore
		if d.UpdatedAt.After(out[i].UpdatedAt) {
			out[i].UpdatedAt = d.UpdatedAt
		}
	}
	for _, o := range overall {
		i, ok := idx[key{o.UserID, o.ProblemID}]
		if !ok {
			continue
		}
		rank := o.Rank
		out[i].OverallRank = &rank
		if o.UpdatedAt.After(out[i].UpdatedAt) {
			out[i].UpdatedAt = o.UpdatedAt
		}
	}
	return out
}
