// Package sqlstore implements repository.Store on top of gorm for
// sqlite and postgres.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/toprank/internal/adapters/repository"
	"github.com/okian/toprank/internal/domain/model"
	"github.com/okian/toprank/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const insertBatchSize = 500

// Store is a durable repository.Store.
type Store struct {
	db     *gorm.DB
	driver string
	now    func() time.Time
	log    gormLogger.Interface
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithGormLogger replaces the default silent gorm logger.
func WithGormLogger(l gormLogger.Interface) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for ranking timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to driver at dsn and migrates the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		driver: driver,
		now:    time.Now,
		log:    gormLogger.Default.LogMode(gormLogger.Silent),
	}
	for _, opt := range opts {
		opt(s)
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("open store: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	s.db = db
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) observe(op string, start time.Time) {
	metrics.RecordStoreLatency(s.driver, op, float64(time.Since(start).Microseconds())/1000)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, repository.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

// InsertSubmission implements repository.Submissions.
func (s *Store) InsertSubmission(ctx context.Context, sub model.Submission) error {
	defer s.observe("insert_submission", time.Now())
	if sub.ID == "" {
		return fmt.Errorf("insert submission: empty id")
	}
	row, err := fromSubmission(sub)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert submission %s: %w", sub.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("insert submission %s: %w", sub.ID, repository.ErrAlreadyExists)
	}
	return nil
}

// AttachEvaluation implements repository.Submissions.
func (s *Store) AttachEvaluation(ctx context.Context, id string, ev repository.Evaluation) error {
	defer s.observe("attach_evaluation", time.Now())
	at := ev.EvaluatedAt
	res := s.db.WithContext(ctx).Model(&submissionRow{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(ev.Status),
		"score":         ev.Score,
		"error_message": ev.ErrorMessage,
		"evaluated_at":  &at,
	})
	if res.Error != nil {
		return fmt.Errorf("attach evaluation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attach evaluation %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

// EvaluatedSubmissions implements repository.Submissions.
func (s *Store) EvaluatedSubmissions(ctx context.Context, problemID string, dimension int) ([]model.Submission, error) {
	defer s.observe("evaluated_submissions", time.Now())
	var rows []submissionRow
	err := s.db.WithContext(ctx).
		Where("problem_id = ? AND dimension = ? AND status = ? AND score IS NOT NULL", problemID, dimension, string(model.SubmissionEvaluated)).
		Order("score ASC").Order("submitted_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("evaluated submissions %s/D%d: %w", problemID, dimension, err)
	}
	return toSubmissions(rows)
}

// UserSubmissions implements repository.Submissions.
func (s *Store) UserSubmissions(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	defer s.observe("user_submissions", time.Now())
	return s.userSubmissions(ctx, userID, "", limit)
}

// UserProblemSubmissions implements repository.Submissions.
func (s *Store) UserProblemSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	defer s.observe("user_problem_submissions", time.Now())
	return s.userSubmissions(ctx, userID, problemID, limit)
}

func (s *Store) userSubmissions(ctx context.Context, userID, problemID string, limit int) ([]model.Submission, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if problemID != "" {
		q = q.Where("problem_id = ?", problemID)
	}
	var rows []submissionRow
	err := q.Order("submitted_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("user submissions %s: %w", userID, err)
	}
	return toSubmissions(rows)
}

// CountUserSubmissions implements repository.Submissions.
func (s *Store) CountUserSubmissions(ctx context.Context, userID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&submissionRow{}).Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count submissions of %s: %w", userID, err)
	}
	return int(n), nil
}

func toSubmissions(rows []submissionRow) ([]model.Submission, error) {
	out := make([]model.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// CountSubmissions implements repository.Submissions.
func (s *Store) CountSubmissions(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&submissionRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return int(n), nil
}

// ReplaceDimensionRanks implements repository.Rankings. The delete and
// insert run in one transaction so readers never see a partial set.
func (s *Store) ReplaceDimensionRanks(ctx context.Context, problemID string, dimension int, ranks []model.DimensionRank) error {
	defer s.observe("replace_dimension_ranks", time.Now())
	now := s.now()
	rows := make([]dimensionRankRow, 0, len(ranks))
	for _, r := range ranks {
		if r.UserID == "" || r.Rank < 1 {
			return fmt.Errorf("replace ranks %s/D%d: invalid rank %+v", problemID, dimension, r)
		}
		rows = append(rows, dimensionRankRow{
			ProblemID: problemID,
			Dimension: dimension,
			UserID:    r.UserID,
			Rank:      r.Rank,
			BestScore: r.BestScore,
			UpdatedAt: now,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("problem_id = ? AND dimension = ?", problemID, dimension).Delete(&dimensionRankRow{}).Error; err != nil {
			return fmt.Errorf("clear ranks %s/D%d: %w", problemID, dimension, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("write ranks %s/D%d: %w", problemID, dimension, err)
		}
		return nil
	})
}

// SetOverallRanks implements repository.Rankings.
func (s *Store) SetOverallRanks(ctx context.Context, problemID string, ranks map[string]int) error {
	defer s.observe("set_overall_ranks", time.Now())
	if len(ranks) == 0 {
		return nil
	}
	now := s.now()
	rows := make([]overallRankRow, 0, len(ranks))
	for u, r := range ranks {
		rows = append(rows, overallRankRow{ProblemID: problemID, UserID: u, Rank: r, UpdatedAt: now})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "problem_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rank", "updated_at"}),
		}).CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("set overall ranks %s: %w", problemID, err)
	}
	return nil
}

// ProblemRankings implements repository.Rankings.
func (s *Store) ProblemRankings(ctx context.Context, problemID string) ([]model.RankingRecord, error) {
	defer s.observe("problem_rankings", time.Now())
	var dims []dimensionRankRow
	var overall []overallRankRow
	db := s.db.WithContext(ctx)
	if err := db.Where("problem_id = ?", problemID).Order("user_id").Order("dimension").Find(&dims).Error; err != nil {
		return nil, fmt.Errorf("problem rankings %s: %w", problemID, err)
	}
	if err := db.Where("problem_id = ?", problemID).Find(&overall).Error; err != nil {
		return nil, fmt.Errorf("problem overall ranks %s: %w", problemID, err)
	}
	return assemble(dims, overall), nil
}

// UserRankings implements repository.Rankings.
func (s *Store) UserRankings(ctx context.Context, userID string) ([]model.RankingRecord, error) {
	defer s.observe("user_rankings", time.Now())
	var dims []dimensionRankRow
	var overall []overallRankRow
	db := s.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Order("problem_id").Order("dimension").Find(&dims).Error; err != nil {
		return nil, fmt.Errorf("user rankings %s: %w", userID, err)
	}
	if err := db.Where("user_id = ?", userID).Find(&overall).Error; err != nil {
		return nil, fmt.Errorf("user overall ranks %s: %w", userID, err)
	}
	return assemble(dims, overall), nil
}

// PutProblem implements repository.Catalog. Counters are left untouched
// and the fitness definition of an active problem cannot change.
func (s *Store) PutProblem(ctx context.Context, p model.Problem) error {
	if p.ID == "" {
		return fmt.Errorf("put problem: empty id")
	}
	row, err := fromProblem(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur problemRow
		err := tx.Where("id = ?", p.ID).Limit(1).Find(&cur).Error
		if err != nil {
			return fmt.Errorf("put problem %s: %w", p.ID, err)
		}
		if cur.ID != "" && model.ProblemStatus(cur.Status) == model.ProblemActive {
			stored, err := cur.toModel(nil)
			if err != nil {
				return err
			}
			if !stored.SameFitness(p) {
				return fmt.Errorf("put problem %s: %w", p.ID, repository.ErrFitnessImmutable)
			}
		}
		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "kind", "dimensions", "lower", "upper", "status",
				"category", "level", "owner", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("put problem %s: %w", p.ID, err)
		}
		return nil
	})
}

// Problem implements repository.Catalog.
func (s *Store) Problem(ctx context.Context, id string) (model.Problem, error) {
	var row problemRow
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return model.Problem{}, notFound(err, "problem", id)
	}
	var counters []problemCounterRow
	if err := db.Where("problem_id = ?", id).Find(&counters).Error; err != nil {
		return model.Problem{}, fmt.Errorf("problem %s counters: %w", id, err)
	}
	return row.toModel(counters)
}

// Problems implements repository.Catalog.
func (s *Store) Problems(ctx context.Context) ([]model.Problem, error) {
	var rows []problemRow
	var counters []problemCounterRow
	db := s.db.WithContext(ctx)
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	if err := db.Find(&counters).Error; err != nil {
		return nil, fmt.Errorf("list problem counters: %w", err)
	}
	byProblem := make(map[string][]problemCounterRow)
	for _, c := range counters {
		byProblem[c.ProblemID] = append(byProblem[c.ProblemID], c)
	}
	out := make([]model.Problem, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel(byProblem[r.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IncrementSubmissionCount implements repository.Catalog.
func (s *Store) IncrementSubmissionCount(ctx context.Context, problemID string, dimension int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&problemRow{}).Where("id = ?", problemID).
			UpdateColumn("total_submissions", gorm.Expr("total_submissions + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("increment counter %s: %w", problemID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("increment counter %s: %w", problemID, repository.ErrNotFound)
		}
		res = tx.Model(&problemCounterRow{}).Where("problem_id = ? AND dimension = ?", problemID, dimension).
			UpdateColumn("total", gorm.Expr("total + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("increment counter %s/D%d: %w", problemID, dimension, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&problemCounterRow{ProblemID: problemID, Dimension: dimension, Total: 1}).Error
	})
}

// PutUser implements repository.Catalog.
func (s *Store) PutUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		return fmt.Errorf("put user: empty id")
	}
	row := userRow{ID: u.ID, Name: u.Name, Email: u.Email, Institution: u.Institution, Country: u.Country}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "institution", "country"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

// User implements repository.Catalog.
func (s *Store) User(ctx context.Context, id string) (model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.User{}, notFound(err, "user", id)
	}
	return row.toModel(), nil
}

// CountUsers implements repository.Catalog.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int(n), nil
}

// PutContest implements repository.Catalog. Participants listed on c are
// added; existing participants are kept.
func (s *Store) PutContest(ctx context.Context, c model.Contest) error {
	if c.ID == "" {
		return fmt.Errorf("put contest: empty id")
	}
	ids, err := toJSON(c.ProblemIDs)
	if err != nil {
		return fmt.Errorf("encode contest problems: %w", err)
	}
	row := contestRow{ID: c.ID, Name: c.Name, ProblemIDs: ids, EventCode: c.EventCode, Status: c.Status}
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "problem_ids", "event_code", "status"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("put contest %s: %w", c.ID, err)
		}
		for i, u := range c.Participants {
			p := participantRow{ContestID: c.ID, UserID: u, JoinedAt: now.Add(time.Duration(i))}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				return fmt.Errorf("put contest %s participant %s: %w", c.ID, u, err)
			}
		}
		return nil
	})
}

// Contest implements repository.Catalog.
func (s *Store) Contest(ctx context.Context, id string) (model.Contest, error) {
	var row contestRow
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		return model.Contest{}, notFound(err, "contest", id)
	}
	var participants []participantRow
	if err := db.Where("contest_id = ?", id).Order("joined_at").Order("user_id").Find(&participants).Error; err != nil {
		return model.Contest{}, fmt.Errorf("contest %s participants: %w", id, err)
	}
	return row.toModel(participants)
}

// Contests implements repository.Catalog.
func (s *Store) Contests(ctx context.Context) ([]model.Contest, error) {
	var rows []contestRow
	db := s.db.WithContext(ctx)
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("contests: %w", err)
	}
	var participants []participantRow
	if err := db.Order("joined_at").Order("user_id").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("contest participants: %w", err)
	}
	byContest := make(map[string][]participantRow, len(rows))
	for _, p := range participants {
		byContest[p.ContestID] = append(byContest[p.ContestID], p)
	}
	out := make([]model.Contest, 0, len(rows))
	for _, r := range rows {
		c, err := r.toModel(byContest[r.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AddParticipant implements repository.Catalog.
func (s *Store) AddParticipant(ctx context.Context, contestID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&contestRow{}).Where("id = ?", contestID).Count(&n).Error; err != nil {
			return fmt.Errorf("contest %s: %w", contestID, err)
		}
		if n == 0 {
			return fmt.Errorf("contest %s: %w", contestID, repository.ErrNotFound)
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&participantRow{ContestID: contestID, UserID: userID, JoinedAt: s.now()})
		if res.Error != nil {
			return fmt.Errorf("contest %s participant %s: %w", contestID, userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("contest %s participant %s: %w", contestID, userID, repository.ErrAlreadyExists)
		}
		return nil
	})
}
