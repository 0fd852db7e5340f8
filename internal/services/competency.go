package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/scoring"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	kpiCompetencyLinks       = "KPIQuestions"
	degree360CompetencyLinks = "Degree360Questions"
)

// CompetencyService manages the competency catalogue and its links to KPI
// and 360° questions.
type CompetencyService struct {
	db *gorm.DB
}

func NewCompetencyService(db *gorm.DB) *CompetencyService {
	return &CompetencyService{db: db}
}

type CompetencyRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type UpdateCompetencyRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

// CompetencyScore is one instrument's contribution to a competency.
type CompetencyScore struct {
	Score   float64 `json:"score"`
	Answers int     `json:"answers"`
}

// CompetencyPerformance is a user's standing in one competency. Components
// are nil when the user has no counted answers for them; Overall is nil when
// both are.
type CompetencyPerformance struct {
	CompetencyID uint             `json:"competency_id"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	KPI          *CompetencyScore `json:"kpi"`
	Degree360    *CompetencyScore `json:"degree360"`
	Overall      *float64         `json:"overall"`
}

func (s *CompetencyService) Create(ctx context.Context, req *CompetencyRequest) (*models.Competency, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.Validation("competency name is required")
	}
	comp := models.Competency{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, name, 0); err != nil {
			return err
		}
		return tx.Create(&comp).Error
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("competency_id", comp.ID).Str("name", comp.Name).Msg("[Competency] created")
	return &comp, nil
}

// Get loads a competency with its linked questions.
func (s *CompetencyService) Get(ctx context.Context, id uint) (*models.Competency, error) {
	var comp models.Competency
	err := s.db.WithContext(ctx).
		Preload(kpiCompetencyLinks, func(db *gorm.DB) *gorm.DB { return db.Order("questions.id") }).
		Preload(degree360CompetencyLinks, func(db *gorm.DB) *gorm.DB { return db.Order("degree360_questions.id") }).
		First(&comp, id).Error
	if err != nil {
		return nil, translateNotFound(err, "competency", id)
	}
	return &comp, nil
}

// List returns competencies by name, optionally within one category.
func (s *CompetencyService) List(ctx context.Context, category string) ([]models.Competency, error) {
	q := s.db.WithContext(ctx).Order("name")
	if category = strings.TrimSpace(category); category != "" {
		q = q.Where("category = ?", category)
	}
	comps := []models.Competency{}
	err := q.Find(&comps).Error
	return comps, err
}

func (s *CompetencyService) Update(ctx context.Context, id uint, req *UpdateCompetencyRequest) (*models.Competency, error) {
	var comp models.Competency
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&comp, id).Error; err != nil {
			return translateNotFound(err, "competency", id)
		}
		updates := map[string]interface{}{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.Validation("competency name is required")
			}
			if err := ensureNameFree(tx, name, id); err != nil {
				return err
			}
			updates["name"] = name
		}
		if req.Description != nil {
			updates["description"] = strings.TrimSpace(*req.Description)
		}
		if req.Category != nil {
			updates["category"] = strings.TrimSpace(*req.Category)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&comp).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&comp, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

// Delete removes the competency and its question links. The questions stay.
func (s *CompetencyService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comp models.Competency
		if err := tx.First(&comp, id).Error; err != nil {
			return translateNotFound(err, "competency", id)
		}
		if err := tx.Select(clause.Associations).Delete(&comp).Error; err != nil {
			return err
		}
		logger.Info().Uint("competency_id", id).Msg("[Competency] deleted")
		return nil
	})
}

// LinkKPIQuestion associates a KPI question with the competency. Linking
// twice is a no-op.
func (s *CompetencyService) LinkKPIQuestion(ctx context.Context, competencyID, questionID uint) error {
	return s.link(ctx, competencyID, kpiCompetencyLinks, &models.Question{ID: questionID}, "question", questionID, true)
}

func (s *CompetencyService) UnlinkKPIQuestion(ctx context.Context, competencyID, questionID uint) error {
	return s.link(ctx, competencyID, kpiCompetencyLinks, &models.Question{ID: questionID}, "question", questionID, false)
}

func (s *CompetencyService) LinkDegree360Question(ctx context.Context, competencyID, questionID uint) error {
	return s.link(ctx, competencyID, degree360CompetencyLinks, &models.Degree360Question{ID: questionID}, "360 question", questionID, true)
}

func (s *CompetencyService) UnlinkDegree360Question(ctx context.Context, competencyID, questionID uint) error {
	return s.link(ctx, competencyID, degree360CompetencyLinks, &models.Degree360Question{ID: questionID}, "360 question", questionID, false)
}

func (s *CompetencyService) link(ctx context.Context, competencyID uint, assoc string, question interface{}, entity string, questionID uint, attach bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comp models.Competency
		if err := tx.First(&comp, competencyID).Error; err != nil {
			return translateNotFound(err, "competency", competencyID)
		}
		if err := tx.First(question, questionID).Error; err != nil {
			return translateNotFound(err, entity, questionID)
		}
		if attach {
			return tx.Model(&comp).Association(assoc).Append(question)
		}
		return tx.Model(&comp).Association(assoc).Delete(question)
	})
}

// PerformanceByCompetency scores a user in one competency. The KPI part is
// the weighted average of answers on linked questions in the user's
// FINALIZED evaluations; the 360° part does the same over COMPLETED sessions
// about the user. Overall weighs each part by its answer count.
func (s *CompetencyService) PerformanceByCompetency(ctx context.Context, userID, competencyID uint) (*CompetencyPerformance, error) {
	db := s.db.WithContext(ctx)
	var comp models.Competency
	if err := db.First(&comp, competencyID).Error; err != nil {
		return nil, translateNotFound(err, "competency", competencyID)
	}
	return s.performance(db, userID, &comp)
}

// UserCompetencies scores the user in every competency, in catalogue order.
func (s *CompetencyService) UserCompetencies(ctx context.Context, userID uint) ([]CompetencyPerformance, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return nil, translateNotFound(err, "user", userID)
	}
	comps, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]CompetencyPerformance, 0, len(comps))
	for i := range comps {
		p, err := s.performance(db, userID, &comps[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *CompetencyService) performance(db *gorm.DB, userID uint, comp *models.Competency) (*CompetencyPerformance, error) {
	var kpiRows []weightedRow
	err := db.Table("answers").
		Select("answers.score AS score, questions.weight AS weight").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Joins("JOIN kpi_question_competency links ON links.question_id = questions.id").
		Joins("JOIN evaluations ON evaluations.id = answers.evaluation_id").
		Where("links.competency_id = ? AND evaluations.evaluated_user_id = ? AND evaluations.status = ?",
			comp.ID, userID, models.StatusFinalized).
		Scan(&kpiRows).Error
	if err != nil {
		return nil, err
	}

	var d360Rows []weightedRow
	err = db.Table("degree360_answers").
		Select("degree360_answers.score AS score, degree360_questions.weight AS weight").
		Joins("JOIN degree360_questions ON degree360_questions.id = degree360_answers.question_id").
		Joins("JOIN degree360_question_competency links ON links.question_id = degree360_questions.id").
		Joins("JOIN degree360_sessions ON degree360_sessions.id = degree360_questions.session_id").
		Where("links.competency_id = ? AND degree360_sessions.evaluated_user_id = ? AND degree360_sessions.status = ?",
			comp.ID, userID, models.Session360Completed).
		Scan(&d360Rows).Error
	if err != nil {
		return nil, err
	}

	p := &CompetencyPerformance{
		CompetencyID: comp.ID,
		Name:         comp.Name,
		Category:     comp.Category,
		KPI:          componentScore(kpiRows),
		Degree360:    componentScore(d360Rows),
	}
	var parts []scoring.WeightedScore
	for _, c := range []*CompetencyScore{p.KPI, p.Degree360} {
		if c != nil {
			parts = append(parts, scoring.WeightedScore{Score: c.Score, Weight: float64(c.Answers)})
		}
	}
	if len(parts) > 0 {
		overall := scoring.Round2(scoring.WeightedAverage(parts))
		p.Overall = &overall
	}
	return p, nil
}

type weightedRow struct {
	Score  int
	Weight float64
}

func componentScore(rows []weightedRow) *CompetencyScore {
	if len(rows) == 0 {
		return nil
	}
	scores := make([]scoring.WeightedScore, len(rows))
	for i, r := range rows {
		scores[i] = scoring.WeightedScore{Score: float64(r.Score), Weight: r.Weight}
	}
	return &CompetencyScore{
		Score:   scoring.Round2(scoring.WeightedAverage(scores)),
		Answers: len(rows),
	}
}

func ensureNameFree(tx *gorm.DB, name string, selfID uint) error {
	var existing models.Competency
	err := tx.Where("name = ?", name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == selfID:
		return nil
	}
	return domain.Conflict("competency %q already exists", name)
}
