package services

import (
	"context"
	"strings"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/scoring"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

// QuestionService edits the KPI question set. Every mutation runs in a
// transaction and is rolled back when it would leave the active weights not
// summing to 1.0. An empty active set is accepted; nothing can be scored
// against it until questions are activated.
type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

type CreateQuestionRequest struct {
	Text     string  `json:"text" binding:"required"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	IsActive bool    `json:"is_active"`
}

type UpdateQuestionRequest struct {
	Text     *string  `json:"text"`
	Category *string  `json:"category"`
	Weight   *float64 `json:"weight"`
	IsActive *bool    `json:"is_active"`
}

// QuestionChange is one entry of a bulk weight edit.
type QuestionChange struct {
	ID       uint    `json:"id" binding:"required"`
	Weight   float64 `json:"weight"`
	IsActive bool    `json:"is_active"`
}

func (s *QuestionService) List(ctx context.Context, activeOnly bool) ([]models.Question, error) {
	q := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var questions []models.Question
	err := q.Find(&questions).Error
	return questions, err
}

func (s *QuestionService) Get(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	if err := s.db.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, translateNotFound(err, "question", id)
	}
	return &q, nil
}

// WeightStatus reports the current active weight total for display.
func (s *QuestionService) WeightStatus(ctx context.Context) (scoring.WeightStatus, error) {
	questions, err := s.List(ctx, false)
	if err != nil {
		return scoring.WeightStatus{}, err
	}
	return scoring.Status(questions), nil
}

func (s *QuestionService) Create(ctx context.Context, req *CreateQuestionRequest) (*models.Question, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.Validation("question text is required")
	}
	if err := checkWeightRange(req.Weight); err != nil {
		return nil, err
	}

	q := models.Question{
		Text:     text,
		Category: strings.TrimSpace(req.Category),
		Weight:   req.Weight,
		IsActive: req.IsActive,
	}
	err := s.mutate(ctx, func(tx *gorm.DB) error {
		return tx.Create(&q).Error
	}, req.IsActive)
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("question_id", q.ID).Bool("active", q.IsActive).Msg("[Questions] created")
	return &q, nil
}

func (s *QuestionService) Update(ctx context.Context, id uint, req *UpdateQuestionRequest) (*models.Question, error) {
	var q models.Question
	err := s.mutate(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&q, id).Error; err != nil {
			return translateNotFound(err, "question", id)
		}
		updates := map[string]interface{}{}
		if req.Text != nil {
			text := strings.TrimSpace(*req.Text)
			if text == "" {
				return domain.Validation("question text is required")
			}
			updates["text"] = text
		}
		if req.Category != nil {
			updates["category"] = strings.TrimSpace(*req.Category)
		}
		if req.Weight != nil {
			if err := checkWeightRange(*req.Weight); err != nil {
				return err
			}
			updates["weight"] = *req.Weight
		}
		if req.IsActive != nil {
			updates["is_active"] = *req.IsActive
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&q).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&q, id).Error
	}, true)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *QuestionService) Delete(ctx context.Context, id uint) error {
	return s.mutate(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&models.Question{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.NotFound("question", id)
		}
		return nil
	}, true)
}

// SaveQuestionSet applies many weight and activation changes at once, so an
// administrator can move from one valid set to another through states that
// would be invalid one edit at a time.
func (s *QuestionService) SaveQuestionSet(ctx context.Context, changes []QuestionChange) ([]models.Question, error) {
	if len(changes) == 0 {
		return nil, domain.Validation("no question changes supplied")
	}
	seen := make(map[uint]bool, len(changes))
	for _, c := range changes {
		if seen[c.ID] {
			return nil, domain.Validation("question %d listed twice", c.ID)
		}
		seen[c.ID] = true
		if err := checkWeightRange(c.Weight); err != nil {
			return nil, err
		}
	}

	err := s.mutate(ctx, func(tx *gorm.DB) error {
		for _, c := range changes {
			res := tx.Model(&models.Question{}).Where("id = ?", c.ID).Updates(map[string]interface{}{
				"weight":    c.Weight,
				"is_active": c.IsActive,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.NotFound("question", c.ID)
			}
		}
		return nil
	}, true)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, false)
}

// mutate runs fn in a transaction and, when gate is set, re-validates the
// resulting active set before commit.
func (s *QuestionService) mutate(ctx context.Context, fn func(tx *gorm.DB) error, gate bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if !gate {
			return nil
		}
		var active []models.Question
		if err := tx.Where("is_active = ?", true).Find(&active).Error; err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}
		return scoring.ValidateWeights(active)
	})
}

func checkWeightRange(w float64) error {
	if w < 0 || w > 1 {
		return domain.Validation("weight %.3f is outside [0, 1]", w)
	}
	return nil
}
