package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

// OpenPeriod creates a period and one pending self-evaluation for every
// active user, then tells each of them.
func (s *KPIService) OpenPeriod(ctx context.Context, name string, start, end time.Time) (*models.EvaluationPeriod, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validation("period name is required")
	}
	if end.Before(start) {
		return nil, domain.Validation("period end %s is before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	period := models.EvaluationPeriod{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		IsActive:  true,
	}
	var outbox []outboxMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.EvaluationPeriod{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Validation("period %q already exists", name)
		}
		if err := tx.Create(&period).Error; err != nil {
			return err
		}

		var users []models.User
		if err := tx.Where("is_active = ?", true).Order("id").Find(&users).Error; err != nil {
			return err
		}
		if len(users) == 0 {
			return nil
		}

		evaluations := make([]models.Evaluation, len(users))
		for i, u := range users {
			evaluations[i] = models.Evaluation{
				PeriodID:        period.ID,
				EvaluatedUserID: u.ID,
				EvaluatorUserID: u.ID,
				Status:          models.StatusPending,
				Version:         1,
			}
			outbox = append(outbox, outboxMessage{
				UserID:  u.ID,
				Message: fmt.Sprintf("Evaluation period %s is open. Please complete your self-evaluation.", name),
			})
		}
		return tx.Create(&evaluations).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("period_id", period.ID).Str("name", name).
		Int("evaluations", len(outbox)).Msg("[KPI] period opened")
	notifyAll(ctx, s.notifier, outbox)
	return &period, nil
}

func (s *KPIService) ListPeriods(ctx context.Context) ([]models.EvaluationPeriod, error) {
	var periods []models.EvaluationPeriod
	err := s.db.WithContext(ctx).Order("start_date DESC, id DESC").Find(&periods).Error
	return periods, err
}

func (s *KPIService) GetPeriod(ctx context.Context, id uint) (*models.EvaluationPeriod, error) {
	var period models.EvaluationPeriod
	if err := s.db.WithContext(ctx).First(&period, id).Error; err != nil {
		return nil, translateNotFound(err, "period", id)
	}
	return &period, nil
}

func (s *KPIService) SetPeriodActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.EvaluationPeriod{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("period", id)
	}
	return nil
}

// DeletePeriod removes a period together with its evaluations and answers.
func (s *KPIService) DeletePeriod(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var period models.EvaluationPeriod
		if err := tx.First(&period, id).Error; err != nil {
			return translateNotFound(err, "period", id)
		}
		evalIDs := tx.Model(&models.Evaluation{}).Select("id").Where("period_id = ?", id)
		if err := tx.Where("evaluation_id IN (?)", evalIDs).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("period_id = ?", id).Delete(&models.Evaluation{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&period).Error; err != nil {
			return err
		}
		logger.Info().Uint("period_id", id).Str("name", period.Name).Msg("[KPI] period deleted")
		return nil
	})
}

// GetEvaluation returns the evaluation with its period and answers.
func (s *KPIService) GetEvaluation(ctx context.Context, id uint) (*models.Evaluation, error) {
	var ev models.Evaluation
	err := s.db.WithContext(ctx).
		Preload("Period").
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("author_role, question_id") }).
		First(&ev, id).Error
	if err != nil {
		return nil, translateNotFound(err, "evaluation", id)
	}
	return &ev, nil
}

// ViewEvaluation is GetEvaluation restricted to the subject, the current
// evaluator, the subject's manager and admins.
func (s *KPIService) ViewEvaluation(ctx context.Context, id, actorID uint) (*models.Evaluation, error) {
	ev, err := s.GetEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if actorID == ev.EvaluatedUserID || actorID == ev.EvaluatorUserID {
		return ev, nil
	}
	var subject, actor models.User
	db := s.db.WithContext(ctx)
	if err := db.First(&actor, actorID).Error; err != nil {
		return nil, domain.NotAuthorized("unknown user %d", actorID)
	}
	if actor.IsAdmin() {
		return ev, nil
	}
	if err := db.First(&subject, ev.EvaluatedUserID).Error; err == nil &&
		subject.ManagerID != nil && *subject.ManagerID == actorID {
		return ev, nil
	}
	return nil, domain.NotAuthorized("user %d may not view evaluation %d", actorID, id)
}

// PendingEvaluationsFor lists the self-evaluations the user still has to do.
func (s *KPIService) PendingEvaluationsFor(ctx context.Context, userID uint) ([]models.Evaluation, error) {
	return s.findEvaluations(ctx,
		s.db.Where("evaluated_user_id = ? AND status = ?", userID, models.StatusPending))
}

// AwaitingReviewFor lists evaluations handed to the manager that are not
// finalized yet.
func (s *KPIService) AwaitingReviewFor(ctx context.Context, managerID uint) ([]models.Evaluation, error) {
	return s.findEvaluations(ctx,
		s.db.Where("evaluator_user_id = ? AND evaluated_user_id <> ? AND status IN ?",
			managerID, managerID,
			[]models.EvaluationStatus{models.StatusSelfEvalCompleted, models.StatusManagerReviewCompleted}))
}

// CompletedEvaluationsFor lists finalized evaluations the user took part in.
func (s *KPIService) CompletedEvaluationsFor(ctx context.Context, userID uint) ([]models.Evaluation, error) {
	return s.findEvaluations(ctx,
		s.db.Where("(evaluated_user_id = ? OR evaluator_user_id = ?) AND status = ?",
			userID, userID, models.StatusFinalized))
}

func (s *KPIService) findEvaluations(ctx context.Context, cond *gorm.DB) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	err := s.db.WithContext(ctx).
		Preload("Period").
		Where(cond).
		Order("id").
		Find(&evaluations).Error
	return evaluations, err
}
