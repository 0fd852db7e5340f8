package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

// PDPService manages personal development plans. The plan owner may report
// progress and comment; creating plans and editing their goals is reserved
// for the plan's manager and admins.
type PDPService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewPDPService(db *gorm.DB, notifier Notifier) *PDPService {
	if notifier == nil {
		notifier = NopNotifier
	}
	return &PDPService{db: db, notifier: notifier}
}

type CreatePlanRequest struct {
	UserID       uint  `json:"user_id" binding:"required"`
	EvaluationID uint  `json:"evaluation_id" binding:"required"`
	ManagerID    *uint `json:"manager_id"`
}

// CreatePlan opens an ACTIVE plan following up on one of the user's
// evaluations. ManagerID defaults to the user's current manager.
func (s *PDPService) CreatePlan(ctx context.Context, actorID uint, req *CreatePlanRequest) (*models.DevelopmentPlan, error) {
	var plan models.DevelopmentPlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, req.UserID).Error; err != nil {
			return translateNotFound(err, "user", req.UserID)
		}
		var ev models.Evaluation
		if err := tx.First(&ev, req.EvaluationID).Error; err != nil {
			return translateNotFound(err, "evaluation", req.EvaluationID)
		}
		if ev.EvaluatedUserID != user.ID {
			return domain.Validation("evaluation %d does not belong to user %d", ev.ID, user.ID)
		}

		managerID := req.ManagerID
		if managerID == nil {
			managerID = user.ManagerID
		}
		if managerID != nil {
			if *managerID == user.ID {
				return domain.Validation("user %d cannot manage their own plan", user.ID)
			}
			var m models.User
			if err := tx.First(&m, *managerID).Error; err != nil {
				return translateNotFound(err, "user", *managerID)
			}
		}

		plan = models.DevelopmentPlan{
			UserID:       user.ID,
			EvaluationID: ev.ID,
			ManagerID:    managerID,
			Status:       models.PlanActive,
		}
		if err := s.authorize(tx, &plan, actorID, false); err != nil {
			return err
		}
		return tx.Create(&plan).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("plan_id", plan.ID).Uint("user_id", plan.UserID).Uint("actor_id", actorID).Msg("[PDP] plan created")
	notifyAll(ctx, s.notifier, []outboxMessage{{
		UserID:  plan.UserID,
		Message: "A personal development plan has been created for you.",
	}})
	return &plan, nil
}

// GetPlan loads a plan with its items (by deadline) and their comments.
func (s *PDPService) GetPlan(ctx context.Context, id uint) (*models.DevelopmentPlan, error) {
	var plan models.DevelopmentPlan
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("deadline, id") }).
		Preload("Items.Comments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&plan, id).Error
	if err != nil {
		return nil, translateNotFound(err, "development plan", id)
	}
	return &plan, nil
}

func (s *PDPService) PlansForUser(ctx context.Context, userID uint) ([]models.DevelopmentPlan, error) {
	var plans []models.DevelopmentPlan
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&plans).Error
	return plans, err
}

func (s *PDPService) ActivePlansForUser(ctx context.Context, userID uint) ([]models.DevelopmentPlan, error) {
	var plans []models.DevelopmentPlan
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PlanActive).
		Order("id DESC").
		Find(&plans).Error
	return plans, err
}

func (s *PDPService) UpdatePlanStatus(ctx context.Context, planID, actorID uint, status string) error {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case models.PlanActive, models.PlanCompleted, models.PlanCancelled:
	default:
		return domain.Validation("unknown plan status %q", status)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.loadPlan(tx, planID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, plan, actorID, false); err != nil {
			return err
		}
		return tx.Model(plan).Update("status", status).Error
	})
}

type AddPlanItemRequest struct {
	Goal          string    `json:"goal" binding:"required"`
	ActionsToTake string    `json:"actions_to_take" binding:"required"`
	Deadline      time.Time `json:"deadline" binding:"required"`
}

// AddItem appends a goal to an ACTIVE plan.
func (s *PDPService) AddItem(ctx context.Context, planID, actorID uint, req *AddPlanItemRequest) (*models.PlanItem, error) {
	goal := strings.TrimSpace(req.Goal)
	actions := strings.TrimSpace(req.ActionsToTake)
	if goal == "" || actions == "" {
		return nil, domain.Validation("goal and actions are required")
	}
	if req.Deadline.IsZero() {
		return nil, domain.Validation("deadline is required")
	}

	item := models.PlanItem{
		PlanID:        planID,
		Goal:          goal,
		ActionsToTake: actions,
		Deadline:      req.Deadline,
		Status:        models.ItemNotStarted,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.loadPlan(tx, planID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, plan, actorID, false); err != nil {
			return err
		}
		if plan.Status != models.PlanActive {
			return domain.InvalidTransition("plan %d is %s", plan.ID, plan.Status)
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PDPService) ItemsForPlan(ctx context.Context, planID uint) ([]models.PlanItem, error) {
	var items []models.PlanItem
	err := s.db.WithContext(ctx).Where("plan_id = ?", planID).Order("deadline, id").Find(&items).Error
	return items, err
}

// ItemStatusFor derives the item status from its progress percentage.
func ItemStatusFor(progress int) string {
	switch {
	case progress >= 100:
		return models.ItemCompleted
	case progress > 0:
		return models.ItemInProgress
	default:
		return models.ItemNotStarted
	}
}

// UpdateItemProgress records progress (0..100) on an item. The owner may do
// this as well as the manager.
func (s *PDPService) UpdateItemProgress(ctx context.Context, itemID, actorID uint, progress int) (*models.PlanItem, error) {
	if progress < 0 || progress > 100 {
		return nil, domain.Validation("progress %d out of range 0..100", progress)
	}
	var item models.PlanItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, itemID).Error; err != nil {
			return translateNotFound(err, "plan item", itemID)
		}
		plan, err := s.loadPlan(tx, item.PlanID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, plan, actorID, true); err != nil {
			return err
		}
		if err := tx.Model(&models.PlanItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"progress":     progress,
			"status":       ItemStatusFor(progress),
			"is_completed": progress == 100,
		}).Error; err != nil {
			return err
		}
		return tx.First(&item, item.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *PDPService) CompleteItem(ctx context.Context, itemID, actorID uint) (*models.PlanItem, error) {
	return s.UpdateItemProgress(ctx, itemID, actorID, 100)
}

// DeleteItem removes an item and its comments.
func (s *PDPService) DeleteItem(ctx context.Context, itemID, actorID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.PlanItem
		if err := tx.First(&item, itemID).Error; err != nil {
			return translateNotFound(err, "plan item", itemID)
		}
		plan, err := s.loadPlan(tx, item.PlanID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, plan, actorID, false); err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", item.ID).Delete(&models.PlanItemComment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
}

// AddItemComment appends a comment and tells the other side of the plan.
func (s *PDPService) AddItemComment(ctx context.Context, itemID, authorID uint, text string) (*models.PlanItemComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Validation("comment text is required")
	}

	var comment models.PlanItemComment
	var outbox []outboxMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.PlanItem
		if err := tx.First(&item, itemID).Error; err != nil {
			return translateNotFound(err, "plan item", itemID)
		}
		plan, err := s.loadPlan(tx, item.PlanID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, plan, authorID, true); err != nil {
			return err
		}
		comment = models.PlanItemComment{ItemID: item.ID, AuthorID: authorID, CommentText: text}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}

		recipient := plan.UserID
		if authorID == plan.UserID {
			if plan.ManagerID == nil {
				return nil
			}
			recipient = *plan.ManagerID
		}
		outbox = append(outbox, outboxMessage{
			UserID:  recipient,
			Message: fmt.Sprintf("New comment on development goal %q", item.Goal),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	notifyAll(ctx, s.notifier, outbox)
	return &comment, nil
}

func (s *PDPService) loadPlan(tx *gorm.DB, id uint) (*models.DevelopmentPlan, error) {
	var plan models.DevelopmentPlan
	if err := tx.First(&plan, id).Error; err != nil {
		return nil, translateNotFound(err, "development plan", id)
	}
	return &plan, nil
}

// authorize allows the plan's manager and admins. ownerAllowed also admits
// the plan owner.
func (s *PDPService) authorize(tx *gorm.DB, plan *models.DevelopmentPlan, actorID uint, ownerAllowed bool) error {
	if ownerAllowed && actorID == plan.UserID {
		return nil
	}
	if actorID != plan.UserID && plan.ManagerID != nil && *plan.ManagerID == actorID {
		return nil
	}
	var actor models.User
	err := tx.First(&actor, actorID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil && actor.IsAdmin() && actor.ID != plan.UserID {
		return nil
	}
	return domain.NotAuthorized("user %d cannot change development plan %d", actorID, plan.ID)
}
