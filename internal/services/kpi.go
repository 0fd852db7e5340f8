package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/scoring"
	"github.com/huangang/perfsentry/internal/workflow"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KPIService runs the evaluation workflow: periods, submissions,
// finalization and scoring.
type KPIService struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewKPIService(db *gorm.DB, notifier Notifier) *KPIService {
	if notifier == nil {
		notifier = NopNotifier
	}
	return &KPIService{db: db, notifier: notifier, now: time.Now}
}

// AnswerInput is one submitted answer, keyed by question ID in a submission.
type AnswerInput struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// SubmitEvaluation records the actor's answers and advances the evaluation.
// The subject's self-evaluation hands the row to their active manager.
func (s *KPIService) SubmitEvaluation(ctx context.Context, evaluationID, actorID uint, answers map[uint]AnswerInput) error {
	return s.submit(ctx, evaluationID, actorID, answers, false)
}

// SubmitAndFinalize records a manager review and finalizes in one step.
func (s *KPIService) SubmitAndFinalize(ctx context.Context, evaluationID, actorID uint, answers map[uint]AnswerInput) error {
	return s.submit(ctx, evaluationID, actorID, answers, true)
}

func (s *KPIService) submit(ctx context.Context, evaluationID, actorID uint, answers map[uint]AnswerInput, finalize bool) error {
	var outbox []outboxMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := lockEvaluation(tx, evaluationID)
		if err != nil {
			return err
		}

		decision, err := workflow.DecideSubmit(workflow.SubjectOf(ev), actorID)
		if err != nil {
			return err
		}
		if finalize && decision.Self {
			return domain.InvalidTransition("a self evaluation cannot be finalized directly")
		}

		var subject models.User
		if err := tx.First(&subject, ev.EvaluatedUserID).Error; err != nil {
			return translateNotFound(err, "user", ev.EvaluatedUserID)
		}

		var finalDecision workflow.Decision
		if finalize {
			auth, err := authorityFor(tx, actorID, &subject)
			if err != nil {
				return err
			}
			next := workflow.SubjectOf(ev)
			next.Status = decision.To
			if finalDecision, err = workflow.DecideFinalize(next, auth); err != nil {
				return err
			}
		}

		var questions []models.Question
		if err := tx.Find(&questions).Error; err != nil {
			return err
		}
		if err := validateAnswers(questions, answers); err != nil {
			return err
		}

		if err := replaceAnswers(tx, ev.ID, decision.Role, answers); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":  decision.To,
			"version": ev.Version + 1,
		}

		if decision.Self {
			manager, err := activeManagerOf(tx, &subject)
			if err != nil {
				return err
			}
			if manager != nil {
				updates["evaluator_user_id"] = manager.ID
				outbox = append(outbox, outboxMessage{
					UserID:  manager.ID,
					Message: fmt.Sprintf("%s has completed their self-evaluation. Please review it.", subject.DisplayName()),
				})
			} else {
				logger.Warn().Uint("evaluation_id", ev.ID).Uint("user_id", subject.ID).
					Msg("[KPI] subject has no active manager, evaluation awaits an administrator")
			}
		}

		if finalize {
			score, err := calculateScore(tx, ev.ID)
			if err != nil {
				return err
			}
			now := s.now()
			updates["status"] = finalDecision.To
			updates["final_score"] = score
			updates["finalized_at"] = now
			updates["finalized_by"] = actorID
			msg, err := finalizedMessage(tx, ev, score)
			if err != nil {
				return err
			}
			outbox = append(outbox, outboxMessage{UserID: ev.EvaluatedUserID, Message: msg})
		}

		if err := casUpdate(tx, ev, updates); err != nil {
			return err
		}

		logger.Info().
			Uint("evaluation_id", ev.ID).
			Uint("actor_id", actorID).
			Str("from", string(decision.From)).
			Interface("to", updates["status"]).
			Msg("[KPI] evaluation submitted")
		return nil
	})
	if err != nil {
		return err
	}

	notifyAll(ctx, s.notifier, outbox)
	return nil
}

// FinalizeEvaluation closes an evaluation and snapshots its score.
func (s *KPIService) FinalizeEvaluation(ctx context.Context, evaluationID, actorID uint) error {
	var outbox []outboxMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := lockEvaluation(tx, evaluationID)
		if err != nil {
			return err
		}

		var subject models.User
		if err := tx.First(&subject, ev.EvaluatedUserID).Error; err != nil {
			return translateNotFound(err, "user", ev.EvaluatedUserID)
		}
		auth, err := authorityFor(tx, actorID, &subject)
		if err != nil {
			return err
		}
		decision, err := workflow.DecideFinalize(workflow.SubjectOf(ev), auth)
		if err != nil {
			return err
		}

		score, err := calculateScore(tx, ev.ID)
		if err != nil {
			return err
		}
		if err := casUpdate(tx, ev, map[string]interface{}{
			"status":       decision.To,
			"version":      ev.Version + 1,
			"final_score":  score,
			"finalized_at": s.now(),
			"finalized_by": actorID,
		}); err != nil {
			return err
		}

		msg, err := finalizedMessage(tx, ev, score)
		if err != nil {
			return err
		}
		outbox = append(outbox, outboxMessage{UserID: ev.EvaluatedUserID, Message: msg})

		logger.Info().Uint("evaluation_id", ev.ID).Uint("actor_id", actorID).
			Float64("score", score).Msg("[KPI] evaluation finalized")
		return nil
	})
	if err != nil {
		return err
	}

	notifyAll(ctx, s.notifier, outbox)
	return nil
}

// CalculateEvaluationScore is the live weighted score: every answer of the
// evaluation against the current weight of its question.
func (s *KPIService) CalculateEvaluationScore(ctx context.Context, evaluationID uint) (float64, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Evaluation{}).Where("id = ?", evaluationID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.NotFound("evaluation", evaluationID)
	}
	return calculateScore(db, evaluationID)
}

func calculateScore(db *gorm.DB, evaluationID uint) (float64, error) {
	var rows []struct {
		Score  int
		Weight float64
	}
	err := db.Table("answers").
		Select("answers.score AS score, questions.weight AS weight").
		Joins("JOIN questions ON questions.id = answers.question_id").
		Where("answers.evaluation_id = ?", evaluationID).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	scores := make([]scoring.WeightedScore, len(rows))
	for i, r := range rows {
		scores[i] = scoring.WeightedScore{Score: float64(r.Score), Weight: r.Weight}
	}
	return scoring.WeightedAverage(scores), nil
}

// lockEvaluation loads the row with a FOR UPDATE lock on dialects that have
// row locks. The version column still guards SQLite.
func lockEvaluation(tx *gorm.DB, id uint) (*models.Evaluation, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ev models.Evaluation
	if err := q.First(&ev, id).Error; err != nil {
		return nil, translateNotFound(err, "evaluation", id)
	}
	return &ev, nil
}

// casUpdate applies updates only if nobody bumped the version since ev was
// read.
func casUpdate(tx *gorm.DB, ev *models.Evaluation, updates map[string]interface{}) error {
	res := tx.Model(&models.Evaluation{}).
		Where("id = ? AND version = ?", ev.ID, ev.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Conflict("evaluation %d was modified concurrently", ev.ID)
	}
	return nil
}

func authorityFor(tx *gorm.DB, actorID uint, subject *models.User) (workflow.Authority, error) {
	var actor models.User
	if err := tx.First(&actor, actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.Authority{}, domain.NotAuthorized("unknown user %d", actorID)
		}
		return workflow.Authority{}, err
	}
	if !actor.IsActive {
		return workflow.Authority{}, domain.NotAuthorized("user %d is inactive", actorID)
	}
	return workflow.Authority{
		ActorID:   actorID,
		IsAdmin:   actor.IsAdmin(),
		ManagerID: subject.ManagerID,
	}, nil
}

// validateAnswers checks a submission against the question set before any
// write happens.
func validateAnswers(questions []models.Question, answers map[uint]AnswerInput) error {
	if len(answers) == 0 {
		return domain.Validation("no answers submitted")
	}
	if err := scoring.ValidateWeights(questions); err != nil {
		return err
	}

	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	ids := make([]uint, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return domain.Validation("unknown question %d", id)
		}
		if !q.IsActive {
			return domain.Validation("question %d is not active", id)
		}
		if score := answers[id].Score; score < 1 || score > 5 {
			return domain.Validation("score %d for question %d is outside 1..5", score, id)
		}
	}
	for _, q := range questions {
		if _, ok := answers[q.ID]; q.IsActive && !ok {
			return domain.Validation("missing answer for question %d", q.ID)
		}
	}
	return nil
}

// replaceAnswers swaps the role's previous answers for the new set.
func replaceAnswers(tx *gorm.DB, evaluationID uint, role models.AuthorRole, answers map[uint]AnswerInput) error {
	if err := tx.Where("evaluation_id = ? AND author_role = ?", evaluationID, role).
		Delete(&models.Answer{}).Error; err != nil {
		return err
	}
	rows := make([]models.Answer, 0, len(answers))
	for qid, a := range answers {
		rows = append(rows, models.Answer{
			EvaluationID: evaluationID,
			QuestionID:   qid,
			AuthorRole:   role,
			Score:        a.Score,
			Comment:      a.Comment,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionID < rows[j].QuestionID })
	return tx.Create(&rows).Error
}

func finalizedMessage(tx *gorm.DB, ev *models.Evaluation, score float64) (string, error) {
	var period models.EvaluationPeriod
	if err := tx.First(&period, ev.PeriodID).Error; err != nil {
		return "", translateNotFound(err, "period", ev.PeriodID)
	}
	return fmt.Sprintf("Your evaluation for %s has been finalized. Final score: %.2f", period.Name, score), nil
}
