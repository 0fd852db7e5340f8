package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkdayCalendar counts business days for the reminder window.
type WorkdayCalendar interface {
	WorkdaysBetween(from, to time.Time, countryCode string) int
}

// Degree360Service runs multi-rater feedback sessions.
type Degree360Service struct {
	db       *gorm.DB
	notifier Notifier
	calendar WorkdayCalendar
	reminder config.ReminderConfig
	now      func() time.Time
}

func NewDegree360Service(db *gorm.DB, notifier Notifier, calendar WorkdayCalendar, reminder config.ReminderConfig) *Degree360Service {
	if notifier == nil {
		notifier = NopNotifier
	}
	if calendar == nil {
		calendar = NewHolidayService()
	}
	return &Degree360Service{
		db:       db,
		notifier: notifier,
		calendar: calendar,
		reminder: reminder,
		now:      time.Now,
	}
}

type CreateSessionRequest struct {
	Name            string    `json:"name" binding:"required"`
	EvaluatedUserID uint      `json:"evaluated_user_id" binding:"required"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date" binding:"required"`
	IsAnonymous     *bool     `json:"is_anonymous"`
}

// CreateSession opens an ACTIVE session and tells the subject about it.
// Sessions are anonymous unless the request says otherwise.
func (s *Degree360Service) CreateSession(ctx context.Context, actorID uint, req *CreateSessionRequest) (*models.Degree360Session, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.Validation("session name is required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, domain.Validation("end date %s is before start date %s",
			req.EndDate.Format("2006-01-02"), req.StartDate.Format("2006-01-02"))
	}
	anonymous := true
	if req.IsAnonymous != nil {
		anonymous = *req.IsAnonymous
	}

	session := models.Degree360Session{
		Name:            name,
		EvaluatedUserID: req.EvaluatedUserID,
		CreatedByID:     actorID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		IsAnonymous:     anonymous,
		Status:          models.Session360Active,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subject models.User
		if err := tx.First(&subject, req.EvaluatedUserID).Error; err != nil {
			return translateNotFound(err, "user", req.EvaluatedUserID)
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("session_id", session.ID).Uint("evaluated_user_id", session.EvaluatedUserID).
		Uint("actor_id", actorID).Msg("[360] session created")
	notifyAll(ctx, s.notifier, []outboxMessage{{
		UserID:  session.EvaluatedUserID,
		Message: fmt.Sprintf("A new 360° feedback session has been created: %s", session.Name),
	}})
	return &session, nil
}

func (s *Degree360Service) GetSession(ctx context.Context, id uint) (*models.Degree360Session, error) {
	var session models.Degree360Session
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, translateNotFound(err, "360 session", id)
	}
	return &session, nil
}

// SessionsForUser lists sessions the user is the subject or the owner of.
func (s *Degree360Service) SessionsForUser(ctx context.Context, userID uint) ([]models.Degree360Session, error) {
	var sessions []models.Degree360Session
	err := s.db.WithContext(ctx).
		Where("evaluated_user_id = ? OR created_by_id = ?", userID, userID).
		Order("id DESC").
		Find(&sessions).Error
	return sessions, err
}

func (s *Degree360Service) ActiveSessions(ctx context.Context) ([]models.Degree360Session, error) {
	var sessions []models.Degree360Session
	err := s.db.WithContext(ctx).Where("status = ?", models.Session360Active).Order("end_date, id").Find(&sessions).Error
	return sessions, err
}

type AddParticipantRequest struct {
	EvaluatorUserID uint                 `json:"evaluator_user_id" binding:"required"`
	Role            models.Degree360Role `json:"role" binding:"required"`
}

// AddParticipant invites a rater. The SELF role is reserved for the subject
// and the subject may take no other role.
func (s *Degree360Service) AddParticipant(ctx context.Context, sessionID, actorID uint, req *AddParticipantRequest) (*models.Degree360Participant, error) {
	role := models.Degree360Role(strings.ToUpper(string(req.Role)))
	if !role.Valid() {
		return nil, domain.Validation("unknown participant role %q", req.Role)
	}

	var participant models.Degree360Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.managedSession(tx, sessionID, actorID)
		if err != nil {
			return err
		}
		var evaluator models.User
		if err := tx.First(&evaluator, req.EvaluatorUserID).Error; err != nil {
			return translateNotFound(err, "user", req.EvaluatorUserID)
		}
		isSubject := evaluator.ID == session.EvaluatedUserID
		if isSubject != (role == models.Role360Self) {
			return domain.Validation("role %s does not match the session subject", role)
		}

		var count int64
		if err := tx.Model(&models.Degree360Participant{}).
			Where("session_id = ? AND evaluator_user_id = ?", sessionID, evaluator.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.Validation("user %d already participates in session %d", evaluator.ID, sessionID)
		}

		participant = models.Degree360Participant{
			SessionID:       sessionID,
			EvaluatorUserID: evaluator.ID,
			Role:            role,
			Status:          models.Participant360Pending,
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *Degree360Service) ListParticipants(ctx context.Context, sessionID uint) ([]models.Degree360Participant, error) {
	var participants []models.Degree360Participant
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&participants).Error
	return participants, err
}

type AddSessionQuestionRequest struct {
	Text     string `json:"text" binding:"required"`
	Category string `json:"category"`
	Weight   int    `json:"weight"`
}

// AddQuestion appends an active question. Weight defaults to 1 and must be
// within 1..5.
func (s *Degree360Service) AddQuestion(ctx context.Context, sessionID, actorID uint, req *AddSessionQuestionRequest) (*models.Degree360Question, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.Validation("question text is required")
	}
	weight := req.Weight
	if weight == 0 {
		weight = 1
	}
	if weight < 1 || weight > 5 {
		return nil, domain.Validation("question weight %d out of range 1..5", weight)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "General"
	}

	question := models.Degree360Question{
		SessionID: sessionID,
		Text:      text,
		Category:  category,
		Weight:    weight,
		IsActive:  true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.managedSession(tx, sessionID, actorID); err != nil {
			return err
		}
		return tx.Create(&question).Error
	})
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// ListQuestions returns the active questions of a session.
func (s *Degree360Service) ListQuestions(ctx context.Context, sessionID uint) ([]models.Degree360Question, error) {
	var questions []models.Degree360Question
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Order("id").
		Find(&questions).Error
	return questions, err
}

// SubmitParticipantAnswers replaces the participant's answers. The first
// submission completes the participant; later ones are corrections and keep
// the original completion time.
func (s *Degree360Service) SubmitParticipantAnswers(ctx context.Context, participantID, actorID uint, answers map[uint]AnswerInput) error {
	if len(answers) == 0 {
		return domain.Validation("no answers submitted")
	}

	var outbox []outboxMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var participant models.Degree360Participant
		if err := q.First(&participant, participantID).Error; err != nil {
			return translateNotFound(err, "360 participant", participantID)
		}
		if participant.EvaluatorUserID != actorID {
			return domain.NotAuthorized("user %d is not participant %d", actorID, participantID)
		}

		var session models.Degree360Session
		if err := tx.First(&session, participant.SessionID).Error; err != nil {
			return translateNotFound(err, "360 session", participant.SessionID)
		}
		if session.Status != models.Session360Active {
			return domain.InvalidTransition("session %d is %s", session.ID, session.Status)
		}

		var questions []models.Degree360Question
		if err := tx.Where("session_id = ?", session.ID).Find(&questions).Error; err != nil {
			return err
		}
		if err := validateSessionAnswers(questions, answers); err != nil {
			return err
		}

		if err := tx.Where("participant_id = ?", participant.ID).Delete(&models.Degree360Answer{}).Error; err != nil {
			return err
		}
		ids := make([]uint, 0, len(answers))
		for id := range answers {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		rows := make([]models.Degree360Answer, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, models.Degree360Answer{
				ParticipantID: participant.ID,
				QuestionID:    id,
				Score:         answers[id].Score,
				Comment:       strings.TrimSpace(answers[id].Comment),
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		correction := participant.CompletedAt != nil
		updates := map[string]interface{}{"status": models.Participant360Completed}
		if !correction {
			updates["completed_at"] = s.now()
		}
		if err := tx.Model(&participant).Updates(updates).Error; err != nil {
			return err
		}

		if participant.EvaluatorUserID != session.EvaluatedUserID {
			msg := fmt.Sprintf("New feedback was submitted in 360° session %s", session.Name)
			if !session.IsAnonymous {
				var evaluator models.User
				if err := tx.First(&evaluator, participant.EvaluatorUserID).Error; err == nil {
					msg = fmt.Sprintf("%s submitted feedback in 360° session %s", evaluator.DisplayName(), session.Name)
				}
			}
			outbox = append(outbox, outboxMessage{UserID: session.EvaluatedUserID, Message: msg})
		}

		logger.Info().Uint("participant_id", participant.ID).Uint("session_id", session.ID).
			Bool("correction", correction).Msg("[360] answers submitted")
		return nil
	})
	if err != nil {
		return err
	}

	notifyAll(ctx, s.notifier, outbox)
	return nil
}

func validateSessionAnswers(questions []models.Degree360Question, answers map[uint]AnswerInput) error {
	byID := make(map[uint]models.Degree360Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for id, a := range answers {
		q, ok := byID[id]
		if !ok {
			return domain.Validation("question %d does not belong to this session", id)
		}
		if !q.IsActive {
			return domain.Validation("question %d is inactive", id)
		}
		if a.Score < 1 || a.Score > 5 {
			return domain.Validation("score %d for question %d out of range 1..5", a.Score, id)
		}
	}
	return nil
}

func (s *Degree360Service) AnswersForParticipant(ctx context.Context, participantID uint) ([]models.Degree360Answer, error) {
	var answers []models.Degree360Answer
	err := s.db.WithContext(ctx).Where("participant_id = ?", participantID).Order("question_id").Find(&answers).Error
	return answers, err
}

// OwnAnswers returns a participant's answers to that participant only, so
// anonymous sessions stay anonymous towards the subject.
func (s *Degree360Service) OwnAnswers(ctx context.Context, participantID, actorID uint) ([]models.Degree360Answer, error) {
	var participant models.Degree360Participant
	if err := s.db.WithContext(ctx).First(&participant, participantID).Error; err != nil {
		return nil, translateNotFound(err, "360 participant", participantID)
	}
	if participant.EvaluatorUserID != actorID {
		return nil, domain.NotAuthorized("user %d is not participant %d", actorID, participantID)
	}
	return s.AnswersForParticipant(ctx, participantID)
}

// CloseSession moves an ACTIVE session to COMPLETED.
func (s *Degree360Service) CloseSession(ctx context.Context, sessionID, actorID uint) error {
	return s.finish(ctx, sessionID, actorID, models.Session360Completed)
}

// CancelSession moves an ACTIVE session to CANCELLED.
func (s *Degree360Service) CancelSession(ctx context.Context, sessionID, actorID uint) error {
	return s.finish(ctx, sessionID, actorID, models.Session360Cancelled)
}

func (s *Degree360Service) finish(ctx context.Context, sessionID, actorID uint, status string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := s.managedSession(tx, sessionID, actorID)
		if err != nil {
			return err
		}
		res := tx.Model(&models.Degree360Session{}).
			Where("id = ? AND status = ?", session.ID, models.Session360Active).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.Conflict("session %d changed concurrently", session.ID)
		}
		logger.Info().Uint("session_id", session.ID).Str("status", status).Msg("[360] session finished")
		return nil
	})
}

// managedSession loads an ACTIVE session the actor may administer: its
// creator or an admin.
func (s *Degree360Service) managedSession(tx *gorm.DB, sessionID, actorID uint) (*models.Degree360Session, error) {
	var session models.Degree360Session
	if err := tx.First(&session, sessionID).Error; err != nil {
		return nil, translateNotFound(err, "360 session", sessionID)
	}
	if session.CreatedByID != actorID {
		var actor models.User
		err := tx.First(&actor, actorID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !actor.IsAdmin()) {
			return nil, domain.NotAuthorized("user %d cannot manage session %d", actorID, sessionID)
		}
		if err != nil {
			return nil, err
		}
	}
	if session.Status != models.Session360Active {
		return nil, domain.InvalidTransition("session %d is %s", session.ID, session.Status)
	}
	return &session, nil
}

// CanView reports whether the actor may read a session's results: the
// subject, the creator or an admin.
func (s *Degree360Service) CanView(ctx context.Context, sessionID, actorID uint) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.EvaluatedUserID == actorID || session.CreatedByID == actorID {
		return nil
	}
	var actor models.User
	if err := s.db.WithContext(ctx).First(&actor, actorID).Error; err == nil && actor.IsAdmin() {
		return nil
	}
	return domain.NotAuthorized("user %d cannot view session %d", actorID, sessionID)
}

// PendingFeedback is an open request for the user's feedback.
type PendingFeedback struct {
	ParticipantID uint                 `json:"participant_id"`
	SessionID     uint                 `json:"session_id"`
	SessionName   string               `json:"session_name"`
	EvaluatedUser string               `json:"evaluated_user"`
	Role          models.Degree360Role `json:"role"`
	EndDate       time.Time            `json:"end_date"`
}

// PendingForUser lists the user's PENDING participations in ACTIVE sessions.
func (s *Degree360Service) PendingForUser(ctx context.Context, userID uint) ([]PendingFeedback, error) {
	type row struct {
		ParticipantID   uint
		SessionID       uint
		SessionName     string
		Role            models.Degree360Role
		EndDate         time.Time
		EvaluatedUserID uint
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("degree360_participants AS p").
		Select("p.id AS participant_id, s.id AS session_id, s.name AS session_name, p.role, s.end_date, s.evaluated_user_id").
		Joins("JOIN degree360_sessions AS s ON s.id = p.session_id").
		Where("p.evaluator_user_id = ? AND p.status = ? AND s.status = ?",
			userID, models.Participant360Pending, models.Session360Active).
		Order("s.end_date, p.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]PendingFeedback, 0, len(rows))
	for _, r := range rows {
		out = append(out, PendingFeedback{
			ParticipantID: r.ParticipantID,
			SessionID:     r.SessionID,
			SessionName:   r.SessionName,
			EvaluatedUser: s.userName(ctx, r.EvaluatedUserID),
			Role:          r.Role,
			EndDate:       r.EndDate,
		})
	}
	return out, nil
}

func (s *Degree360Service) userName(ctx context.Context, id uint) string {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return "Unknown"
	}
	return u.DisplayName()
}
