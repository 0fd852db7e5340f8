package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/scoring"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

const (
	strengthThreshold = 4.0
	weaknessThreshold = 2.5
	gapThreshold      = 0.5

	GapSelfLow  = "self-rating is low"
	GapSelfHigh = "self-rating is high"
	GapAligned  = "aligned"
)

// QuestionResult aggregates the completed answers to one question.
type QuestionResult struct {
	QuestionID   uint                             `json:"question_id"`
	Question     string                           `json:"question"`
	Category     string                           `json:"category"`
	Weight       int                              `json:"weight"`
	AnswerCount  int                              `json:"answer_count"`
	AverageScore float64                          `json:"average_score"`
	ScoresByRole map[models.Degree360Role]float64 `json:"scores_by_role"`
}

// SessionResults is the aggregate of a 360° session. A zero value means the
// session does not exist; callers treat it as "no data".
type SessionResults struct {
	SessionID       uint                             `json:"session_id,omitempty"`
	SessionName     string                           `json:"session_name,omitempty"`
	EvaluatedUser   string                           `json:"evaluated_user,omitempty"`
	OverallScore    float64                          `json:"overall_score"`
	// WeightedScore averages the answered questions by their 1..5 weight.
	WeightedScore   float64                          `json:"weighted_score"`
	ScoresByRole    map[models.Degree360Role]float64 `json:"scores_by_role"`
	DetailedResults []QuestionResult                 `json:"detailed_results"`
}

func (r *SessionResults) Empty() bool {
	return r == nil || r.SessionID == 0
}

type accumulator struct {
	scores []int
}

func (a *accumulator) add(score ...int) {
	a.scores = append(a.scores, score...)
}

func (a accumulator) count() int { return len(a.scores) }

func (a accumulator) mean() float64 { return scoring.MeanInts(a.scores) }

// CalculateSessionResults aggregates the answers of COMPLETED participants
// per question, per role and overall. Only active questions count.
func (s *Degree360Service) CalculateSessionResults(ctx context.Context, sessionID uint) (*SessionResults, error) {
	db := s.db.WithContext(ctx)

	var session models.Degree360Session
	err := db.First(&session, sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SessionResults{}, nil
	}
	if err != nil {
		return nil, err
	}

	res := &SessionResults{
		SessionID:       session.ID,
		SessionName:     session.Name,
		EvaluatedUser:   s.userName(ctx, session.EvaluatedUserID),
		ScoresByRole:    map[models.Degree360Role]float64{},
		DetailedResults: []QuestionResult{},
	}

	var participants []models.Degree360Participant
	if err := db.Where("session_id = ? AND status = ?", session.ID, models.Participant360Completed).
		Find(&participants).Error; err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return res, nil
	}
	roleOf := make(map[uint]models.Degree360Role, len(participants))
	participantIDs := make([]uint, 0, len(participants))
	for _, p := range participants {
		roleOf[p.ID] = p.Role
		participantIDs = append(participantIDs, p.ID)
	}

	var questions []models.Degree360Question
	if err := db.Where("session_id = ? AND is_active = ?", session.ID, true).Order("id").Find(&questions).Error; err != nil {
		return nil, err
	}
	var answers []models.Degree360Answer
	if err := db.Where("participant_id IN ?", participantIDs).Find(&answers).Error; err != nil {
		return nil, err
	}

	perQuestion := make(map[uint]map[models.Degree360Role]*accumulator, len(questions))
	for _, q := range questions {
		perQuestion[q.ID] = map[models.Degree360Role]*accumulator{}
	}
	perRole := map[models.Degree360Role]*accumulator{}
	var overall accumulator

	for _, a := range answers {
		byRole, ok := perQuestion[a.QuestionID]
		if !ok {
			continue
		}
		role := roleOf[a.ParticipantID]
		if byRole[role] == nil {
			byRole[role] = &accumulator{}
		}
		byRole[role].add(a.Score)
		if perRole[role] == nil {
			perRole[role] = &accumulator{}
		}
		perRole[role].add(a.Score)
		overall.add(a.Score)
	}

	var weighted []scoring.WeightedScore
	for _, q := range questions {
		var total accumulator
		qr := QuestionResult{
			QuestionID:   q.ID,
			Question:     q.Text,
			Category:     q.Category,
			Weight:       q.Weight,
			ScoresByRole: map[models.Degree360Role]float64{},
		}
		for role, acc := range perQuestion[q.ID] {
			qr.ScoresByRole[role] = scoring.Round2(acc.mean())
			total.add(acc.scores...)
		}
		qr.AnswerCount = total.count()
		qr.AverageScore = scoring.Round2(total.mean())
		if total.count() > 0 {
			weighted = append(weighted, scoring.WeightedScore{Score: total.mean(), Weight: float64(q.Weight)})
		}
		res.DetailedResults = append(res.DetailedResults, qr)
	}

	for role, acc := range perRole {
		res.ScoresByRole[role] = scoring.Round2(acc.mean())
	}
	res.OverallScore = scoring.Round2(overall.mean())
	res.WeightedScore = scoring.Round2(scoring.WeightedAverage(weighted))
	return res, nil
}

// QuestionHighlight is a strength or weakness entry.
type QuestionHighlight struct {
	QuestionID uint    `json:"question_id"`
	Question   string  `json:"question"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
}

// GapEntry compares the self-rating with the mean of the other roles.
type GapEntry struct {
	QuestionID     uint    `json:"question_id"`
	Question       string  `json:"question"`
	Category       string  `json:"category"`
	SelfScore      float64 `json:"self_score"`
	OthersAvgScore float64 `json:"others_avg_score"`
	Gap            float64 `json:"gap"`
	Interpretation string  `json:"interpretation"`
}

type Report struct {
	*SessionResults
	GeneratedAt time.Time           `json:"generated_at"`
	Strengths   []QuestionHighlight `json:"strengths"`
	Weaknesses  []QuestionHighlight `json:"weaknesses"`
	GapAnalysis []GapEntry          `json:"gap_analysis"`
}

// GenerateReport adds strengths, weaknesses and the self/others gap to the
// session results. A missing session yields an empty report.
func (s *Degree360Service) GenerateReport(ctx context.Context, sessionID uint) (*Report, error) {
	results, err := s.CalculateSessionResults(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report := &Report{
		SessionResults: results,
		GeneratedAt:    s.now(),
		Strengths:      []QuestionHighlight{},
		Weaknesses:     []QuestionHighlight{},
		GapAnalysis:    []GapEntry{},
	}
	if results.Empty() {
		return report, nil
	}

	for _, qr := range results.DetailedResults {
		h := QuestionHighlight{QuestionID: qr.QuestionID, Question: qr.Question, Category: qr.Category, Score: qr.AverageScore}
		switch {
		case qr.AnswerCount == 0:
		case qr.AverageScore >= strengthThreshold:
			report.Strengths = append(report.Strengths, h)
		case qr.AverageScore <= weaknessThreshold:
			report.Weaknesses = append(report.Weaknesses, h)
		}

		if g, ok := gapFor(qr); ok {
			report.GapAnalysis = append(report.GapAnalysis, g)
		}
	}
	return report, nil
}

// gapFor needs a positive self score and at least one other role.
func gapFor(qr QuestionResult) (GapEntry, bool) {
	self, ok := qr.ScoresByRole[models.Role360Self]
	if !ok || self <= 0 {
		return GapEntry{}, false
	}
	var others []float64
	for role, score := range qr.ScoresByRole {
		if role != models.Role360Self {
			others = append(others, score)
		}
	}
	if len(others) == 0 {
		return GapEntry{}, false
	}

	avg := scoring.Mean(others)
	gap := avg - self
	return GapEntry{
		QuestionID:     qr.QuestionID,
		Question:       qr.Question,
		Category:       qr.Category,
		SelfScore:      self,
		OthersAvgScore: scoring.Round2(avg),
		Gap:            scoring.Round2(gap),
		Interpretation: interpretGap(gap),
	}, true
}

func interpretGap(gap float64) string {
	switch {
	case gap > gapThreshold:
		return GapSelfLow
	case gap < -gapThreshold:
		return GapSelfHigh
	default:
		return GapAligned
	}
}

// SendReminders notifies PENDING participants of ACTIVE sessions that end
// exactly reminder.days_before workdays after today. It returns the number of
// reminders sent.
func (s *Degree360Service) SendReminders(ctx context.Context, today time.Time) (int, error) {
	sessions, err := s.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	var outbox []outboxMessage
	for _, session := range sessions {
		if !dayOf(session.EndDate).After(dayOf(today)) {
			continue
		}
		if s.calendar.WorkdaysBetween(today, session.EndDate, s.reminder.Country) != s.reminder.DaysBefore {
			continue
		}

		var participants []models.Degree360Participant
		if err := s.db.WithContext(ctx).
			Where("session_id = ? AND status = ?", session.ID, models.Participant360Pending).
			Order("id").
			Find(&participants).Error; err != nil {
			return 0, err
		}
		for _, p := range participants {
			outbox = append(outbox, outboxMessage{
				UserID: p.EvaluatorUserID,
				Message: fmt.Sprintf("Reminder: 360° session %s ends on %s. Please submit your feedback.",
					session.Name, session.EndDate.Format("2006-01-02")),
			})
		}
	}

	notifyAll(ctx, s.notifier, outbox)
	if len(outbox) > 0 {
		logger.Info().Int("count", len(outbox)).Msg("[360] reminders sent")
	}
	return len(outbox), nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
