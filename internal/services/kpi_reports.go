package services

import (
	"context"
	"sort"
	"time"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/scoring"
	"gorm.io/gorm"
)

// All reporting reads count FINALIZED evaluations only and prefer the score
// snapshot taken at finalization.

type TrendPoint struct {
	PeriodID   uint      `json:"period_id"`
	PeriodName string    `json:"period_name"`
	StartDate  time.Time `json:"start_date"`
	Score      float64   `json:"score"`
}

type UserPerformance struct {
	UserID     uint    `json:"user_id"`
	FullName   string  `json:"full_name"`
	Department string  `json:"department"`
	Score      float64 `json:"score"`
}

type DepartmentPerformance struct {
	Department string  `json:"department"`
	Average    float64 `json:"average"`
	Employees  int     `json:"employees"`
}

type PeriodSummary struct {
	PeriodID    uint    `json:"period_id"`
	PeriodName  string  `json:"period_name"`
	Average     float64 `json:"average"`
	Evaluations int     `json:"evaluations"`
}

type finalizedRow struct {
	EvaluationID    uint
	EvaluatedUserID uint
	FinalScore      *float64
	PeriodID        uint
	PeriodName      string
	StartDate       time.Time
}

func (s *KPIService) finalizedRows(db *gorm.DB, where string, args ...interface{}) ([]finalizedRow, error) {
	var rows []finalizedRow
	err := db.Table("evaluations").
		Select("evaluations.id AS evaluation_id, evaluations.evaluated_user_id, evaluations.final_score, "+
			"evaluation_periods.id AS period_id, evaluation_periods.name AS period_name, evaluation_periods.start_date").
		Joins("JOIN evaluation_periods ON evaluation_periods.id = evaluations.period_id").
		Where("evaluations.status = ?", models.StatusFinalized).
		Where(where, args...).
		Order("evaluation_periods.start_date ASC, evaluation_periods.id ASC, evaluations.id ASC").
		Scan(&rows).Error
	return rows, err
}

// scoreOf returns the snapshot, or the live score for rows finalized before
// snapshots were recorded.
func scoreOf(db *gorm.DB, r finalizedRow) (float64, error) {
	if r.FinalScore != nil {
		return *r.FinalScore, nil
	}
	return calculateScore(db, r.EvaluationID)
}

// GetUserPerformanceTrend returns the user's finalized scores in period
// order.
func (s *KPIService) GetUserPerformanceTrend(ctx context.Context, userID uint) ([]TrendPoint, error) {
	db := s.db.WithContext(ctx)
	rows, err := s.finalizedRows(db, "evaluations.evaluated_user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	points := make([]TrendPoint, 0, len(rows))
	for _, r := range rows {
		score, err := scoreOf(db, r)
		if err != nil {
			return nil, err
		}
		points = append(points, TrendPoint{
			PeriodID:   r.PeriodID,
			PeriodName: r.PeriodName,
			StartDate:  r.StartDate,
			Score:      score,
		})
	}
	return points, nil
}

// GetPeriodPerformance averages each user's finalized scores in the period,
// optionally restricted to one department. Highest score first.
func (s *KPIService) GetPeriodPerformance(ctx context.Context, periodID uint, department string) ([]UserPerformance, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	rows, err := s.finalizedRows(db, "evaluations.period_id = ?", periodID)
	if err != nil {
		return nil, err
	}

	scores := map[uint][]float64{}
	var order []uint
	for _, r := range rows {
		score, err := scoreOf(db, r)
		if err != nil {
			return nil, err
		}
		if _, ok := scores[r.EvaluatedUserID]; !ok {
			order = append(order, r.EvaluatedUserID)
		}
		scores[r.EvaluatedUserID] = append(scores[r.EvaluatedUserID], score)
	}
	if len(order) == 0 {
		return []UserPerformance{}, nil
	}

	var users []models.User
	if err := db.Unscoped().Where("id IN ?", order).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	result := make([]UserPerformance, 0, len(order))
	for _, id := range order {
		u := byID[id]
		if department != "" && u.Department != department {
			continue
		}
		name := u.DisplayName()
		if u.ID == 0 {
			name = "Unknown"
		}
		result = append(result, UserPerformance{
			UserID:     id,
			FullName:   name,
			Department: u.Department,
			Score:      scoring.Round2(scoring.Mean(scores[id])),
		})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	return result, nil
}

// GetDepartmentPerformance averages per-user period scores by department.
func (s *KPIService) GetDepartmentPerformance(ctx context.Context, periodID uint) ([]DepartmentPerformance, error) {
	users, err := s.GetPeriodPerformance(ctx, periodID, "")
	if err != nil {
		return nil, err
	}
	scores := map[string][]float64{}
	var order []string
	for _, u := range users {
		if _, ok := scores[u.Department]; !ok {
			order = append(order, u.Department)
		}
		scores[u.Department] = append(scores[u.Department], u.Score)
	}
	sort.Strings(order)

	result := make([]DepartmentPerformance, 0, len(order))
	for _, d := range order {
		result = append(result, DepartmentPerformance{
			Department: d,
			Average:    scoring.Round2(scoring.Mean(scores[d])),
			Employees:  len(scores[d]),
		})
	}
	return result, nil
}

// ComparePeriods summarizes each requested period in the order given.
func (s *KPIService) ComparePeriods(ctx context.Context, periodIDs []uint) ([]PeriodSummary, error) {
	if len(periodIDs) == 0 {
		return nil, domain.Validation("at least one period is required")
	}
	db := s.db.WithContext(ctx)
	result := make([]PeriodSummary, 0, len(periodIDs))
	for _, id := range periodIDs {
		period, err := s.GetPeriod(ctx, id)
		if err != nil {
			return nil, err
		}
		rows, err := s.finalizedRows(db, "evaluations.period_id = ?", id)
		if err != nil {
			return nil, err
		}
		scores := make([]float64, 0, len(rows))
		for _, r := range rows {
			score, err := scoreOf(db, r)
			if err != nil {
				return nil, err
			}
			scores = append(scores, score)
		}
		result = append(result, PeriodSummary{
			PeriodID:    period.ID,
			PeriodName:  period.Name,
			Average:     scoring.Round2(scoring.Mean(scores)),
			Evaluations: len(scores),
		})
	}
	return result, nil
}
