package models

import "time"

// EvaluationStatus is the lifecycle state of a KPI evaluation.
type EvaluationStatus string

const (
	StatusPending                EvaluationStatus = "PENDING"
	StatusSelfEvalCompleted      EvaluationStatus = "SELF_EVAL_COMPLETED"
	StatusManagerReviewCompleted EvaluationStatus = "MANAGER_REVIEW_COMPLETED"
	StatusFinalized              EvaluationStatus = "FINALIZED"
)

// AuthorRole tags which party wrote an Answer.
type AuthorRole string

const (
	AuthorEmployee AuthorRole = "employee"
	AuthorManager  AuthorRole = "manager"
)

// EvaluationPeriod is a named scoring cycle, e.g. "2025-Q1".
type EvaluationPeriod struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"uniqueIndex;size:255;not null" json:"name"`
	StartDate   time.Time    `gorm:"index;not null" json:"start_date"`
	EndDate     time.Time    `gorm:"not null" json:"end_date"`
	IsActive    bool         `gorm:"not null" json:"is_active"`
	Evaluations []Evaluation `gorm:"foreignKey:PeriodID;constraint:OnDelete:CASCADE" json:"evaluations,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Question is a weighted KPI criterion. The weights of all active questions
// must sum to 1.0 before they can score an evaluation.
type Question struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Category  string    `gorm:"size:100" json:"category"`
	Weight    float64   `gorm:"not null" json:"weight"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q Question) GetWeight() float64 { return q.Weight }
func (q Question) GetActive() bool    { return q.IsActive }

// Evaluation is one subject's scoring record for one period. The same row is
// authored by the employee first and then by the manager; EvaluatorUserID is
// whoever may act on it now. Version guards state transitions against lost
// updates.
type Evaluation struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	PeriodID        uint              `gorm:"index;not null" json:"period_id"`
	Period          *EvaluationPeriod `gorm:"foreignKey:PeriodID" json:"period,omitempty"`
	EvaluatedUserID uint              `gorm:"index;not null" json:"evaluated_user_id"`
	EvaluatorUserID uint              `gorm:"index;not null" json:"evaluator_user_id"`
	Status          EvaluationStatus  `gorm:"size:40;index;not null" json:"status"`
	Version         int               `gorm:"not null" json:"version"`
	FinalScore      *float64          `json:"final_score"`
	FinalizedAt     *time.Time        `json:"finalized_at"`
	FinalizedBy     *uint             `json:"finalized_by"`
	Answers         []Answer          `gorm:"foreignKey:EvaluationID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Answer is one scored response (1..5). At most one live row exists per
// evaluation, question and author role.
type Answer struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EvaluationID uint       `gorm:"uniqueIndex:idx_answer_eval_question_role;not null" json:"evaluation_id"`
	QuestionID   uint       `gorm:"uniqueIndex:idx_answer_eval_question_role;not null" json:"question_id"`
	AuthorRole   AuthorRole `gorm:"uniqueIndex:idx_answer_eval_question_role;size:20;not null" json:"author_role"`
	Score        int        `gorm:"not null" json:"score"`
	Comment      string     `gorm:"type:text" json:"comment"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (EvaluationPeriod) TableName() string { return "evaluation_periods" }
func (Question) TableName() string         { return "questions" }
func (Evaluation) TableName() string       { return "evaluations" }
func (Answer) TableName() string           { return "answers" }
