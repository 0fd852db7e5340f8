package models

import "time"

// Degree360Role is the relationship of a 360° participant to the subject.
type Degree360Role string

const (
	Role360Self        Degree360Role = "SELF"
	Role360Manager     Degree360Role = "MANAGER"
	Role360Peer        Degree360Role = "PEER"
	Role360Subordinate Degree360Role = "SUBORDINATE"
	Role360Customer    Degree360Role = "CUSTOMER"
)

// Valid reports whether r is one of the known participant roles.
func (r Degree360Role) Valid() bool {
	switch r {
	case Role360Self, Role360Manager, Role360Peer, Role360Subordinate, Role360Customer:
		return true
	}
	return false
}

const (
	Session360Active    = "ACTIVE"
	Session360Completed = "COMPLETED"
	Session360Cancelled = "CANCELLED"

	Participant360Pending   = "PENDING"
	Participant360Completed = "COMPLETED"
)

// Degree360Session is a multi-rater feedback round for one subject.
type Degree360Session struct {
	ID              uint                   `gorm:"primaryKey" json:"id"`
	Name            string                 `gorm:"size:255;not null" json:"name"`
	EvaluatedUserID uint                   `gorm:"index;not null" json:"evaluated_user_id"`
	CreatedByID     uint                   `gorm:"index;not null" json:"created_by_id"`
	StartDate       time.Time              `gorm:"not null" json:"start_date"`
	EndDate         time.Time              `gorm:"index;not null" json:"end_date"`
	IsAnonymous     bool                   `gorm:"not null" json:"is_anonymous"`
	Status          string                 `gorm:"size:20;index;not null" json:"status"` // ACTIVE, COMPLETED, CANCELLED
	Participants    []Degree360Participant `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Questions       []Degree360Question    `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type Degree360Participant struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	SessionID       uint              `gorm:"uniqueIndex:idx_360_session_evaluator;not null" json:"session_id"`
	EvaluatorUserID uint              `gorm:"uniqueIndex:idx_360_session_evaluator;index;not null" json:"evaluator_user_id"`
	Role            Degree360Role     `gorm:"size:20;not null" json:"role"`
	Status          string            `gorm:"size:20;index;not null" json:"status"` // PENDING, COMPLETED
	CompletedAt     *time.Time        `json:"completed_at"`
	Answers         []Degree360Answer `gorm:"foreignKey:ParticipantID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type Degree360Question struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"index;not null" json:"session_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Category  string    `gorm:"size:100" json:"category"`
	Weight    int       `gorm:"not null" json:"weight"` // 1..5
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Degree360Answer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ParticipantID uint      `gorm:"uniqueIndex:idx_360_answer_participant_question;not null" json:"participant_id"`
	QuestionID    uint      `gorm:"uniqueIndex:idx_360_answer_participant_question;not null" json:"question_id"`
	Score         int       `gorm:"not null" json:"score"`
	Comment       string    `gorm:"type:text" json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Degree360Session) TableName() string     { return "degree360_sessions" }
func (Degree360Participant) TableName() string { return "degree360_participants" }
func (Degree360Question) TableName() string    { return "degree360_questions" }
func (Degree360Answer) TableName() string      { return "degree360_answers" }
