package models

import "time"

const (
	PlanActive    = "ACTIVE"
	PlanCompleted = "COMPLETED"
	PlanCancelled = "CANCELLED"

	ItemNotStarted = "not_started"
	ItemInProgress = "in_progress"
	ItemCompleted  = "completed"
)

// DevelopmentPlan tracks follow-up goals agreed after an evaluation.
type DevelopmentPlan struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	EvaluationID uint       `gorm:"index;not null" json:"evaluation_id"`
	ManagerID    *uint      `gorm:"index" json:"manager_id"`
	Status       string     `gorm:"size:20;not null" json:"status"`
	Items        []PlanItem `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type PlanItem struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	PlanID        uint              `gorm:"index;not null" json:"plan_id"`
	Goal          string            `gorm:"size:500;not null" json:"goal"`
	ActionsToTake string            `gorm:"type:text;not null" json:"actions_to_take"`
	Deadline      time.Time         `gorm:"not null" json:"deadline"`
	IsCompleted   bool              `gorm:"not null" json:"is_completed"`
	Progress      int               `gorm:"not null" json:"progress"` // 0..100
	Status        string            `gorm:"size:20;not null" json:"status"`
	Comments      []PlanItemComment `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type PlanItemComment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ItemID      uint      `gorm:"index;not null" json:"item_id"`
	AuthorID    uint      `gorm:"not null" json:"author_id"`
	CommentText string    `gorm:"type:text;not null" json:"comment_text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (DevelopmentPlan) TableName() string { return "development_plans" }
func (PlanItem) TableName() string        { return "plan_items" }
func (PlanItemComment) TableName() string { return "plan_item_comments" }
