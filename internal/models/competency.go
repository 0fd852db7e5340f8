package models

import "time"

// Competency groups KPI and 360° questions that measure the same skill, so a
// user's score can be read per competency across both instruments. Join rows
// go away with either side.
type Competency struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	Name               string              `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description        string              `gorm:"type:text" json:"description"`
	Category           string              `gorm:"size:50;index" json:"category"` // e.g. Leadership, Technical
	KPIQuestions       []Question          `gorm:"many2many:kpi_question_competency;joinForeignKey:CompetencyID;joinReferences:QuestionID;constraint:OnDelete:CASCADE" json:"kpi_questions,omitempty"`
	Degree360Questions []Degree360Question `gorm:"many2many:degree360_question_competency;joinForeignKey:CompetencyID;joinReferences:QuestionID;constraint:OnDelete:CASCADE" json:"degree360_questions,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (Competency) TableName() string { return "competencies" }
