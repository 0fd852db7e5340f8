package models

import "time"

// SystemLog is an audit record of a state-changing API call or a background
// job outcome. EntityType/EntityID point at the row the call acted on, e.g.
// ("evaluations", 12).
type SystemLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Level      string    `gorm:"size:20;index" json:"level"` // info, warning, error
	Module     string    `gorm:"size:100;index" json:"module"`
	Action     string    `gorm:"size:200;index" json:"action"`
	Message    string    `gorm:"type:text" json:"message"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	EntityType string    `gorm:"size:50;index:idx_system_logs_entity" json:"entity_type,omitempty"`
	EntityID   *uint     `gorm:"index:idx_system_logs_entity" json:"entity_id,omitempty"`
	RequestID  string    `gorm:"size:64" json:"request_id,omitempty"`
	IP         string    `gorm:"size:50" json:"ip"`
	UserAgent  string    `gorm:"size:500" json:"user_agent"`
	Extra      string    `gorm:"type:text" json:"extra"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
