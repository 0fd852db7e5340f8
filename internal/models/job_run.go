package models

import "time"

// JobRun records that one replica claimed a scheduled job for a slot,
// usually a calendar day. The (Job, Slot) pair is unique, so the first
// insert wins and the others skip the run.
type JobRun struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Job       string    `gorm:"uniqueIndex:idx_job_runs_slot;size:100;not null" json:"job"`
	Slot      string    `gorm:"uniqueIndex:idx_job_runs_slot;size:32;not null" json:"slot"`
	ClaimedBy string    `gorm:"size:100" json:"claimed_by"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (JobRun) TableName() string { return "job_runs" }
