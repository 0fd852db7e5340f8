package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

const (
	AuthLocal = "local"
	AuthLDAP  = "ldap"
)

// User is an employee record. ManagerID links the reporting line used to
// route self-evaluations to the reviewing manager.
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Username   string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Password   string         `gorm:"size:255" json:"-"` // Hashed password, empty for LDAP users
	FullName   string         `gorm:"size:200" json:"full_name"`
	Email      string         `gorm:"size:255" json:"email"`
	Role       string         `gorm:"size:50;not null" json:"role"` // admin, manager, employee
	Department string         `gorm:"size:100;index" json:"department"`
	Position   string         `gorm:"size:100" json:"position"` // job title
	ManagerID  *uint          `gorm:"index" json:"manager_id"`
	AuthType   string         `gorm:"size:20;default:local" json:"auth_type"` // local, ldap
	IsActive   bool           `gorm:"not null" json:"is_active"`
	LastLogin  *time.Time     `json:"last_login"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// DisplayName falls back to the username when no full name is recorded.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
