package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/utils"
	"gorm.io/gorm"
)

// UserService is the employee directory: identities, roles and the
// reporting line.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

type CreateUserRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Role       string `json:"role" binding:"omitempty,oneof=admin manager employee"`
	Department string `json:"department"`
	Position   string `json:"position"`
	ManagerID  *uint  `json:"manager_id"`
}

// UpdateProfileRequest changes directory fields; nil leaves a field as is.
type UpdateProfileRequest struct {
	FullName   *string `json:"full_name"`
	Email      *string `json:"email"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateNotFound(err, "user", id)
	}
	return &user, nil
}

func (s *UserService) ActiveUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&users).Error
	return users, err
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

// Subordinates returns the active direct reports of managerID.
func (s *UserService) Subordinates(ctx context.Context, managerID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("manager_id = ? AND is_active = ?", managerID, true).
		Order("id").
		Find(&users).Error
	return users, err
}

func (s *UserService) Create(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, domain.Validation("username is required")
	}
	role := req.Role
	if role == "" {
		role = models.RoleEmployee
	}
	if role != models.RoleAdmin && role != models.RoleManager && role != models.RoleEmployee {
		return nil, domain.Validation("unknown role %q", role)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, domain.Validation("username %q already exists", username)
	}
	if req.ManagerID != nil {
		if _, err := s.GetUser(ctx, *req.ManagerID); err != nil {
			return nil, err
		}
	}

	user := models.User{
		Username:   username,
		FullName:   strings.TrimSpace(req.FullName),
		Email:      strings.TrimSpace(req.Email),
		Role:       role,
		Department: strings.TrimSpace(req.Department),
		Position:   strings.TrimSpace(req.Position),
		ManagerID:  req.ManagerID,
		AuthType:   models.AuthLocal,
		IsActive:   true,
	}
	if req.Password != "" {
		hashed, err := utils.HashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hashed
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile edits the directory fields of a user. LDAP logins refresh
// these from the directory, so edits to LDAP users last until the next login
// that carries a value.
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req *UpdateProfileRequest) (*models.User, error) {
	updates := map[string]interface{}{}
	for column, v := range map[string]*string{
		"full_name":  req.FullName,
		"email":      req.Email,
		"department": req.Department,
		"position":   req.Position,
	} {
		if v != nil {
			updates[column] = strings.TrimSpace(*v)
		}
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return translateNotFound(err, "user", userID)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&user, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetManager changes the reporting line. A user cannot manage themselves and
// cycles are rejected.
func (s *UserService) SetManager(ctx context.Context, userID uint, managerID *uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return translateNotFound(err, "user", userID)
		}
		if managerID != nil {
			if *managerID == userID {
				return domain.Validation("user %d cannot be their own manager", userID)
			}
			// Walk up from the new manager; reaching userID means a cycle.
			seen := map[uint]bool{}
			cur := *managerID
			for {
				var m models.User
				if err := tx.First(&m, cur).Error; err != nil {
					return translateNotFound(err, "user", cur)
				}
				if m.ManagerID == nil || seen[m.ID] {
					break
				}
				if *m.ManagerID == userID {
					return domain.Validation("reporting line would form a cycle")
				}
				seen[m.ID] = true
				cur = *m.ManagerID
			}
		}
		return tx.Model(&user).Update("manager_id", managerID).Error
	})
}

func (s *UserService) SetActive(ctx context.Context, userID uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("user", userID)
	}
	return nil
}

// activeManagerOf returns the subject's manager if one is set and active.
func activeManagerOf(tx *gorm.DB, user *models.User) (*models.User, error) {
	if user.ManagerID == nil {
		return nil, nil
	}
	var m models.User
	err := tx.Where("id = ? AND is_active = ?", *user.ManagerID, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
