package services

import (
	"context"
	"errors"
	"time"

	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/utils"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultTokenHours = 24
	minPasswordLength = 6
	defaultAdminName  = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserDisabled       = errors.New("user is disabled")
)

// DirectoryAuthenticator verifies credentials against an external directory.
type DirectoryAuthenticator interface {
	Enabled() bool
	Authenticate(ctx context.Context, username, password string) (*LDAPUser, error)
}

// AuthService issues access tokens for local and directory accounts.
type AuthService struct {
	db        *gorm.DB
	directory DirectoryAuthenticator
	jwt       *config.JWTConfig
	now       func() time.Time
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, directory DirectoryAuthenticator) *AuthService {
	return &AuthService{db: db, directory: directory, jwt: jwtCfg, now: time.Now}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"`
}

type LoginResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expire_at"`
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var (
		user *models.User
		err  error
	)
	switch req.AuthType {
	case "", models.AuthLocal:
		user, err = s.localUser(ctx, req.Username, req.Password)
	case models.AuthLDAP:
		user, err = s.directoryUser(ctx, req.Username, req.Password)
	default:
		return nil, domain.Validation("invalid auth type %q", req.AuthType)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserDisabled
	}
	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*LoginResponse, error) {
	hours := s.jwt.ExpireHour
	if hours <= 0 {
		hours = defaultTokenHours
	}
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, hours)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("[Auth] failed to record last login")
	}
	user.LastLogin = &now
	return &LoginResponse{Token: token, User: user, ExpireAt: now.Add(time.Duration(hours) * time.Hour)}, nil
}

func (s *AuthService) localUser(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? AND auth_type = ?", username, models.AuthLocal).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, err
	}
	// Disabled accounts are reported only after the password matched.
	if !utils.CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// directoryUser authenticates against LDAP. The first login provisions an
// employee record; later logins refresh the profile fields.
func (s *AuthService) directoryUser(ctx context.Context, username, password string) (*models.User, error) {
	if !s.IsLDAPEnabled() {
		return nil, domain.Validation("LDAP is not enabled")
	}
	entry, err := s.directory.Authenticate(ctx, username, password)
	if err != nil {
		logger.Warn().Err(err).Str("username", username).Msg("[Auth] LDAP authentication failed")
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("username = ? AND auth_type = ?", entry.Username, models.AuthLDAP).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				Username:   entry.Username,
				Email:      entry.Email,
				FullName:   entry.FullName,
				Department: entry.Department,
				Position:   entry.Position,
				Role:       models.RoleEmployee,
				AuthType:   models.AuthLDAP,
				IsActive:   true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			logger.Info().Str("username", user.Username).Msg("[Auth] provisioned LDAP user")
			return nil
		}
		if err != nil {
			return err
		}

		profile := map[string]interface{}{"email": entry.Email, "full_name": entry.FullName}
		if entry.Department != "" {
			profile["department"] = entry.Department
		}
		if entry.Position != "" {
			profile["position"] = entry.Position
		}
		return tx.Model(&user).Updates(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.directory != nil && s.directory.Enabled()
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword applies to local accounts only.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return translateNotFound(err, "user", userID)
	}
	switch {
	case user.AuthType != models.AuthLocal:
		return domain.Validation("directory accounts change their password in the directory")
	case !utils.CheckPassword(req.OldPassword, user.Password):
		return domain.Validation("incorrect old password")
	case len(req.NewPassword) < minPasswordLength:
		return domain.Validation("new password must be at least %d characters", minPasswordLength)
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Update("password", hashed).Error
}

// CreateAdminIfNotExists seeds admin/admin on a database without admins.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword(defaultAdminName)
	if err != nil {
		return err
	}
	if err := s.db.Create(&models.User{
		Username: defaultAdminName,
		Password: hashed,
		FullName: "Administrator",
		Role:     models.RoleAdmin,
		AuthType: models.AuthLocal,
		IsActive: true,
	}).Error; err != nil {
		return err
	}
	logger.Warn().Msg("[Auth] created default admin account (admin/admin), change the password")
	return nil
}
