package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	audit       middleware.AuditRecorder
}

// NewAuthHandler wires the auth endpoints. audit may be nil.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService, audit middleware.AuditRecorder) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, audit: audit}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUserDisabled):
		response.Unauthorized(c, err.Error())
		return
	case err != nil:
		response.Error(c, err)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(c.Request.Context(), services.AuditEntry{
			Module:    "Auth",
			Action:    "Login",
			Message:   "[Auth] " + resp.User.Username + " logged in",
			UserID:    &resp.User.ID,
			RequestID: middleware.GetRequestID(c),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra:     map[string]interface{}{"auth_type": resp.User.AuthType},
		})
	}
	response.Success(c, resp)
}

// Me returns the acting user
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.userService.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

// Config tells the login page which providers are available
// GET /api/auth/config
func (h *AuthHandler) Config(c *gin.Context) {
	response.Success(c, gin.H{"ldap_enabled": h.authService.IsLDAPEnabled()})
}

// ChangePassword
// PUT /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.authService.ChangePassword(c.Request.Context(), middleware.GetUserID(c), &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Logout is client side; the token simply expires.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, gin.H{"message": "logged out successfully"})
}
