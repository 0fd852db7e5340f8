package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/huangang/perfsentry/internal/models"
)

func TestUserHandler_UpdateProfile(t *testing.T) {
	s := newTestServer(t)
	admin := s.user("root", models.RoleAdmin, nil)
	emp := s.user("sam", models.RoleEmployee, nil)
	path := fmt.Sprintf("/api/users/%d/profile", emp.ID)

	tests := []struct {
		name   string
		actor  *models.User
		path   string
		body   interface{}
		status int
	}{
		{"employee", emp, path, map[string]string{"position": "CTO"}, http.StatusForbidden},
		{"missing user", admin, "/api/users/999/profile", map[string]string{"position": "x"}, http.StatusNotFound},
		{"bad body", admin, path, []int{1}, http.StatusBadRequest},
		{"admin", admin, path, map[string]string{"position": "Backend Engineer"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, env := s.do(tt.actor, http.MethodPut, tt.path, tt.body); code != tt.status {
				t.Errorf("status = %d, want %d, body = %+v", code, tt.status, env)
			}
		})
	}

	_, env := s.do(emp, http.MethodGet, fmt.Sprintf("/api/users/%d", emp.ID), nil)
	if got := decode[models.User](t, env); got.Position != "Backend Engineer" || got.Department != "Engineering" {
		t.Errorf("user = %+v, want position set and department kept", got)
	}
}
