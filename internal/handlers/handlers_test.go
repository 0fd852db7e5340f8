package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/internal/utils"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name),
	}, false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	notifications := services.NewNotificationService(db).WithHub(services.NewNotificationHub())
	users := services.NewUserService(db)
	kpi := services.NewKPIService(db, notifications)
	audit := services.NewSystemLogService(db)
	auth := NewAuthHandler(services.NewAuthService(db, &config.JWTConfig{ExpireHour: 1}, nil), users, audit)
	userHandler := NewUserHandler(users, kpi)
	questions := NewQuestionHandler(services.NewQuestionService(db))
	competencies := NewCompetencyHandler(services.NewCompetencyService(db), users)
	evaluations := NewEvaluationHandler(kpi)
	reports := NewReportHandler(kpi)
	degree360 := NewDegree360Handler(services.NewDegree360Service(db, notifications, nil, config.ReminderConfig{}))
	pdp := NewPDPHandler(services.NewPDPService(db, notifications))
	notes := NewNotificationHandler(notifications)

	r := gin.New()
	r.GET("/health", NewHealthHandler(db, services.NewSyncQueue(nil)).CheckHealth)
	r.POST("/api/auth/login", auth.Login)
	r.GET("/api/notifications/stream", notes.Stream)

	api := r.Group("/api", middleware.AuthRequired(), middleware.AuditLog(audit))
	admin := api.Group("", middleware.AdminRequired())
	managers := api.Group("", middleware.RoleRequired(models.RoleAdmin, models.RoleManager))

	api.GET("/auth/me", auth.Me)
	api.GET("/users/:id", userHandler.Get)
	api.GET("/users/:id/trend", userHandler.Trend)
	admin.POST("/users", userHandler.Create)
	admin.PUT("/users/:id/profile", userHandler.UpdateProfile)

	api.GET("/questions/weights", questions.Weights)
	admin.POST("/questions", questions.Create)
	admin.PUT("/questions/set", questions.SaveSet)

	api.GET("/competencies/:id", competencies.Get)
	admin.POST("/competencies", competencies.Create)
	admin.POST("/competencies/:id/questions/:questionId", competencies.LinkQuestion)
	admin.DELETE("/competencies/:id/questions/:questionId", competencies.UnlinkQuestion)
	api.GET("/users/:id/competencies", competencies.UserScores)
	api.GET("/users/:id/competencies/:competencyId", competencies.UserScore)

	admin.POST("/periods", evaluations.OpenPeriod)
	admin.DELETE("/periods/:id", evaluations.DeletePeriod)
	managers.GET("/periods/:id/performance", reports.PeriodPerformance)
	managers.GET("/performance/compare", reports.Compare)
	api.GET("/evaluations/pending", evaluations.Pending)
	api.GET("/evaluations/awaiting-review", evaluations.AwaitingReview)
	api.GET("/evaluations/:id", evaluations.Get)
	api.GET("/evaluations/:id/score", evaluations.Score)
	api.POST("/evaluations/:id/submit", evaluations.Submit)
	api.POST("/evaluations/:id/finalize", evaluations.Finalize)

	managers.POST("/degree360/sessions", degree360.CreateSession)
	managers.POST("/degree360/sessions/:id/participants", degree360.AddParticipant)
	managers.POST("/degree360/sessions/:id/questions", degree360.AddQuestion)
	api.GET("/degree360/pending", degree360.Pending)
	api.GET("/degree360/sessions/:id/report", degree360.Report)
	api.POST("/degree360/participants/:id/submit", degree360.Submit)

	managers.POST("/development-plans", pdp.Create)
	managers.POST("/development-plans/:id/items", pdp.AddItem)
	api.GET("/development-plans/:id", pdp.Get)
	api.PUT("/development-plans/items/:id/progress", pdp.UpdateProgress)

	logs := NewSystemLogHandler(audit)
	admin.GET("/system-logs", logs.List)
	admin.GET("/system-logs/entities/:type/:id", logs.History)

	api.GET("/notifications/unread", notes.Unread)
	api.PUT("/notifications/read-all", notes.MarkAllRead)

	return &testServer{t: t, db: db, router: r}
}

func (s *testServer) user(username, role string, managerID *uint) *models.User {
	s.t.Helper()
	u := &models.User{
		Username:   username,
		FullName:   strings.ToUpper(username[:1]) + username[1:],
		Role:       role,
		Department: "Engineering",
		ManagerID:  managerID,
		AuthType:   "local",
		IsActive:   true,
	}
	if err := s.db.Create(u).Error; err != nil {
		s.t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (s *testServer) do(u *models.User, method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		token, err := utils.GenerateToken(u.ID, u.Username, u.Role, 1)
		if err != nil {
			s.t.Fatalf("generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

