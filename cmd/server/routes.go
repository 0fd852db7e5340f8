package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(svc.cfg.Server.AllowedOrigins))

	loginLimiter := middleware.NewRateLimiter(svc.jobsCtx, 1, 5)

	r.GET("/health", svc.health.CheckHealth)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", loginLimiter.Middleware(), svc.auth.Login)
			auth.GET("/config", svc.auth.Config)
		}
		// Authenticates from the query string itself.
		api.GET("/notifications/stream", svc.notifications.Stream)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog(svc.audit))
		admin := protected.Group("", middleware.AdminRequired())
		managers := protected.Group("", middleware.RoleRequired(models.RoleAdmin, models.RoleManager))

		protected.GET("/auth/me", svc.auth.Me)
		protected.PUT("/auth/password", svc.auth.ChangePassword)
		protected.POST("/auth/logout", svc.auth.Logout)

		// Users
		protected.GET("/users/me/subordinates", svc.users.Subordinates)
		protected.GET("/users/:id", svc.users.Get)
		protected.GET("/users/:id/trend", svc.users.Trend)
		managers.GET("/users", svc.users.List)
		admin.POST("/users", svc.users.Create)
		admin.PUT("/users/:id/profile", svc.users.UpdateProfile)
		admin.PUT("/users/:id/manager", svc.users.SetManager)
		admin.PUT("/users/:id/active", svc.users.SetActive)

		// KPI questions
		protected.GET("/questions", svc.questions.List)
		protected.GET("/questions/weights", svc.questions.Weights)
		protected.GET("/questions/:id", svc.questions.Get)
		admin.POST("/questions", svc.questions.Create)
		admin.PUT("/questions/set", svc.questions.SaveSet)
		admin.PUT("/questions/:id", svc.questions.Update)
		admin.DELETE("/questions/:id", svc.questions.Delete)

		// Competencies
		protected.GET("/competencies", svc.competencies.List)
		protected.GET("/competencies/:id", svc.competencies.Get)
		admin.POST("/competencies", svc.competencies.Create)
		admin.PUT("/competencies/:id", svc.competencies.Update)
		admin.DELETE("/competencies/:id", svc.competencies.Delete)
		admin.POST("/competencies/:id/questions/:questionId", svc.competencies.LinkQuestion)
		admin.DELETE("/competencies/:id/questions/:questionId", svc.competencies.UnlinkQuestion)
		admin.POST("/competencies/:id/degree360-questions/:questionId", svc.competencies.LinkDegree360Question)
		admin.DELETE("/competencies/:id/degree360-questions/:questionId", svc.competencies.UnlinkDegree360Question)
		protected.GET("/users/:id/competencies", svc.competencies.UserScores)
		protected.GET("/users/:id/competencies/:competencyId", svc.competencies.UserScore)

		// Periods
		protected.GET("/periods", svc.evaluations.ListPeriods)
		protected.GET("/periods/:id", svc.evaluations.GetPeriod)
		admin.POST("/periods", svc.evaluations.OpenPeriod)
		admin.PUT("/periods/:id/active", svc.evaluations.SetPeriodActive)
		admin.DELETE("/periods/:id", svc.evaluations.DeletePeriod)
		managers.GET("/periods/:id/performance", svc.reports.PeriodPerformance)
		managers.GET("/periods/:id/departments", svc.reports.Departments)
		managers.GET("/performance/compare", svc.reports.Compare)

		// Evaluations
		protected.GET("/evaluations/pending", svc.evaluations.Pending)
		protected.GET("/evaluations/awaiting-review", svc.evaluations.AwaitingReview)
		protected.GET("/evaluations/completed", svc.evaluations.Completed)
		protected.GET("/evaluations/:id", svc.evaluations.Get)
		protected.GET("/evaluations/:id/score", svc.evaluations.Score)
		protected.POST("/evaluations/:id/submit", svc.evaluations.Submit)
		protected.POST("/evaluations/:id/finalize", svc.evaluations.Finalize)

		// 360° feedback
		protected.GET("/degree360/pending", svc.degree360.Pending)
		protected.GET("/degree360/sessions", svc.degree360.MySessions)
		protected.GET("/degree360/sessions/:id", svc.degree360.GetSession)
		protected.GET("/degree360/sessions/:id/participants", svc.degree360.ListParticipants)
		protected.GET("/degree360/sessions/:id/questions", svc.degree360.ListQuestions)
		protected.GET("/degree360/sessions/:id/results", svc.degree360.Results)
		protected.GET("/degree360/sessions/:id/report", svc.degree360.Report)
		managers.POST("/degree360/sessions", svc.degree360.CreateSession)
		managers.POST("/degree360/sessions/:id/participants", svc.degree360.AddParticipant)
		managers.POST("/degree360/sessions/:id/questions", svc.degree360.AddQuestion)
		managers.POST("/degree360/sessions/:id/close", svc.degree360.Close)
		managers.POST("/degree360/sessions/:id/cancel", svc.degree360.Cancel)
		protected.GET("/degree360/participants/:id/answers", svc.degree360.Answers)
		protected.POST("/degree360/participants/:id/submit", svc.degree360.Submit)

		// Development plans
		protected.GET("/development-plans", svc.pdp.Mine)
		protected.GET("/development-plans/:id", svc.pdp.Get)
		managers.POST("/development-plans", svc.pdp.Create)
		managers.PUT("/development-plans/:id/status", svc.pdp.UpdateStatus)
		managers.POST("/development-plans/:id/items", svc.pdp.AddItem)
		protected.PUT("/development-plans/items/:id/progress", svc.pdp.UpdateProgress)
		protected.POST("/development-plans/items/:id/complete", svc.pdp.CompleteItem)
		managers.DELETE("/development-plans/items/:id", svc.pdp.DeleteItem)
		protected.POST("/development-plans/items/:id/comments", svc.pdp.AddComment)

		// Notifications
		protected.GET("/notifications", svc.notifications.List)
		protected.GET("/notifications/unread", svc.notifications.Unread)
		protected.PUT("/notifications/read-all", svc.notifications.MarkAllRead)
		protected.PUT("/notifications/:id/read", svc.notifications.MarkRead)

		// System logs
		admin.GET("/system-logs", svc.systemLogs.List)
		admin.GET("/system-logs/modules", svc.systemLogs.Modules)
		admin.GET("/system-logs/entities/:type/:id", svc.systemLogs.History)
	}
}
