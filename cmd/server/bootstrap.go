package main

import (
	"context"

	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/handlers"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/internal/utils"
	"github.com/huangang/perfsentry/pkg/logger"
)

// appServices holds the initialized handlers and the background jobs that
// need stopping on shutdown.
type appServices struct {
	cfg       *config.Config
	taskQueue services.TaskQueue
	worker    *services.Worker
	reminders *services.ReminderService
	audit     *services.SystemLogService
	stopJobs  context.CancelFunc
	jobsCtx   context.Context

	health        *handlers.HealthHandler
	auth          *handlers.AuthHandler
	users         *handlers.UserHandler
	questions     *handlers.QuestionHandler
	competencies  *handlers.CompetencyHandler
	evaluations   *handlers.EvaluationHandler
	reports       *handlers.ReportHandler
	degree360     *handlers.Degree360Handler
	pdp           *handlers.PDPHandler
	notifications *handlers.NotificationHandler
	systemLogs    *handlers.SystemLogHandler
}

// bootstrap initializes the database, the services and the schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database, cfg.Server.Mode == "debug"); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	jobsCtx, stopJobs := context.WithCancel(context.Background())
	systemLogService := services.NewSystemLogService(db)
	systemLogService.StartCleanup(jobsCtx, cfg.Log.RetentionDays)

	// Notifications go through the task queue: Redis when enabled and
	// reachable, otherwise written inline.
	notificationService := services.NewNotificationService(db).WithHub(services.NewNotificationHub())
	taskQueue := services.NewTaskQueue(&cfg.Redis, notificationService.DeliverTask)
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis, notificationService.DeliverTask)
		if err := worker.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start notification worker")
		}
	}
	notifier := services.NewQueueNotifier(taskQueue)

	userService := services.NewUserService(db)
	authService := services.NewAuthService(db, &cfg.JWT, services.NewLDAPService(&cfg.LDAP))
	if err := authService.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	kpiService := services.NewKPIService(db, notifier)
	holidays := services.NewHolidayService()
	degree360Service := services.NewDegree360Service(db, notifier, holidays, cfg.Reminder)

	reminders := services.NewReminderService(db, degree360Service, holidays, cfg.Reminder)
	if err := reminders.StartScheduler(); err != nil {
		logger.Error().Err(err).Str("cron", cfg.Reminder.Cron).Msg("Failed to start reminder scheduler")
	}

	return &appServices{
		cfg:       cfg,
		taskQueue: taskQueue,
		worker:    worker,
		reminders: reminders,
		audit:     systemLogService,
		stopJobs:  stopJobs,
		jobsCtx:   jobsCtx,

		health:        handlers.NewHealthHandler(db, taskQueue),
		auth:          handlers.NewAuthHandler(authService, userService, systemLogService),
		users:         handlers.NewUserHandler(userService, kpiService),
		questions:     handlers.NewQuestionHandler(services.NewQuestionService(db)),
		competencies:  handlers.NewCompetencyHandler(services.NewCompetencyService(db), userService),
		evaluations:   handlers.NewEvaluationHandler(kpiService),
		reports:       handlers.NewReportHandler(kpiService),
		degree360:     handlers.NewDegree360Handler(degree360Service),
		pdp:           handlers.NewPDPHandler(services.NewPDPService(db, notifier)),
		notifications: handlers.NewNotificationHandler(notificationService),
		systemLogs:    handlers.NewSystemLogHandler(systemLogService),
	}
}

// shutdown stops the schedulers, then the queue, then the database.
func (s *appServices) shutdown() {
	s.reminders.StopScheduler()
	s.stopJobs()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if sqlDB, err := models.GetDB().DB(); err == nil {
		sqlDB.Close()
	}
}
