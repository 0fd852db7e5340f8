package services

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reminderJob = "degree360_reminders"

// ReminderService runs the daily 360° reminder job. Replicas share the
// database, so each day's run is claimed through a JobRun row.
type ReminderService struct {
	db        *gorm.DB
	degree360 *Degree360Service
	holidays  *HolidayService
	cfg       config.ReminderConfig
	instance  string

	cronScheduler  *cron.Cron
	currentEntryID cron.EntryID
	now            func() time.Time
}

func NewReminderService(db *gorm.DB, degree360 *Degree360Service, holidays *HolidayService, cfg config.ReminderConfig) *ReminderService {
	host, _ := os.Hostname()
	return &ReminderService{
		db:        db,
		degree360: degree360,
		holidays:  holidays,
		cfg:       cfg,
		instance:  host + "-" + uuid.NewString()[:8],
		now:       time.Now,
	}
}

func (s *ReminderService) StartScheduler() error {
	if !s.cfg.Enabled {
		logger.Info().Msg("[Reminder] Scheduler disabled")
		return nil
	}
	if !s.holidays.Supports(s.cfg.Country) {
		logger.Warn().Str("country", s.cfg.Country).Msg("[Reminder] unknown country, counting Monday to Friday")
	}
	s.cronScheduler = cron.New()

	expr := s.cfg.Cron
	if expr == "" {
		expr = "0 9 * * *"
	}
	entryID, err := s.cronScheduler.AddFunc(expr, func() {
		ctx := context.Background()
		if _, err := s.PurgeExpiredRuns(ctx); err != nil {
			logger.Warn().Err(err).Msg("[Reminder] failed to purge expired job runs")
		}
		if _, err := s.RunOnce(ctx, s.now()); err != nil {
			logger.Error().Err(err).Msg("[Reminder] run failed")
		}
	})
	if err != nil {
		return err
	}
	s.currentEntryID = entryID

	s.cronScheduler.Start()
	logger.Info().Str("cron", expr).Str("country", s.cfg.Country).Msg("[Reminder] Scheduler started")
	return nil
}

func (s *ReminderService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// RunOnce sends today's reminders. Non-workdays and days another instance
// already claimed are skipped.
func (s *ReminderService) RunOnce(ctx context.Context, today time.Time) (int, error) {
	if !s.holidays.IsWorkday(today, s.cfg.Country) {
		logger.Debug().Str("date", today.Format("2006-01-02")).Msg("[Reminder] not a workday, skipping")
		return 0, nil
	}
	claimed, err := s.claim(ctx, today)
	if err != nil {
		return 0, err
	}
	if !claimed {
		logger.Debug().Str("date", today.Format("2006-01-02")).Msg("[Reminder] already ran today")
		return 0, nil
	}
	return s.degree360.SendReminders(ctx, today)
}

func (s *ReminderService) claim(ctx context.Context, today time.Time) (bool, error) {
	now := s.now()
	run := models.JobRun{
		Job:       reminderJob,
		Slot:      today.Format("2006-01-02"),
		ClaimedBy: s.instance,
		ClaimedAt: now,
		ExpiresAt: dayOf(today).AddDate(0, 0, 1),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&run)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PurgeExpiredRuns drops claims whose day has passed.
func (s *ReminderService) PurgeExpiredRuns(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.JobRun{})
	return res.RowsAffected, res.Error
}
