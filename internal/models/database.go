package models

import (
	"fmt"

	"github.com/huangang/perfsentry/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database without touching the package
// global. Tests use it to get isolated handles.
func Open(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite has a single writer; one connection also keeps the pragma
		// below in effect for every statement.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)

		// Cascades on periods and sessions rely on FK enforcement.
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return db, nil
}

func InitDB(cfg *config.DatabaseConfig, debug bool) error {
	db, err := Open(cfg, debug)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// AllModels lists every persisted entity in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&EvaluationPeriod{},
		&Question{},
		&Evaluation{},
		&Answer{},
		&Degree360Session{},
		&Degree360Participant{},
		&Degree360Question{},
		&Degree360Answer{},
		&Competency{},
		&DevelopmentPlan{},
		&PlanItem{},
		&PlanItemComment{},
		&Notification{},
		&SystemLog{},
		&JobRun{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}
