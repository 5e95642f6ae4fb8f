package database

import (
	"fmt"
	"time"

	"timekeeping/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&models.WorkLocation{},
		&models.Shift{},
		&models.User{},
		&models.AttendanceSession{},
		&models.DailyAttendance{},
		&models.CorrectionRequest{},
	}
}

// Init opens the postgres pool and migrates the schema. verbose logs every
// statement; otherwise only slow queries and errors are logged.
func Init(dsn string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
