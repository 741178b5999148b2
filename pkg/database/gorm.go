package database

import (
	"fmt"
	"time"

	"group_chat_service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// NewPGConnection create a gorm postgres connection have retry
func NewPGConnection(d Connection) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i <= d.RetryCount; i++ {
		db, err = gorm.Open(postgres.Open(d.ConnectStr), &gorm.Config{
			Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
		})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				if err = sqlDB.Ping(); err == nil {
					return db, nil
				}
			} else {
				err = dbErr
			}
		}

		logger.Log.Warn("Failed to open gorm postgres, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		if i < d.RetryCount {
			time.Sleep(d.RetryInterval * time.Second)
		}
	}

	return nil, fmt.Errorf("gorm postgres unavailable after %d attempts: %w", d.RetryCount+1, err)
}

// CloseGorm close the pool behind gorm
func CloseGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
