package database

import (
	"fmt"
	"time"

	"mimic/pkg/config"
	"mimic/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitPostgres opens the warehouse connection, retrying with exponential
// backoff while the database is still coming up.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	gormCfg := &gorm.Config{
		Logger: gormlogger.New(logger.Logger(), gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var db *gorm.DB
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Database.MaxRetries))
	err := backoff.RetryNotify(func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		return sqlDB.Ping()
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying", "error", err, "wait", wait)
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConn)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
