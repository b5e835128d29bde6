package database

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Stores groups the connections to both remote datastores.
// ReadOnly falls back to Primary when no replica DSN is configured.
type Stores struct {
	Primary  *gorm.DB
	ReadOnly *gorm.DB
	Labels   *gorm.DB
}

type poolConfig struct {
	maxOpen  int
	maxIdle  int
	lifetime time.Duration
	debug    bool
}

// Connect opens the primary (write and read-only) and labels stores
func Connect(cfg config.Config, collector *metrics.Metrics) (*Stores, error) {
	primaryPool := poolConfig{
		maxOpen:  cfg.DB.MaxOpenConns,
		maxIdle:  cfg.DB.MaxIdleConns,
		lifetime: cfg.DB.ConnMaxLifetime,
		debug:    cfg.DB.Debug,
	}

	primary, err := open(cfg.DB.DSN, primaryPool, collector)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to primary database")
	}

	readOnly := primary
	if cfg.DB.ReadOnlyDSN != "" {
		readOnly, err = open(cfg.DB.ReadOnlyDSN, primaryPool, collector)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to read-only database")
		}
	}

	labels, err := open(cfg.LabelsDB.DSN, poolConfig{
		maxOpen:  cfg.LabelsDB.MaxOpenConns,
		maxIdle:  cfg.LabelsDB.MaxIdleConns,
		lifetime: cfg.LabelsDB.ConnMaxLifetime,
		debug:    cfg.DB.Debug,
	}, collector)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to labels database")
	}

	if cfg.DB.AutoMigrate {
		if err := models.SetupModels(primary); err != nil {
			return nil, errors.Wrap(err, "failed to run migrations")
		}
	}

	return &Stores{Primary: primary, ReadOnly: readOnly, Labels: labels}, nil
}

func open(dsn string, pool poolConfig, collector *metrics.Metrics) (*gorm.DB, error) {
	logLevel := logger.Error
	if pool.debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(&logAdapter{}, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying DB connection")
	}
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetConnMaxLifetime(pool.lifetime)

	if collector != nil {
		if err := RegisterMetricsHooks(db, collector); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics hooks")
		}
	}

	return db, nil
}

// Ping checks connectivity to each store by reading one row from a known table
func (s *Stores) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"primary_db": s.ReadOnly.WithContext(ctx).Select("name").Limit(1).Find(&[]models.Personnel{}).Error,
		"labels_db":  s.Labels.WithContext(ctx).Select("code").Limit(1).Find(&[]models.Label{}).Error,
	}
}

// Close closes every distinct connection pool
func (s *Stores) Close() error {
	seen := map[*gorm.DB]bool{}
	var firstErr error
	for _, db := range []*gorm.DB{s.Primary, s.ReadOnly, s.Labels} {
		if db == nil || seen[db] {
			continue
		}
		seen[db] = true

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsRecordNotFoundError checks if an error is a record not found error
func IsRecordNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// logAdapter routes GORM's logger through zerolog
type logAdapter struct{}

func (l *logAdapter) Printf(format string, args ...interface{}) {
	log.Info().Str("component", "gorm").Msgf(format, args...)
}
