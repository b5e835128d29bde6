package database

import (
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"

	"gorm.io/gorm"
)

const startTimeKey = "qrbrain:start_time"

// RegisterMetricsHooks times every create, query, update and delete
func RegisterMetricsHooks(db *gorm.DB, collector *metrics.Metrics) error {
	cb := db.Callback()

	hooks := []struct {
		kind   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"insert", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"select", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}

	for _, h := range hooks {
		kind := h.kind
		if err := h.before("duration:"+kind, markStart); err != nil {
			return err
		}
		if err := h.after("metrics:"+kind, func(tx *gorm.DB) {
			err := tx.Error
			if IsRecordNotFoundError(err) {
				err = nil
			}
			collector.RecordDBQuery(kind, elapsed(tx), err)
		}); err != nil {
			return err
		}
	}
	return nil
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func elapsed(tx *gorm.DB) time.Duration {
	if start, ok := tx.InstanceGet(startTimeKey); ok {
		return time.Since(start.(time.Time))
	}
	return 0
}
