package repository

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"

	"gorm.io/gorm"
)

// ActivityRepository records scan logs and productivity KPIs
type ActivityRepository interface {
	CreateKPI(ctx context.Context, kpi *models.KPI) error
	CreateScanLogs(ctx context.Context, logs []models.ScanLog) error
	KPIsBetween(ctx context.Context, from, to time.Time) ([]models.KPI, error)
}

type activityRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db, readOnlyDB *gorm.DB) ActivityRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &activityRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *activityRepository) CreateKPI(ctx context.Context, kpi *models.KPI) error {
	return translate(r.db.WithContext(ctx).Create(kpi).Error, "failed to save KPI")
}

func (r *activityRepository) CreateScanLogs(ctx context.Context, logs []models.ScanLog) error {
	if len(logs) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&logs).Error, "failed to save scan logs")
}

func (r *activityRepository) KPIsBetween(ctx context.Context, from, to time.Time) ([]models.KPI, error) {
	var kpis []models.KPI
	err := r.readOnlyDB.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at").
		Find(&kpis).Error
	return kpis, translate(err, "failed to list KPIs")
}
