package repository

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"

	"gorm.io/gorm"
)

// StatusGuard narrows an update to rows whose current status still allows it
type StatusGuard struct {
	In    []string
	NotIn []string
}

func (g StatusGuard) apply(q *gorm.DB) *gorm.DB {
	if len(g.In) > 0 {
		q = q.Where("status IN ?", g.In)
	}
	if len(g.NotIn) > 0 {
		q = q.Where("status IS NULL OR status NOT IN ?", g.NotIn)
	}
	return q
}

// AssignmentRepository provides access to the "personal" table
type AssignmentRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Assignment, error)
	FindByCodes(ctx context.Context, codes []string) ([]models.Assignment, error)
	FindByLote(ctx context.Context, lote string) ([]models.Assignment, error)
	CountByLote(ctx context.Context, lote string) (int64, error)
	LastFinish(ctx context.Context, name string) (*time.Time, error)
	EstimatedTimeForSKU(ctx context.Context, sku string) (*int, error)
	Create(ctx context.Context, row *models.Assignment) error
	CreateBatch(ctx context.Context, rows []models.Assignment) error
	UpdateStatus(ctx context.Context, codes []string, fields map[string]interface{}, guard StatusGuard) (int64, error)
	DeleteByCode(ctx context.Context, code string) (int64, error)
	CountsByStatus(ctx context.Context, from, to time.Time) ([]models.StatusCount, error)
}

type assignmentRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db, readOnlyDB *gorm.DB) AssignmentRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &assignmentRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *assignmentRepository) GetByCode(ctx context.Context, code string) (*models.Assignment, error) {
	var row models.Assignment
	err := r.readOnlyDB.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		return nil, translate(err, "failed to get assignment by code")
	}
	return &row, nil
}

func (r *assignmentRepository) FindByCodes(ctx context.Context, codes []string) ([]models.Assignment, error) {
	var rows []models.Assignment
	if len(codes) == 0 {
		return rows, nil
	}
	err := r.readOnlyDB.WithContext(ctx).Where("code IN ?", codes).Find(&rows).Error
	return rows, translate(err, "failed to find assignments by codes")
}

func (r *assignmentRepository) FindByLote(ctx context.Context, lote string) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.readOnlyDB.WithContext(ctx).Where("lote = ?", lote).Order("id").Find(&rows).Error
	return rows, translate(err, "failed to find assignments by lote")
}

func (r *assignmentRepository) CountByLote(ctx context.Context, lote string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).Where("lote = ?", lote).Count(&count).Error
	return count, translate(err, "failed to count lote rows")
}

// LastFinish returns the latest estimated finish for a person, nil when none is recorded
func (r *assignmentRepository) LastFinish(ctx context.Context, name string) (*time.Time, error) {
	var row models.Assignment
	err := r.db.WithContext(ctx).
		Select("date_esti").
		Where("name = ? AND date_esti IS NOT NULL", name).
		Order("date_esti DESC").
		First(&row).Error
	if err != nil {
		if err = translate(err, "failed to get last finish time"); err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row.DateEsti, nil
}

// EstimatedTimeForSKU returns the first known estimate for a sku, nil when none is recorded
func (r *assignmentRepository) EstimatedTimeForSKU(ctx context.Context, sku string) (*int, error) {
	var row models.Assignment
	err := r.readOnlyDB.WithContext(ctx).
		Select("esti_time").
		Where("sku = ? AND esti_time IS NOT NULL", sku).
		Limit(1).
		Take(&row).Error
	if err != nil {
		if err = translate(err, "failed to get estimated time"); err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return row.EstiTime, nil
}

func (r *assignmentRepository) Create(ctx context.Context, row *models.Assignment) error {
	return translate(r.db.WithContext(ctx).Create(row).Error, "failed to create assignment")
}

func (r *assignmentRepository) CreateBatch(ctx context.Context, rows []models.Assignment) error {
	if len(rows) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&rows).Error, "failed to create assignments")
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, codes []string, fields map[string]interface{}, guard StatusGuard) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	q := r.db.WithContext(ctx).Model(&models.Assignment{}).Where("code IN ?", codes)
	res := guard.apply(q).Updates(fields)
	return res.RowsAffected, translate(res.Error, "failed to update assignment status")
}

func (r *assignmentRepository) DeleteByCode(ctx context.Context, code string) (int64, error) {
	res := r.db.WithContext(ctx).Where("code = ?", code).Delete(&models.Assignment{})
	return res.RowsAffected, translate(res.Error, "failed to delete assignment")
}

func (r *assignmentRepository) CountsByStatus(ctx context.Context, from, to time.Time) ([]models.StatusCount, error) {
	var counts []models.StatusCount
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Assignment{}).
		Select("COALESCE(name, '') AS name, status, COUNT(*) AS count").
		Where("date >= ? AND date < ?", from, to).
		Group("name, status").
		Order("name, status").
		Scan(&counts).Error
	return counts, translate(err, "failed to aggregate assignment statuses")
}
