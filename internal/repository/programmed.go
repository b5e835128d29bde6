package repository

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"

	"gorm.io/gorm"
)

// ProgrammedRepository provides access to the "personal_prog" table
type ProgrammedRepository interface {
	LoteExists(ctx context.Context, lote string) (bool, error)
	CreateBatch(ctx context.Context, rows []models.ProgrammedItem) error
	FindByName(ctx context.Context, name string) ([]models.ProgrammedItem, error)
	FindByLote(ctx context.Context, lote string) ([]models.ProgrammedItem, error)
	DistinctNames(ctx context.Context) ([]string, error)
	DistinctLotes(ctx context.Context) ([]string, error)
	ListLoteMembers(ctx context.Context) ([]models.ProgrammedItem, error)
	DeleteByLote(ctx context.Context, lote string) (int64, error)
	MoveToAssignments(ctx context.Context, rows []models.Assignment) error
	StartingBetween(ctx context.Context, from, to time.Time) ([]models.ProgrammedItem, error)
}

type programmedRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProgrammedRepository creates a new programmed production repository
func NewProgrammedRepository(db, readOnlyDB *gorm.DB) ProgrammedRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &programmedRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *programmedRepository) LoteExists(ctx context.Context, lote string) (bool, error) {
	var rows []models.ProgrammedItem
	err := r.db.WithContext(ctx).Select("lote_p").Where("lote_p = ?", lote).Limit(1).Find(&rows).Error
	if err != nil {
		return false, translate(err, "failed to check lote")
	}
	return len(rows) > 0, nil
}

func (r *programmedRepository) CreateBatch(ctx context.Context, rows []models.ProgrammedItem) error {
	if len(rows) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&rows).Error, "failed to create programmed items")
}

func (r *programmedRepository) FindByName(ctx context.Context, name string) ([]models.ProgrammedItem, error) {
	var rows []models.ProgrammedItem
	err := r.readOnlyDB.WithContext(ctx).Where("name = ?", name).Order("date_ini").Find(&rows).Error
	return rows, translate(err, "failed to find programmed items by name")
}

func (r *programmedRepository) FindByLote(ctx context.Context, lote string) ([]models.ProgrammedItem, error) {
	var rows []models.ProgrammedItem
	err := r.readOnlyDB.WithContext(ctx).Where("lote_p = ?", lote).Order("date_ini").Find(&rows).Error
	return rows, translate(err, "failed to find programmed items by lote")
}

func (r *programmedRepository) DistinctNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProgrammedItem{}).
		Where("name IS NOT NULL").
		Distinct().
		Order("name").
		Pluck("name", &names).Error
	return names, translate(err, "failed to list programmed names")
}

func (r *programmedRepository) DistinctLotes(ctx context.Context) ([]string, error) {
	var lotes []string
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.ProgrammedItem{}).
		Where("lote_p IS NOT NULL").
		Distinct().
		Order("lote_p").
		Pluck("lote_p", &lotes).Error
	return lotes, translate(err, "failed to list programmed lotes")
}

// ListLoteMembers returns the columns the aggregated lote view is built from
func (r *programmedRepository) ListLoteMembers(ctx context.Context) ([]models.ProgrammedItem, error) {
	var rows []models.ProgrammedItem
	err := r.readOnlyDB.WithContext(ctx).
		Select("lote_p", "name_inc", "date", "esti_time").
		Where("lote_p IS NOT NULL").
		Order("id").
		Find(&rows).Error
	return rows, translate(err, "failed to list lote members")
}

func (r *programmedRepository) DeleteByLote(ctx context.Context, lote string) (int64, error) {
	res := r.db.WithContext(ctx).Where("lote_p = ?", lote).Delete(&models.ProgrammedItem{})
	return res.RowsAffected, translate(res.Error, "failed to delete lote")
}

// MoveToAssignments inserts the assignments and removes their codes from programmed production atomically
func (r *programmedRepository) MoveToAssignments(ctx context.Context, rows []models.Assignment) error {
	if len(rows) == 0 {
		return nil
	}

	codes := make([]string, len(rows))
	for i, row := range rows {
		codes[i] = row.Code
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return translate(err, "failed to insert assignments")
		}
		if err := tx.Where("code IN ?", codes).Delete(&models.ProgrammedItem{}).Error; err != nil {
			return translate(err, "failed to remove programmed items")
		}
		return nil
	})
}

func (r *programmedRepository) StartingBetween(ctx context.Context, from, to time.Time) ([]models.ProgrammedItem, error) {
	var rows []models.ProgrammedItem
	err := r.readOnlyDB.WithContext(ctx).
		Where("date_ini >= ? AND date_ini < ?", from, to).
		Order("date_ini").
		Find(&rows).Error
	return rows, translate(err, "failed to find upcoming programmed items")
}
