package repository

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"

	"gorm.io/gorm"
)

// LabelRepository provides access to the labels store ("etiquetas_i" and "v_code")
type LabelRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Label, error)
	GetCut(ctx context.Context, codeI string) (*models.CutRecord, error)
	MarkCut(ctx context.Context, codeI, operator string, at time.Time) (int64, error)
	TouchPrintDate(ctx context.Context, code string, at time.Time) (int64, error)
}

type labelRepository struct {
	db *gorm.DB
}

// NewLabelRepository creates a new label repository
func NewLabelRepository(db *gorm.DB) LabelRepository {
	return &labelRepository{db: db}
}

func (r *labelRepository) GetByCode(ctx context.Context, code string) (*models.Label, error) {
	var label models.Label
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&label).Error; err != nil {
		return nil, translate(err, "failed to get label")
	}
	return &label, nil
}

func (r *labelRepository) GetCut(ctx context.Context, codeI string) (*models.CutRecord, error) {
	var cut models.CutRecord
	if err := r.db.WithContext(ctx).Where("code_i = ?", codeI).First(&cut).Error; err != nil {
		return nil, translate(err, "failed to get cut record")
	}
	return &cut, nil
}

// MarkCut records the corte only while it is still unset
func (r *labelRepository) MarkCut(ctx context.Context, codeI, operator string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CutRecord{}).
		Where("code_i = ? AND corte_etiquetas IS NULL", codeI).
		Updates(map[string]interface{}{
			"corte_etiquetas": at,
			"personal_bar":    operator,
		})
	return res.RowsAffected, translate(res.Error, "failed to register cut")
}

func (r *labelRepository) TouchPrintDate(ctx context.Context, code string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Label{}).
		Where("code = ?", code).
		Update("imp_date", at)
	return res.RowsAffected, translate(res.Error, "failed to update print date")
}
