package repository

import (
	"context"

	"github.com/CzarCx/qr-brain/internal/models"

	"gorm.io/gorm"
)

// PersonnelRepository provides access to staff and report reason lookups
type PersonnelRepository interface {
	List(ctx context.Context, role string) ([]models.Personnel, error)
	Create(ctx context.Context, p *models.Personnel) error
	ReportReasons(ctx context.Context) ([]models.ReportReason, error)
}

type personnelRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewPersonnelRepository creates a new personnel repository
func NewPersonnelRepository(db, readOnlyDB *gorm.DB) PersonnelRepository {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	return &personnelRepository{db: db, readOnlyDB: readOnlyDB}
}

func (r *personnelRepository) List(ctx context.Context, role string) ([]models.Personnel, error) {
	var people []models.Personnel
	q := r.readOnlyDB.WithContext(ctx).Order("name")
	if role != "" {
		q = q.Where("rol = ?", role)
	}
	err := q.Find(&people).Error
	return dedupeByName(people), translate(err, "failed to list personnel")
}

func (r *personnelRepository) Create(ctx context.Context, p *models.Personnel) error {
	return translate(r.db.WithContext(ctx).Create(p).Error, "failed to register personnel")
}

func (r *personnelRepository) ReportReasons(ctx context.Context) ([]models.ReportReason, error) {
	var reasons []models.ReportReason
	err := r.readOnlyDB.WithContext(ctx).Order("id").Find(&reasons).Error
	return reasons, translate(err, "failed to list report reasons")
}

// dedupeByName keeps the first row per name, the table allows repeats
func dedupeByName(people []models.Personnel) []models.Personnel {
	seen := make(map[string]bool, len(people))
	out := people[:0]
	for _, p := range people {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}
