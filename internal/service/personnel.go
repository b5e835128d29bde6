package service

import (
	"context"
	"strings"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/pkg/errors"
)

// RegisterPersonnelRequest adds a staff member
type RegisterPersonnelRequest struct {
	Name string `json:"name" validate:"required"`
	Rol  string `json:"rol" validate:"required"`
}

// ListPersonnel lists staff, optionally by role
func (s *Service) ListPersonnel(ctx context.Context, role string) ([]models.Personnel, error) {
	return s.personnel.List(ctx, strings.TrimSpace(role))
}

// RegisterPersonnel adds a staff member with one of the fixed roles
func (s *Service) RegisterPersonnel(ctx context.Context, req RegisterPersonnelRequest) (*models.Personnel, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name", "a name is required")
	}
	if !validRole(req.Rol) {
		return nil, invalid("rol", "role must be one of: %s", strings.Join(models.Roles, ", "))
	}

	p := &models.Personnel{Name: name, Rol: req.Rol}
	if err := s.personnel.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("staff member already registered")
		}
		return nil, err
	}

	s.forgetPersonnelNames()
	return p, nil
}

// ReportReasons lists the selectable report reasons
func (s *Service) ReportReasons(ctx context.Context) ([]models.ReportReason, error) {
	return s.personnel.ReportReasons(ctx)
}

// SearchScans queries indexed scan logs
func (s *Service) SearchScans(ctx context.Context, query string, size int) ([]models.ScanLog, error) {
	if s.index == nil {
		return nil, ErrSearchDisabled
	}
	if size <= 0 || size > 500 {
		size = 50
	}
	return s.index.SearchScans(ctx, strings.TrimSpace(query), size)
}

// ErrSearchDisabled is returned when no search index is configured
var ErrSearchDisabled = errors.New("scan search is not enabled")

func validRole(role string) bool {
	for _, r := range models.Roles {
		if r == role {
			return true
		}
	}
	return false
}
