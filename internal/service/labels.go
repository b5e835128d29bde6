package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/workflow"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AcceptRequest qualifies a single label
type AcceptRequest struct {
	NextDay  bool   `json:"next_day"`
	Workflow string `json:"workflow" validate:"omitempty,oneof=qualify print"`
}

// ReportRequest flags a single label with a reason
type ReportRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CutRequest records the corte of a cut code
type CutRequest struct {
	Operator string `json:"operator" validate:"required"`
}

// CutResult reports a corte verification
type CutResult struct {
	CodeI             string    `json:"code_i"`
	AlreadyRegistered bool      `json:"already_registered"`
	PersonalBar       string    `json:"personal_bar"`
	At                time.Time `json:"at"`
}

// Accept qualifies a label. The print station only stamps date_cal.
func (s *Service) Accept(ctx context.Context, code string, req AcceptRequest) (err error) {
	defer s.trace("Accept", &err)()

	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("code", "a code is required")
	}

	at := qualifiedAt(s.now(), req.NextDay)
	fields := map[string]interface{}{
		"status":   models.StatusQualified,
		"details":  nil,
		"date_cal": at,
	}
	if req.Workflow != workflow.Print {
		fields["date"] = at
	}

	return s.updateOne(ctx, code, models.StatusQualified, fields, repository.StatusGuard{NotIn: terminalStatuses})
}

// Report flags a label as REPORTADO with the given reason
func (s *Service) Report(ctx context.Context, code string, req ReportRequest) (err error) {
	defer s.trace("Report", &err)()

	code = strings.TrimSpace(code)
	reason := strings.TrimSpace(req.Reason)
	if code == "" {
		return invalid("code", "a code is required")
	}
	if reason == "" {
		return invalid("reason", "select a report reason")
	}

	fields := map[string]interface{}{
		"status":  models.StatusReported,
		"details": reason,
	}
	return s.updateOne(ctx, code, models.StatusReported, fields, repository.StatusGuard{NotIn: terminalStatuses})
}

// Cancel marks a package as CANCELADO
func (s *Service) Cancel(ctx context.Context, code string) (err error) {
	defer s.trace("Cancel", &err)()

	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("code", "enter a code to cancel")
	}

	fields := map[string]interface{}{"status": models.StatusCancelled}
	rows, err := s.assignments.UpdateStatus(ctx, []string{code}, fields, repository.StatusGuard{NotIn: []string{models.StatusCancelled}})
	if err != nil {
		return err
	}
	if rows > 0 {
		s.metrics.RecordTransition(models.StatusCancelled, int(rows))
		return nil
	}

	// nothing updated: either the code is unknown or it is already cancelled
	if _, err := s.assignments.GetByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errors.Wrapf(repository.ErrNotFound, "no package found with code %s", code)
		}
		return err
	}
	return nil
}

// Unassign removes the assignment of a code
func (s *Service) Unassign(ctx context.Context, code string) (err error) {
	defer s.trace("Unassign", &err)()

	code = strings.TrimSpace(code)
	rows, err := s.assignments.DeleteByCode(ctx, code)
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(repository.ErrNotFound, "code %s is not assigned to anyone", code)
	}

	log.Info().Str("code", code).Msg("Code unassigned")
	return nil
}

// TouchPrintDate stamps the label's print date with the current time
func (s *Service) TouchPrintDate(ctx context.Context, code string) (err error) {
	defer s.trace("TouchPrintDate", &err)()

	code = strings.TrimSpace(code)
	rows, err := s.labels.TouchPrintDate(ctx, code, s.now())
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(repository.ErrNotFound, "code %s does not exist in the labels database", code)
	}
	return nil
}

// VerifyCut records the corte for a cut code unless it was already recorded
func (s *Service) VerifyCut(ctx context.Context, codeI string, req CutRequest) (result *CutResult, err error) {
	defer s.trace("VerifyCut", &err)()

	codeI = strings.TrimSpace(codeI)
	operator := strings.TrimSpace(req.Operator)
	if codeI == "" {
		return nil, invalid("code", "enter a code to verify")
	}
	if operator == "" {
		return nil, invalid("operator", "select the operator performing the cut")
	}

	cut, err := s.labels.GetCut(ctx, codeI)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(repository.ErrNotFound, "code %s was not found in v_code", codeI)
	}
	if err != nil {
		return nil, err
	}
	if cut.CorteEtiquetas != nil {
		return registeredCut(cut), nil
	}

	now := s.now()
	rows, err := s.labels.MarkCut(ctx, codeI, operator, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// recorded by someone else since the read
		cut, err = s.labels.GetCut(ctx, codeI)
		if err != nil {
			return nil, err
		}
		return registeredCut(cut), nil
	}

	return &CutResult{CodeI: codeI, PersonalBar: operator, At: now}, nil
}

func registeredCut(cut *models.CutRecord) *CutResult {
	r := &CutResult{CodeI: cut.CodeI, AlreadyRegistered: true, PersonalBar: models.Deref(cut.PersonalBar)}
	if cut.CorteEtiquetas != nil {
		r.At = *cut.CorteEtiquetas
	}
	return r
}

// updateOne applies a guarded single-row transition. Zero affected rows is
// not-found when the code is absent and a conflict otherwise.
func (s *Service) updateOne(ctx context.Context, code, status string, fields map[string]interface{}, guard repository.StatusGuard) error {
	rows, err := s.assignments.UpdateStatus(ctx, []string{code}, fields, guard)
	if err != nil {
		return err
	}
	if rows > 0 {
		s.metrics.RecordTransition(status, int(rows))
		return nil
	}

	current, err := s.assignments.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return errors.Wrapf(repository.ErrNotFound, "no package found with code %s", code)
	}
	if err != nil {
		return err
	}
	return conflict(fmt.Sprintf("package %s is %s and cannot be moved to %s", code, current.Status, status))
}
