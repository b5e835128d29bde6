package service

import (
	"context"
	"fmt"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/workflow"

	"github.com/pkg/errors"
)

// Class is the outcome of looking a code up
type Class string

const (
	ClassAssignable      Class = "assignable"
	ClassAlreadyAssigned Class = "already-assigned"
	ClassBlocked         Class = "blocked-precondition"
	ClassNotFound        Class = "not-found"
)

// Classification is what a station may do with a code
type Classification struct {
	Class    Class
	Reason   string
	Existing *models.Assignment
	Label    *models.Label
}

// Classify looks code up in a fixed order: the primary store, the corte gate
// when the profile has one, then the labels store.
func (s *Service) Classify(ctx context.Context, p workflow.Profile, code string, override bool) (*Classification, error) {
	existing, err := s.assignments.GetByCode(ctx, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		return classifyExisting(p, code, existing, override), nil
	}

	if p.RequireAssignment {
		return &Classification{
			Class:  ClassNotFound,
			Reason: fmt.Sprintf("code %s has not been assigned yet", code),
		}, nil
	}

	label, err := s.labels.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return &Classification{
			Class:  ClassNotFound,
			Reason: fmt.Sprintf("code %s was not found in the labels database", code),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if p.CutGate {
		blocked, err := s.cutBlocked(ctx, code, label)
		if err != nil {
			return nil, err
		}
		if blocked != nil {
			return blocked, nil
		}
	}

	return &Classification{Class: ClassAssignable, Label: label}, nil
}

func classifyExisting(p workflow.Profile, code string, row *models.Assignment, override bool) *Classification {
	c := &Classification{Existing: row}

	switch p.Evaluate(row.Status, override) {
	case workflow.VerdictDone:
		c.Class = ClassAlreadyAssigned
		if p.AnyExistingDone {
			c.Reason = fmt.Sprintf("code %s was already assigned to %s by %s", code, models.Deref(row.Name), models.Deref(row.NameInc))
		} else {
			c.Reason = fmt.Sprintf("label already processed (status: %s)", row.Status)
		}
	case workflow.VerdictBlocked:
		c.Class = ClassBlocked
		c.Reason = fmt.Sprintf("package %s is %s and cannot continue", code, row.Status)
	case workflow.VerdictNotQualified:
		c.Class = ClassBlocked
		c.Reason = fmt.Sprintf("package %s has not been qualified yet (status: %s)", code, row.Status)
	default:
		c.Class = ClassAssignable
	}
	return c
}

// cutBlocked returns a blocked classification unless the label's corte was recorded
func (s *Service) cutBlocked(ctx context.Context, code string, label *models.Label) (*Classification, error) {
	codeI := models.Deref(label.CodeI)
	if codeI == "" {
		return &Classification{
			Class:  ClassBlocked,
			Label:  label,
			Reason: fmt.Sprintf("label %s has no cut code (code_i)", code),
		}, nil
	}

	cut, err := s.labels.GetCut(ctx, codeI)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if cut == nil || cut.CorteEtiquetas == nil {
		return &Classification{
			Class:  ClassBlocked,
			Label:  label,
			Reason: fmt.Sprintf("label %s cannot be assigned because the cut has not been done", code),
		}, nil
	}
	return nil, nil
}
