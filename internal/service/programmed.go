package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AssignProgrammedRequest moves programmed production to a person.
// Exactly one of Name and Lote selects the rows.
type AssignProgrammedRequest struct {
	Name     string `json:"name"`
	Lote     string `json:"lote"`
	Assignee string `json:"assignee" validate:"required"`
}

// ProgrammedAssignees lists the people with programmed production
func (s *Service) ProgrammedAssignees(ctx context.Context) ([]string, error) {
	return s.programmed.DistinctNames(ctx)
}

// ProgrammedLotes lists the programmed lotes
func (s *Service) ProgrammedLotes(ctx context.Context) ([]string, error) {
	return s.programmed.DistinctLotes(ctx)
}

// ListProgrammed loads programmed production by person or by lote
func (s *Service) ListProgrammed(ctx context.Context, name, lote string) ([]models.ProgrammedItem, error) {
	name, lote = strings.TrimSpace(name), strings.TrimSpace(lote)

	var rows []models.ProgrammedItem
	var err error
	switch {
	case name != "" && lote != "":
		return nil, invalid("filter", "filter by person or by lote, not both")
	case name != "":
		rows, err = s.programmed.FindByName(ctx, name)
	case lote != "":
		rows, err = s.programmed.FindByLote(ctx, lote)
	default:
		return nil, invalid("filter", "select a person or a lote to load")
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(repository.ErrNotFound, "no programmed production for the selection")
	}
	return rows, nil
}

// AssignProgrammed assigns programmed rows to a person, chaining them after
// the person's last finish in date_ini order, and removes them from
// programmed production in one transaction.
func (s *Service) AssignProgrammed(ctx context.Context, req AssignProgrammedRequest) (result *CommitResult, err error) {
	defer s.trace("AssignProgrammed", &err)()

	assignee := strings.TrimSpace(req.Assignee)
	if assignee == "" {
		return nil, invalid("assignee", "select the person to assign to")
	}

	rows, err := s.ListProgrammed(ctx, req.Name, req.Lote)
	if err != nil {
		return nil, err
	}

	last, err := s.assignments.LastFinish(ctx, assignee)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sortByStart(rows)

	minutes := make([]*int, len(rows))
	for i, row := range rows {
		minutes[i] = row.EstiTime
	}
	slots := Fold(foldStart(now, last), minutes)

	assignments := make([]models.Assignment, len(rows))
	for i, row := range rows {
		assignments[i] = models.Assignment{
			Code:         row.Code,
			SKU:          row.SKU,
			Name:         models.StringPtr(assignee),
			NameInc:      row.NameInc,
			Place:        row.Place,
			Product:      row.Product,
			Quantity:     row.Quantity,
			Organization: row.Organization,
			SalesNum:     row.SalesNum,
			Date:         timePtr(now),
			Status:       models.StatusAssigned,
			EstiTime:     row.EstiTime,
			DeliDate:     row.DeliDate,
			DateIni:      timePtr(slots[i].Start),
			DateEsti:     timePtr(slots[i].Finish),
		}
	}

	if err := s.programmed.MoveToAssignments(ctx, assignments); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("one or more codes already exist in assignments")
		}
		return nil, err
	}

	s.metrics.RecordTransition(models.StatusAssigned, len(assignments))
	for _, lote := range lotesOf(rows) {
		s.publish(ctx, models.ChangeEvent{Op: models.ChangeMove, Lote: lote.name, Name: assignee, Codes: lote.codes})
	}

	log.Info().Str("assignee", assignee).Int("count", len(assignments)).Msg("Programmed production assigned")
	return &CommitResult{
		Name:   assignee,
		Lote:   strings.TrimSpace(req.Lote),
		Count:  len(assignments),
		Start:  slots[0].Start,
		Finish: slots[len(slots)-1].Finish,
	}, nil
}

type loteCodes struct {
	name  string
	codes []string
}

// lotesOf groups moved codes by their lote_p in first-seen order; rows
// without a lote are skipped.
func lotesOf(rows []models.ProgrammedItem) []loteCodes {
	var out []loteCodes
	index := make(map[string]int)
	for _, row := range rows {
		lote := strings.TrimSpace(models.Deref(row.LoteP))
		if lote == "" {
			continue
		}
		i, ok := index[lote]
		if !ok {
			i = len(out)
			index[lote] = i
			out = append(out, loteCodes{name: lote})
		}
		out[i].codes = append(out[i].codes, row.Code)
	}
	return out
}

// LoteView aggregates programmed production per lote, newest first
func (s *Service) LoteView(ctx context.Context) ([]models.LoteSummary, error) {
	rows, err := s.programmed.ListLoteMembers(ctx)
	if err != nil {
		return nil, err
	}
	return AggregateLotes(rows), nil
}

// AggregateLotes folds programmed rows into one summary per lote. The first
// row seen for a lote supplies its creator and date.
func AggregateLotes(rows []models.ProgrammedItem) []models.LoteSummary {
	index := map[string]int{}
	var out []models.LoteSummary

	for _, row := range rows {
		lote := models.Deref(row.LoteP)
		if lote == "" {
			continue
		}
		esti := 0
		if row.EstiTime != nil {
			esti = *row.EstiTime
		}

		if i, ok := index[lote]; ok {
			out[i].Count++
			out[i].TotalEstiTime += esti
			continue
		}

		var date time.Time
		if row.Date != nil {
			date = *row.Date
		}
		index[lote] = len(out)
		out = append(out, models.LoteSummary{
			LoteP:         lote,
			NameInc:       models.Deref(row.NameInc),
			Date:          date,
			Count:         1,
			TotalEstiTime: esti,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// DeleteLote removes every programmed row of a lote
func (s *Service) DeleteLote(ctx context.Context, lote string) (deleted int64, err error) {
	defer s.trace("DeleteLote", &err)()

	lote = strings.TrimSpace(lote)
	if lote == "" {
		return 0, invalid("lote", "a lote identifier is required")
	}

	deleted, err = s.programmed.DeleteByLote(ctx, lote)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, errors.Wrapf(repository.ErrNotFound, "lote %s does not exist", lote)
	}

	s.publish(ctx, models.ChangeEvent{Op: models.ChangeDelete, Lote: lote})
	log.Info().Str("lote", lote).Int64("rows", deleted).Msg("Lote deleted")
	return deleted, nil
}

// sortByStart orders rows by date_ini; rows without one go last
func sortByStart(rows []models.ProgrammedItem) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].DateIni, rows[j].DateIni
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
}
