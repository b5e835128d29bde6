package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/csvio"
	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/workflow"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// statuses no station moves a package out of
var terminalStatuses = []string{models.StatusDelivered, models.StatusCancelled}

// AssignRequest commits the pending list to a person
type AssignRequest struct {
	Name     string `json:"name" validate:"required"`
	Area     string `json:"area"`
	SkipArea bool   `json:"skip_area"`
}

// ProgramRequest stores the pending list as programmed production under a lote
type ProgramRequest struct {
	Name     string `json:"name" validate:"required"`
	Lote     string `json:"lote" validate:"required,numeric"`
	Area     string `json:"area"`
	SkipArea bool   `json:"skip_area"`
}

// QualifyRequest qualifies the pending list under a lote
type QualifyRequest struct {
	Lote    string `json:"lote" validate:"required"`
	Confirm bool   `json:"confirm"`
	NextDay bool   `json:"next_day"`
}

// DeliverRequest marks the pending list as delivered
type DeliverRequest struct {
	DriverName  string `json:"driver_name" validate:"required"`
	DriverPlate string `json:"driver_plate" validate:"required"`
}

// CommitResult reports labels assigned to a person
type CommitResult struct {
	Name   string    `json:"name"`
	Lote   string    `json:"lote,omitempty"`
	Count  int       `json:"count"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
}

// BatchResult reports a bulk transition. The insert and the update are
// independent; Failed counts rows whose statement errored.
type BatchResult struct {
	Lote     string   `json:"lote,omitempty"`
	Status   string   `json:"status"`
	Inserted int      `json:"inserted"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// CommitToPerson assigns the pending list to a person
func (s *Service) CommitToPerson(ctx context.Context, id string, req AssignRequest) (result *CommitResult, err error) {
	defer s.trace("CommitToPerson", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		p, err := s.profiles.Get(sess.Workflow)
		if err != nil {
			return err
		}
		applyArea(sess, req.Area, req.SkipArea)

		result, err = s.commitLocked(ctx, sess, p, req.Name, s.now())
		if err == nil {
			sess.MarkSuccess(result.Name)
		}
		return err
	})
	return result, err
}

func (s *Service) commitLocked(ctx context.Context, sess *scan.Session, p workflow.Profile, name string, now time.Time) (*CommitResult, error) {
	if p.Name != workflow.Assign {
		return nil, invalid("workflow", "labels can only be assigned from the assign station")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "select a staff member")
	}
	if err := validatePending(sess); err != nil {
		return nil, err
	}

	last, err := s.assignments.LastFinish(ctx, name)
	if err != nil {
		return nil, err
	}

	items := sess.Items()
	slots := Fold(foldStart(now, last), estimates(items))
	place := placeOf(sess)

	rows := make([]models.Assignment, len(items))
	for i, item := range items {
		rows[i] = models.Assignment{
			Code:         item.Code,
			SKU:          item.SKU,
			Name:         models.StringPtr(name),
			NameInc:      models.StringPtr(sess.Operator),
			Place:        place,
			Product:      item.Product,
			Quantity:     item.Quantity,
			Organization: item.Organization,
			SalesNum:     item.SalesNum,
			Date:         timePtr(now),
			Status:       models.StatusAssigned,
			EstiTime:     item.EstiTime,
			DeliDate:     item.DeliDate,
			DateIni:      timePtr(slots[i].Start),
			DateEsti:     timePtr(slots[i].Finish),
		}
	}

	if err := s.assignments.CreateBatch(ctx, rows); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("one or more labels were assigned by another station")
		}
		return nil, err
	}

	s.metrics.RecordTransition(models.StatusAssigned, len(rows))
	s.recordKPI(ctx, sess.Operator, len(rows), sess.Elapsed(now), "")
	sess.Clear()

	log.Info().Str("name", name).Int("count", len(rows)).Str("operator", sess.Operator).Msg("Labels assigned")
	return &CommitResult{
		Name:   name,
		Count:  len(rows),
		Start:  slots[0].Start,
		Finish: slots[len(slots)-1].Finish,
	}, nil
}

// ProgramLote stores the pending list in programmed production under a new numeric lote
func (s *Service) ProgramLote(ctx context.Context, id string, req ProgramRequest) (result *CommitResult, err error) {
	defer s.trace("ProgramLote", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Workflow != workflow.Assign {
			return invalid("workflow", "lotes can only be programmed from the assign station")
		}
		applyArea(sess, req.Area, req.SkipArea)

		name := strings.TrimSpace(req.Name)
		if name == "" {
			return invalid("name", "select a staff member")
		}
		if err := validatePending(sess); err != nil {
			return err
		}
		lote := strings.TrimSpace(req.Lote)
		if lote == "" {
			return invalid("lote", "enter a lote identifier")
		}
		if !csvio.IsNumeric(lote) {
			return invalid("lote", "the lote identifier must be numeric")
		}

		exists, err := s.programmed.LoteExists(ctx, lote)
		if err != nil {
			return err
		}
		if exists {
			return conflict(fmt.Sprintf("lote %s already exists", lote))
		}

		now := s.now()
		items := sess.Items()
		slots := Fold(now, estimates(items))
		place := placeOf(sess)

		rows := make([]models.ProgrammedItem, len(items))
		codes := make([]string, len(items))
		for i, item := range items {
			codes[i] = item.Code
			rows[i] = models.ProgrammedItem{
				Code:         item.Code,
				SKU:          item.SKU,
				Name:         models.StringPtr(name),
				NameInc:      models.StringPtr(sess.Operator),
				Place:        place,
				Product:      item.Product,
				Quantity:     item.Quantity,
				Organization: item.Organization,
				SalesNum:     item.SalesNum,
				Date:         timePtr(now),
				EstiTime:     item.EstiTime,
				Status:       models.StatusProgrammed,
				DateIni:      timePtr(slots[i].Start),
				DateEsti:     timePtr(slots[i].Finish),
				LoteP:        models.StringPtr(lote),
				DeliDate:     item.DeliDate,
			}
		}

		if err := s.programmed.CreateBatch(ctx, rows); err != nil {
			return err
		}

		s.metrics.RecordTransition(models.StatusProgrammed, len(rows))
		s.recordKPI(ctx, sess.Operator, len(rows), sess.Elapsed(now), "")
		s.publish(ctx, models.ChangeEvent{Op: models.ChangeInsert, Lote: lote, Name: name, Codes: codes})
		sess.Clear()

		result = &CommitResult{
			Name:   name,
			Lote:   lote,
			Count:  len(rows),
			Start:  slots[0].Start,
			Finish: slots[len(slots)-1].Finish,
		}
		return nil
	})
	return result, err
}

// QualifyBatch qualifies the pending list under a lote. Appending to a lote
// that already has rows needs req.Confirm.
func (s *Service) QualifyBatch(ctx context.Context, id string, req QualifyRequest) (result *BatchResult, err error) {
	defer s.trace("QualifyBatch", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Workflow != workflow.Qualify {
			return invalid("workflow", "lotes can only be qualified from the qualify station")
		}
		if sess.Len() == 0 {
			return invalid("items", "there are no codes in the list to qualify")
		}
		lote := strings.TrimSpace(req.Lote)
		if lote == "" {
			return invalid("lote", "enter a lote identifier")
		}

		existing, err := s.assignments.CountByLote(ctx, lote)
		if err != nil {
			return err
		}
		if existing > 0 && !req.Confirm {
			return &ConfirmationRequiredError{Lote: lote, Existing: existing, New: sess.Len()}
		}

		at := qualifiedAt(s.now(), req.NextDay)
		operator := sess.Operator
		if operator == "" {
			operator = autoQualifiedName
		}

		var inserts []models.Assignment
		var updates []string
		for _, item := range sess.Items() {
			if !item.IsNew {
				updates = append(updates, item.Code)
				continue
			}
			row := assignmentFromItem(item)
			row.Name = models.StringPtr(autoQualifiedName)
			row.NameInc = models.StringPtr(operator)
			row.Status = models.StatusQualified
			row.Date = timePtr(at)
			row.DateCal = timePtr(at)
			row.Details = models.StringPtr(AutoQualifiedNote)
			row.Lote = models.StringPtr(lote)
			inserts = append(inserts, row)
		}

		result = &BatchResult{Lote: lote, Status: models.StatusQualified}

		if len(inserts) > 0 {
			if err := s.assignments.CreateBatch(ctx, inserts); err != nil {
				log.Error().Err(err).Str("lote", lote).Int("rows", len(inserts)).Msg("Mass qualify insert failed")
				result.Failed += len(inserts)
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.Inserted = len(inserts)
			}
		}

		if len(updates) > 0 {
			fields := map[string]interface{}{
				"status":   models.StatusQualified,
				"details":  nil,
				"date":     at,
				"date_cal": at,
				"lote":     lote,
			}
			rows, err := s.assignments.UpdateStatus(ctx, updates, fields, repository.StatusGuard{NotIn: terminalStatuses})
			if err != nil {
				log.Error().Err(err).Str("lote", lote).Int("rows", len(updates)).Msg("Mass qualify update failed")
				result.Failed += len(updates)
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.Updated = int(rows)
				result.Skipped = len(updates) - int(rows)
			}
		}

		s.metrics.RecordTransition(models.StatusQualified, result.Inserted+result.Updated)
		sess.Clear()

		log.Info().Str("lote", lote).Int("inserted", result.Inserted).Int("updated", result.Updated).
			Int("failed", result.Failed).Msg("Lote qualified")
		return nil
	})
	return result, err
}

// Deliver marks the pending list as delivered by a driver
func (s *Service) Deliver(ctx context.Context, id string, req DeliverRequest) (result *BatchResult, err error) {
	defer s.trace("Deliver", &err)()

	driver := strings.TrimSpace(req.DriverName)
	plate := strings.TrimSpace(req.DriverPlate)
	if driver == "" || plate == "" {
		return nil, invalid("driver", "driver name and plate are required")
	}

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Workflow != workflow.Deliver {
			return invalid("workflow", "packages can only be delivered from the deliver station")
		}
		if sess.Len() == 0 {
			return invalid("items", "there are no packages in the list")
		}

		codes := sess.Codes()
		fields := map[string]interface{}{
			"status":       models.StatusDelivered,
			"date_entre":   s.now(),
			"driver_name":  driver,
			"driver_plate": plate,
		}
		guard := repository.StatusGuard{NotIn: append([]string{models.StatusReported}, terminalStatuses...)}

		rows, err := s.assignments.UpdateStatus(ctx, codes, fields, guard)
		if err != nil {
			return err
		}

		s.metrics.RecordTransition(models.StatusDelivered, int(rows))
		s.recordKPI(ctx, sess.Operator, len(codes), 0, "")
		sess.Clear()

		result = &BatchResult{Status: models.StatusDelivered, Updated: int(rows), Skipped: len(codes) - int(rows)}
		return nil
	})
	return result, err
}

// MarkPending moves the pending list to POR CALIFICAR
func (s *Service) MarkPending(ctx context.Context, id string) (result *BatchResult, err error) {
	defer s.trace("MarkPending", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Workflow != workflow.Print {
			return invalid("workflow", "labels can only be marked pending from the print station")
		}
		if sess.Len() == 0 {
			return invalid("items", "there are no codes in the list")
		}

		codes := sess.Codes()
		guard := repository.StatusGuard{NotIn: append([]string{models.StatusQualified}, terminalStatuses...)}
		rows, err := s.assignments.UpdateStatus(ctx, codes, map[string]interface{}{"status": models.StatusPendingQualify}, guard)
		if err != nil {
			return err
		}

		s.metrics.RecordTransition(models.StatusPendingQualify, int(rows))
		sess.Clear()

		result = &BatchResult{Status: models.StatusPendingQualify, Updated: int(rows), Skipped: len(codes) - int(rows)}
		return nil
	})
	return result, err
}

// SubmitScans stores the pending list as scan log entries
func (s *Service) SubmitScans(ctx context.Context, id string) (count int, err error) {
	defer s.trace("SubmitScans", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Len() == 0 {
			return invalid("items", "there is no data to submit")
		}

		items := sess.Items()
		logs := make([]models.ScanLog, len(items))
		for i, item := range items {
			at := item.ScannedAt.In(s.loc)
			logs[i] = models.ScanLog{
				Codigo:       item.Code,
				FechaEscaneo: at.Format("02/01/2006"),
				HoraEscaneo:  at.Format("15:04:05"),
				Encargado:    sess.Operator,
				Area:         sess.Area,
				EstiTime:     item.EstiTime,
			}
		}

		if err := s.activity.CreateScanLogs(ctx, logs); err != nil {
			return err
		}

		if s.index != nil {
			if err := s.index.IndexScans(ctx, logs); err != nil {
				log.Warn().Err(err).Int("count", len(logs)).Msg("Failed to index scans")
			}
		}

		count = len(logs)
		sess.Clear()
		return nil
	})
	return count, err
}

// ExportResult is a generated assignment CSV
type ExportResult struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
	URL      string `json:"url,omitempty"`
}

// Export renders the pending list as CSV and optionally uploads it
func (s *Service) Export(ctx context.Context, id string, upload bool) (result *ExportResult, err error) {
	defer s.trace("Export", &err)()

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		if sess.Len() == 0 {
			return invalid("items", "there is no data to export")
		}

		items := sess.Items()
		rows := make([]csvio.ExportRow, len(items))
		for i, item := range items {
			sale := ""
			if item.SalesNum != nil {
				sale = fmt.Sprint(*item.SalesNum)
			}
			rows[i] = csvio.ExportRow{
				Code:     item.Code,
				EstiTime: item.EstiTime,
				Product:  models.Deref(item.Product),
				SKU:      models.Deref(item.SKU),
				Quantity: item.Quantity,
				Company:  models.Deref(item.Organization),
				Sale:     sale,
				Hour:     item.ScannedAt.In(s.loc).Format("15:04:05"),
			}
		}

		var buf strings.Builder
		if err := csvio.WriteExport(&buf, rows); err != nil {
			return err
		}

		result = &ExportResult{
			Filename: csvio.ExportFilename(sess.Operator, sess.Area, len(rows), s.now().In(s.loc)),
			Content:  []byte(buf.String()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if upload && s.uploader != nil {
		url, err := s.uploader.Upload(ctx, result.Filename, "text/csv; charset=utf-8", result.Content)
		if err != nil {
			return nil, errors.Wrap(err, "failed to upload export")
		}
		result.URL = url
	}
	return result, nil
}

func validatePending(sess *scan.Session) error {
	if sess.Len() == 0 {
		return invalid("items", "there are no pending labels")
	}
	if rows := sess.MissingEstiTime(); len(rows) > 0 {
		parts := make([]string, len(rows))
		for i, r := range rows {
			parts[i] = fmt.Sprint(r)
		}
		return invalid("esti_time", "estimated time missing in rows: %s", strings.Join(parts, ", "))
	}
	if sess.Area == "" && !sess.SkipArea {
		return invalid("area", "select a work area or choose to continue without one")
	}
	return nil
}

func applyArea(sess *scan.Session, area string, skip bool) {
	if a := strings.TrimSpace(area); a != "" {
		sess.Area = a
	}
	if skip {
		sess.SkipArea = true
	}
}

func placeOf(sess *scan.Session) *string {
	if sess.SkipArea {
		return nil
	}
	return models.StringPtr(sess.Area)
}

func estimates(items []scan.Item) []*int {
	out := make([]*int, len(items))
	for i, item := range items {
		out[i] = item.EstiTime
	}
	return out
}

func assignmentFromItem(item scan.Item) models.Assignment {
	return models.Assignment{
		Code:         item.Code,
		SKU:          item.SKU,
		Product:      item.Product,
		Quantity:     item.Quantity,
		Organization: item.Organization,
		SalesNum:     item.SalesNum,
		DeliDate:     item.DeliDate,
		EstiTime:     item.EstiTime,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
