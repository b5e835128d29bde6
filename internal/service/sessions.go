package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/workflow"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Scan modes
const (
	ModeLabel     = "label"
	ModePersonnel = "personnel"
)

// AutoQualifiedNote is stored on rows created and qualified by a single scan
const AutoQualifiedNote = "Esta etiqueta fue asignada y calificada al mismo tiempo"

// autoQualifiedName is the assignee of auto-created rows
const autoQualifiedName = "N/A"

// Outcome is the result of one scan as shown to the operator
type Outcome string

const (
	OutcomeAdded           Outcome = "added"
	OutcomeAutoQualified   Outcome = "auto-qualified"
	OutcomeNeedsRating     Outcome = "needs-rating"
	OutcomeCommitted       Outcome = "committed"
	OutcomeAlreadyAssigned Outcome = "already-assigned"
	OutcomeBlocked         Outcome = "blocked-precondition"
	OutcomeNotFound        Outcome = "not-found"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeThrottled       Outcome = "throttled"
	OutcomeIgnored         Outcome = "ignored"
)

// Cue is the feedback style of a scan result
type Cue string

const (
	CueSuccess   Cue = "success"
	CueDuplicate Cue = "duplicate"
	CueWarning   Cue = "warning"
	CueError     Cue = "error"
	CueInfo      Cue = "info"
)

// StartSessionRequest opens a scan session for a station
type StartSessionRequest struct {
	Operator      string `json:"operator" validate:"required"`
	Workflow      string `json:"workflow" validate:"required,oneof=assign qualify deliver print"`
	Area          string `json:"area"`
	SkipArea      bool   `json:"skip_area"`
	Mass          bool   `json:"mass"`
	AllowOverride bool   `json:"allow_override"`
}

// ScanRequest is one decoded scan
type ScanRequest struct {
	Raw     string `json:"raw" validate:"required"`
	Mode    string `json:"mode" validate:"omitempty,oneof=label personnel"`
	NextDay bool   `json:"next_day"`
}

// ScanResult reports what a scan did
type ScanResult struct {
	Code     string             `json:"code"`
	Outcome  Outcome            `json:"outcome"`
	Cue      Cue                `json:"cue"`
	Message  string             `json:"message"`
	Item     *scan.Item         `json:"item,omitempty"`
	Existing *models.Assignment `json:"existing,omitempty"`
	Commit   *CommitResult      `json:"commit,omitempty"`
	Session  scan.View          `json:"session"`
}

func (r *ScanResult) set(o Outcome, c Cue, format string, args ...interface{}) {
	r.Outcome = o
	r.Cue = c
	r.Message = fmt.Sprintf(format, args...)
}

// StartSession registers a new session for the requested workflow
func (s *Service) StartSession(req StartSessionRequest) (scan.View, error) {
	p, err := s.profiles.Get(req.Workflow)
	if err != nil {
		return scan.View{}, invalid("workflow", "unknown workflow %q", req.Workflow)
	}
	if strings.TrimSpace(req.Operator) == "" {
		return scan.View{}, invalid("operator", "an operator is required")
	}

	view := s.sessions.Start(scan.Options{
		Workflow:      p.Name,
		Operator:      strings.TrimSpace(req.Operator),
		Area:          strings.TrimSpace(req.Area),
		SkipArea:      req.SkipArea,
		Mass:          req.Mass,
		MinInterval:   p.MinInterval,
		AllowOverride: req.AllowOverride && p.AllowOverride,
		DropRepeated:  p.DropRepeated,
	})
	s.metrics.SetGauge(metrics.ActiveSessions, int64(s.sessions.Len()))

	log.Info().Str("session", view.ID).Str("workflow", p.Name).Str("operator", view.Operator).Msg("Scan session started")
	return view, nil
}

// GetSession returns a snapshot of the session
func (s *Service) GetSession(id string) (scan.View, error) {
	return s.sessions.Get(id)
}

// EndSession discards the session and its pending list
func (s *Service) EndSession(id string) error {
	if !s.sessions.Delete(id) {
		return scan.ErrSessionNotFound
	}
	s.metrics.SetGauge(metrics.ActiveSessions, int64(s.sessions.Len()))
	return nil
}

// ClearSession empties the pending list and keeps the session open
func (s *Service) ClearSession(id string) (scan.View, error) {
	var view scan.View
	err := s.sessions.Use(id, func(sess *scan.Session) error {
		sess.Clear()
		view = sess.Snapshot(s.now())
		return nil
	})
	return view, err
}

// SweepSessions evicts idle sessions
func (s *Service) SweepSessions(idle time.Duration) int {
	removed := s.sessions.Sweep(idle)
	s.metrics.SetGauge(metrics.ActiveSessions, int64(s.sessions.Len()))
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Evicted idle scan sessions")
	}
	return removed
}

// ProcessScan runs one decoded scan through the guard, the classifier and
// the station's action.
func (s *Service) ProcessScan(ctx context.Context, sessionID string, req ScanRequest) (result *ScanResult, err error) {
	defer s.trace("ProcessScan", &err)()

	code := scan.Normalize(req.Raw)
	if code == "" {
		return nil, invalid("raw", "scan is empty")
	}

	err = s.sessions.Use(sessionID, func(sess *scan.Session) error {
		p, err := s.profiles.Get(sess.Workflow)
		if err != nil {
			return err
		}

		now := s.now()
		result = &ScanResult{Code: code}
		if err := s.processLocked(ctx, sess, p, req, code, now, result); err != nil {
			return err
		}

		s.metrics.RecordScan(string(result.Outcome))
		result.Session = sess.Snapshot(now)
		return nil
	})
	return result, err
}

func (s *Service) processLocked(ctx context.Context, sess *scan.Session, p workflow.Profile, req ScanRequest, code string, now time.Time, result *ScanResult) error {
	switch sess.Admit(code, now) {
	case scan.Throttled:
		result.set(OutcomeThrottled, CueInfo, "scan ignored, too close to the previous one")
		return nil
	case scan.Duplicate:
		result.set(OutcomeDuplicate, CueDuplicate, "DUPLICATE: %s", code)
		return nil
	case scan.Repeated:
		result.set(OutcomeIgnored, CueInfo, "code %s was just processed", code)
		return nil
	}

	personnel, err := s.isPersonnelScan(ctx, p, req.Mode, code)
	if err != nil {
		return err
	}
	if personnel {
		commit, err := s.commitLocked(ctx, sess, p, code, now)
		if err != nil {
			return err
		}
		sess.MarkSuccess(code)
		result.Commit = commit
		result.set(OutcomeCommitted, CueSuccess, "%d labels assigned to %s", commit.Count, commit.Name)
		return nil
	}

	cls, err := s.Classify(ctx, p, code, sess.AllowOverride)
	if err != nil {
		return err
	}
	result.Existing = cls.Existing

	switch cls.Class {
	case ClassAlreadyAssigned:
		result.set(OutcomeAlreadyAssigned, CueDuplicate, "%s", cls.Reason)
		return nil
	case ClassBlocked:
		result.set(OutcomeBlocked, CueError, "%s", cls.Reason)
		return nil
	case ClassNotFound:
		result.set(OutcomeNotFound, CueWarning, "%s", cls.Reason)
		return nil
	}

	switch {
	case cls.Existing == nil && p.AutoCreate && !sess.Mass:
		return s.autoQualify(ctx, sess, code, cls.Label, req.NextDay, now, result)

	case cls.Existing != nil && p.Rating && !sess.Mass:
		sess.MarkSuccess(code)
		result.set(OutcomeNeedsRating, CueSuccess, "label %s confirmed, accept or report it", code)
		return nil
	}

	var item scan.Item
	if cls.Existing != nil {
		item = itemFromAssignment(*cls.Existing, now)
	} else {
		item = itemFromLabel(cls.Label, now)
		if p.AutoCreate {
			item.IsNew = true
			item.Status = models.StatusQualified
			item.Name = models.StringPtr(autoQualifiedName)
		}
		if p.CutGate {
			item.EstiTime = s.defaultEstiTime(ctx, item.SKU)
		}
	}

	sess.Add(item)
	result.Item = &item

	switch {
	case item.IsNew:
		result.set(OutcomeAdded, CueSuccess, "added (auto-qualified): %s", code)
	case item.Status == models.StatusReported:
		result.set(OutcomeAdded, CueInfo, "added (reported): %s", code)
	default:
		result.set(OutcomeAdded, CueSuccess, "success: %s", code)
	}
	return nil
}

// isPersonnelScan decides whether code names the person to commit the list to
func (s *Service) isPersonnelScan(ctx context.Context, p workflow.Profile, mode, code string) (bool, error) {
	switch mode {
	case ModePersonnel:
		return true, nil
	case ModeLabel:
		return false, nil
	}
	if !p.LegacyPersonnelScan {
		return false, nil
	}

	names, err := s.personnelNames(ctx)
	if err != nil {
		return false, err
	}
	return workflow.LooksLikePersonnel(code, names), nil
}

func (s *Service) autoQualify(ctx context.Context, sess *scan.Session, code string, label *models.Label, nextDay bool, now time.Time, result *ScanResult) error {
	at := qualifiedAt(now, nextDay)
	operator := sess.Operator
	if operator == "" {
		operator = autoQualifiedName
	}

	row := assignmentFromLabel(label)
	row.Name = models.StringPtr(autoQualifiedName)
	row.NameInc = models.StringPtr(operator)
	row.Status = models.StatusQualified
	row.Date = &at
	row.DateCal = &at
	row.Details = models.StringPtr(AutoQualifiedNote)

	if err := s.assignments.Create(ctx, &row); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			result.set(OutcomeAlreadyAssigned, CueDuplicate, "code %s was registered by another station", code)
			return nil
		}
		return err
	}

	s.metrics.RecordTransition(models.StatusQualified, 1)
	sess.MarkSuccess(code)
	result.Existing = &row
	result.set(OutcomeAutoQualified, CueSuccess, "label was not assigned, qualified automatically")
	return nil
}

// defaultEstiTime looks up the estimate used for the same sku before.
// Lookup failures leave the estimate empty.
func (s *Service) defaultEstiTime(ctx context.Context, sku *string) *int {
	if models.Deref(sku) == "" {
		return nil
	}
	minutes, err := s.assignments.EstimatedTimeForSKU(ctx, *sku)
	if err != nil {
		log.Warn().Err(err).Str("sku", *sku).Msg("Failed to fetch estimated time")
		return nil
	}
	return minutes
}

// EditItem sets the estimated minutes of a pending code; zero or less clears it
func (s *Service) EditItem(id, code string, minutes int) (scan.View, error) {
	var view scan.View
	err := s.sessions.Use(id, func(sess *scan.Session) error {
		if !sess.Contains(code) {
			return errors.Wrapf(repository.ErrNotFound, "code %s is not pending", code)
		}
		var esti *int
		if minutes > 0 {
			esti = &minutes
		}
		sess.SetEstiTime(code, esti)
		view = sess.Snapshot(s.now())
		return nil
	})
	return view, err
}

// RemoveItem drops a pending code
func (s *Service) RemoveItem(id, code string) (scan.View, error) {
	var view scan.View
	err := s.sessions.Use(id, func(sess *scan.Session) error {
		if !sess.Remove(code) {
			return errors.Wrapf(repository.ErrNotFound, "code %s is not pending", code)
		}
		view = sess.Snapshot(s.now())
		return nil
	})
	return view, err
}

// LoadResult reports a lote merge into a session
type LoadResult struct {
	Lote    string    `json:"lote"`
	Added   int       `json:"added"`
	Skipped int       `json:"skipped"`
	Session scan.View `json:"session"`
}

// LoadLote merges the rows of a lote into the pending list, skipping codes already pending
func (s *Service) LoadLote(ctx context.Context, id, lote string) (result *LoadResult, err error) {
	defer s.trace("LoadLote", &err)()

	lote = strings.TrimSpace(lote)
	if lote == "" {
		return nil, invalid("lote", "a lote identifier is required")
	}

	rows, err := s.assignments.FindByLote(ctx, lote)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(repository.ErrNotFound, "no packages found for lote %s", lote)
	}

	err = s.sessions.Use(id, func(sess *scan.Session) error {
		now := s.now()
		items := make([]scan.Item, len(rows))
		for i, row := range rows {
			items[i] = itemFromAssignment(row, now)
		}
		added := sess.Merge(items)
		result = &LoadResult{Lote: lote, Added: added, Skipped: len(items) - added, Session: sess.Snapshot(now)}
		return nil
	})
	return result, err
}

func qualifiedAt(now time.Time, nextDay bool) time.Time {
	if nextDay {
		return now.AddDate(0, 0, 1)
	}
	return now
}

func itemFromLabel(label *models.Label, now time.Time) scan.Item {
	return scan.Item{
		Code:         label.Code,
		SKU:          label.SKU,
		Product:      label.Product,
		Quantity:     label.Quantity,
		Organization: label.Organization,
		SalesNum:     label.SalesNum,
		DeliDate:     label.DeliDate,
		ScannedAt:    now,
	}
}

func itemFromAssignment(row models.Assignment, now time.Time) scan.Item {
	return scan.Item{
		Code:         row.Code,
		SKU:          row.SKU,
		Product:      row.Product,
		Quantity:     row.Quantity,
		Organization: row.Organization,
		SalesNum:     row.SalesNum,
		DeliDate:     row.DeliDate,
		EstiTime:     row.EstiTime,
		Name:         row.Name,
		Status:       row.Status,
		Existing:     true,
		ScannedAt:    now,
	}
}

func assignmentFromLabel(label *models.Label) models.Assignment {
	return models.Assignment{
		Code:         label.Code,
		SKU:          label.SKU,
		Product:      label.Product,
		Quantity:     label.Quantity,
		Organization: label.Organization,
		SalesNum:     label.SalesNum,
		DeliDate:     label.DeliDate,
	}
}
