package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/CzarCx/qr-brain/internal/csvio"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/rs/zerolog/log"
)

// Report is a generated daily report
type Report struct {
	Day      string `json:"day"`
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
	URL      string `json:"url,omitempty"`
}

// DailyReport builds the per-assignee status counts and KPI totals for the
// day containing at, and uploads it when storage is configured.
func (s *Service) DailyReport(ctx context.Context, at time.Time) (report *Report, err error) {
	defer s.trace("DailyReport", &err)()

	local := at.In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, 1)
	day := from.Format("2006-01-02")

	counts, err := s.assignments.CountsByStatus(ctx, from, to)
	if err != nil {
		return nil, err
	}
	kpis, err := s.activity.KPIsBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := csvio.WriteDailyReport(&buf, day, counts, kpis); err != nil {
		return nil, err
	}

	report = &Report{
		Day:      day,
		Filename: fmt.Sprintf("reports/daily-%s.csv", day),
		Content:  buf.Bytes(),
	}

	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, report.Filename, "text/csv; charset=utf-8", report.Content)
		if err != nil {
			return nil, err
		}
		report.URL = url
	}

	log.Info().Str("day", day).Int("rows", len(counts)).Int("kpis", len(kpis)).Msg("Daily report generated")
	return report, nil
}

// UpcomingCheckins lists programmed items starting within lead of now
func (s *Service) UpcomingCheckins(ctx context.Context, lead time.Duration) ([]models.ProgrammedItem, error) {
	now := s.now()
	return s.programmed.StartingBetween(ctx, now, now.Add(lead))
}

// Checkin announces that a programmed item is about to start
func (s *Service) Checkin(ctx context.Context, item models.ProgrammedItem) {
	s.publish(ctx, models.ChangeEvent{
		Op:    models.ChangeCheckin,
		Lote:  models.Deref(item.LoteP),
		Name:  models.Deref(item.Name),
		Codes: []string{item.Code},
	})
}
