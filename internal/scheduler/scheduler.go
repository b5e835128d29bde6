package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/service"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Job names, also used as ledger keys
const (
	JobDailyReport = "daily-report"
	JobCheckin     = "checkin"
)

// Jobs is the work the scheduler triggers
type Jobs interface {
	DailyReport(ctx context.Context, at time.Time) (*service.Report, error)
	UpcomingCheckins(ctx context.Context, lead time.Duration) ([]models.ProgrammedItem, error)
	Checkin(ctx context.Context, item models.ProgrammedItem)
}

// Runner runs the scheduled tasks, each at most once per day
type Runner struct {
	jobs    Jobs
	ledger  Ledger
	cfg     config.SchedulerConfig
	loc     *time.Location
	now     func() time.Time
	metrics *metrics.Metrics

	reportHour, reportMinute int
}

// NewRunner validates the schedule and creates a runner
func NewRunner(jobs Jobs, ledger Ledger, cfg config.SchedulerConfig, loc *time.Location, collector *metrics.Metrics) (*Runner, error) {
	hour, minute, err := parseClock(cfg.DailyReportAt)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		jobs:         jobs,
		ledger:       ledger,
		cfg:          cfg,
		loc:          loc,
		now:          time.Now,
		metrics:      collector,
		reportHour:   hour,
		reportMinute: minute,
	}, nil
}

func parseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid daily report time %q, expected hh:mm", value)
	}
	return t.Hour(), t.Minute(), nil
}

func (r *Runner) today() (time.Time, string) {
	now := r.now().In(r.loc)
	return now, now.Format("2006-01-02")
}

// RunDailyReport generates today's report unless it already ran today
func (r *Runner) RunDailyReport(ctx context.Context) (bool, error) {
	now, day := r.today()

	done, err := r.ledger.HasRun(JobDailyReport, day, "")
	if err != nil {
		return false, err
	}
	if done {
		log.Debug().Str("day", day).Msg("Daily report already generated")
		return false, nil
	}

	start := time.Now()
	report, err := r.jobs.DailyReport(ctx, now)
	r.metrics.RecordTimer("job:"+JobDailyReport, time.Since(start))
	r.metrics.RecordResult("job:"+JobDailyReport, err)
	if err != nil {
		return false, err
	}

	if err := r.ledger.MarkRun(JobDailyReport, day, "", now); err != nil {
		return true, err
	}
	log.Info().Str("day", day).Str("url", report.URL).Msg("Daily report completed")
	return true, nil
}

// CatchUp runs the daily report when its time has passed and it has not run today
func (r *Runner) CatchUp(ctx context.Context) (bool, error) {
	now, _ := r.today()
	due := time.Date(now.Year(), now.Month(), now.Day(), r.reportHour, r.reportMinute, 0, 0, r.loc)
	if now.Before(due) {
		return false, nil
	}
	return r.RunDailyReport(ctx)
}

// RunCheckins announces programmed items about to start, once per item per day
func (r *Runner) RunCheckins(ctx context.Context) (int, error) {
	items, err := r.jobs.UpcomingCheckins(ctx, r.cfg.CheckinLead)
	if err != nil {
		return 0, err
	}

	now, today := r.today()
	sent := 0
	for _, item := range items {
		day := today
		if item.DateIni != nil {
			day = item.DateIni.In(r.loc).Format("2006-01-02")
		}
		key := fmt.Sprintf("%d", item.ID)
		if item.ID == 0 {
			key = item.Code
		}

		done, err := r.ledger.HasRun(JobCheckin, day, key)
		if err != nil {
			return sent, err
		}
		if done {
			continue
		}

		r.jobs.Checkin(ctx, item)
		if err := r.ledger.MarkRun(JobCheckin, day, key, now); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		log.Info().Int("count", sent).Msg("Check-in alerts published")
	}
	return sent, nil
}

// StartReports schedules the daily report and its catch-up and blocks until ctx is done
func (r *Runner) StartReports(ctx context.Context) error {
	return r.run(ctx, func(s gocron.Scheduler) error {
		_, err := s.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(r.reportHour), uint(r.reportMinute), 0))),
			gocron.NewTask(func() {
				if _, err := r.RunDailyReport(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to generate daily report")
				}
			}),
			gocron.WithName(JobDailyReport),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		_, err = s.NewJob(
			gocron.DurationJob(r.cfg.CatchUpInterval),
			gocron.NewTask(func() {
				if _, err := r.CatchUp(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to catch up daily report")
				}
			}),
			gocron.WithName(JobDailyReport+"-catch-up"),
			gocron.WithStartAt(gocron.WithStartImmediately()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		log.Info().Str("daily_report_at", r.cfg.DailyReportAt).Msg("Starting report scheduler")
		return nil
	})
}

// StartCheckins schedules the check-in alerts and blocks until ctx is done.
// It runs next to the websocket hub so alerts reach connected stations.
func (r *Runner) StartCheckins(ctx context.Context) error {
	return r.run(ctx, func(s gocron.Scheduler) error {
		_, err := s.NewJob(
			gocron.DurationJob(r.cfg.CheckinInterval),
			gocron.NewTask(func() {
				if _, err := r.RunCheckins(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to publish check-in alerts")
				}
			}),
			gocron.WithName(JobCheckin),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		log.Info().Dur("lead", r.cfg.CheckinLead).Msg("Starting check-in scheduler")
		return nil
	})
}

func (r *Runner) run(ctx context.Context, define func(gocron.Scheduler) error) error {
	s, err := gocron.NewScheduler(gocron.WithLocation(r.loc))
	if err != nil {
		return err
	}
	if err := define(s); err != nil {
		_ = s.Shutdown()
		return err
	}

	s.Start()
	<-ctx.Done()
	return s.Shutdown()
}

// Sweep evicts idle scan sessions on an interval until ctx is done
func Sweep(ctx context.Context, cfg config.SessionConfig, sweep func(idle time.Duration) int) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			sweep(cfg.IdleTimeout)
		}),
		gocron.WithName("session-sweep"),
	)
	if err != nil {
		return err
	}

	s.Start()
	<-ctx.Done()
	return s.Shutdown()
}
