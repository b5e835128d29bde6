package service

import (
	"context"
	"sync"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/scan"
	"github.com/CzarCx/qr-brain/internal/tracing"
	"github.com/CzarCx/qr-brain/internal/workflow"
)

// ChangePublisher announces programmed production changes
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// ScanIndex stores submitted scans for search
type ScanIndex interface {
	IndexScans(ctx context.Context, scans []models.ScanLog) error
	SearchScans(ctx context.Context, query string, size int) ([]models.ScanLog, error)
}

// Uploader stores exported files and returns their URL
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Dependencies are the collaborators of Service. Publisher, Index and
// Uploader are optional.
type Dependencies struct {
	Assignments repository.AssignmentRepository
	Programmed  repository.ProgrammedRepository
	Labels      repository.LabelRepository
	Personnel   repository.PersonnelRepository
	Activity    repository.ActivityRepository
	Profiles    *workflow.Set
	Sessions    *scan.Registry
	Publisher   ChangePublisher
	Index       ScanIndex
	Uploader    Uploader
	Metrics     *metrics.Metrics
	Tracer      tracing.Tracer
	Location    *time.Location
	Now         func() time.Time
}

// Service runs the scanning stations: classification, status transitions,
// lote reconciliation and imports.
type Service struct {
	assignments repository.AssignmentRepository
	programmed  repository.ProgrammedRepository
	labels      repository.LabelRepository
	personnel   repository.PersonnelRepository
	activity    repository.ActivityRepository
	profiles    *workflow.Set
	sessions    *scan.Registry
	publisher   ChangePublisher
	index       ScanIndex
	uploader    Uploader
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
	loc         *time.Location
	now         func() time.Time

	namesMu      sync.Mutex
	names        []string
	namesFetched time.Time
}

// personnel names are reloaded at most this often for the legacy scan check
const personnelNamesTTL = time.Minute

// New creates a Service
func New(deps Dependencies) *Service {
	s := &Service{
		assignments: deps.Assignments,
		programmed:  deps.Programmed,
		labels:      deps.Labels,
		personnel:   deps.Personnel,
		activity:    deps.Activity,
		profiles:    deps.Profiles,
		sessions:    deps.Sessions,
		publisher:   deps.Publisher,
		index:       deps.Index,
		uploader:    deps.Uploader,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		loc:         deps.Location,
		now:         deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.sessions == nil {
		s.sessions = scan.NewRegistry(s.now)
	}
	if s.profiles == nil {
		s.profiles, _ = workflow.NewSet(nil)
	}
	return s
}

// Sessions exposes the session registry for the sweep job
func (s *Service) Sessions() *scan.Registry {
	return s.sessions
}

// trace starts a transaction named after the operation; the returned func ends it
func (s *Service) trace(name string, errp *error) func() {
	end := s.tracer.Operation(name)
	start := time.Now()
	return func() {
		var err error
		if errp != nil {
			err = *errp
		}
		end(err)
		s.metrics.RecordTimer("operation:"+name, time.Since(start))
	}
}

// personnelNames returns the cached list of staff names
func (s *Service) personnelNames(ctx context.Context) ([]string, error) {
	s.namesMu.Lock()
	defer s.namesMu.Unlock()

	if s.names != nil && s.now().Sub(s.namesFetched) < personnelNamesTTL {
		return s.names, nil
	}

	people, err := s.personnel.List(ctx, "")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(people))
	for _, p := range people {
		names = append(names, p.Name)
	}
	s.names = names
	s.namesFetched = s.now()
	return names, nil
}

func (s *Service) forgetPersonnelNames() {
	s.namesMu.Lock()
	s.names = nil
	s.namesMu.Unlock()
}
