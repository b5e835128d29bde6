package service

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockAssignmentRepository struct {
	mock.Mock
}

func (m *MockAssignmentRepository) GetByCode(ctx context.Context, code string) (*models.Assignment, error) {
	args := m.Called(ctx, code)
	row, _ := args.Get(0).(*models.Assignment)
	return row, args.Error(1)
}

func (m *MockAssignmentRepository) FindByCodes(ctx context.Context, codes []string) ([]models.Assignment, error) {
	args := m.Called(ctx, codes)
	rows, _ := args.Get(0).([]models.Assignment)
	return rows, args.Error(1)
}

func (m *MockAssignmentRepository) FindByLote(ctx context.Context, lote string) ([]models.Assignment, error) {
	args := m.Called(ctx, lote)
	rows, _ := args.Get(0).([]models.Assignment)
	return rows, args.Error(1)
}

func (m *MockAssignmentRepository) CountByLote(ctx context.Context, lote string) (int64, error) {
	args := m.Called(ctx, lote)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) LastFinish(ctx context.Context, name string) (*time.Time, error) {
	args := m.Called(ctx, name)
	at, _ := args.Get(0).(*time.Time)
	return at, args.Error(1)
}

func (m *MockAssignmentRepository) EstimatedTimeForSKU(ctx context.Context, sku string) (*int, error) {
	args := m.Called(ctx, sku)
	minutes, _ := args.Get(0).(*int)
	return minutes, args.Error(1)
}

func (m *MockAssignmentRepository) Create(ctx context.Context, row *models.Assignment) error {
	args := m.Called(ctx, row)
	return args.Error(0)
}

func (m *MockAssignmentRepository) CreateBatch(ctx context.Context, rows []models.Assignment) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockAssignmentRepository) UpdateStatus(ctx context.Context, codes []string, fields map[string]interface{}, guard repository.StatusGuard) (int64, error) {
	args := m.Called(ctx, codes, fields, guard)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) DeleteByCode(ctx context.Context, code string) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepository) CountsByStatus(ctx context.Context, from, to time.Time) ([]models.StatusCount, error) {
	args := m.Called(ctx, from, to)
	rows, _ := args.Get(0).([]models.StatusCount)
	return rows, args.Error(1)
}

type MockProgrammedRepository struct {
	mock.Mock
}

func (m *MockProgrammedRepository) LoteExists(ctx context.Context, lote string) (bool, error) {
	args := m.Called(ctx, lote)
	return args.Bool(0), args.Error(1)
}

func (m *MockProgrammedRepository) CreateBatch(ctx context.Context, rows []models.ProgrammedItem) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockProgrammedRepository) FindByName(ctx context.Context, name string) ([]models.ProgrammedItem, error) {
	args := m.Called(ctx, name)
	rows, _ := args.Get(0).([]models.ProgrammedItem)
	return rows, args.Error(1)
}

func (m *MockProgrammedRepository) FindByLote(ctx context.Context, lote string) ([]models.ProgrammedItem, error) {
	args := m.Called(ctx, lote)
	rows, _ := args.Get(0).([]models.ProgrammedItem)
	return rows, args.Error(1)
}

func (m *MockProgrammedRepository) DistinctNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	names, _ := args.Get(0).([]string)
	return names, args.Error(1)
}

func (m *MockProgrammedRepository) DistinctLotes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	lotes, _ := args.Get(0).([]string)
	return lotes, args.Error(1)
}

func (m *MockProgrammedRepository) ListLoteMembers(ctx context.Context) ([]models.ProgrammedItem, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]models.ProgrammedItem)
	return rows, args.Error(1)
}

func (m *MockProgrammedRepository) DeleteByLote(ctx context.Context, lote string) (int64, error) {
	args := m.Called(ctx, lote)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProgrammedRepository) MoveToAssignments(ctx context.Context, rows []models.Assignment) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockProgrammedRepository) StartingBetween(ctx context.Context, from, to time.Time) ([]models.ProgrammedItem, error) {
	args := m.Called(ctx, from, to)
	rows, _ := args.Get(0).([]models.ProgrammedItem)
	return rows, args.Error(1)
}

type MockLabelRepository struct {
	mock.Mock
}

func (m *MockLabelRepository) GetByCode(ctx context.Context, code string) (*models.Label, error) {
	args := m.Called(ctx, code)
	label, _ := args.Get(0).(*models.Label)
	return label, args.Error(1)
}

func (m *MockLabelRepository) GetCut(ctx context.Context, codeI string) (*models.CutRecord, error) {
	args := m.Called(ctx, codeI)
	cut, _ := args.Get(0).(*models.CutRecord)
	return cut, args.Error(1)
}

func (m *MockLabelRepository) MarkCut(ctx context.Context, codeI, operator string, at time.Time) (int64, error) {
	args := m.Called(ctx, codeI, operator, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLabelRepository) TouchPrintDate(ctx context.Context, code string, at time.Time) (int64, error) {
	args := m.Called(ctx, code, at)
	return args.Get(0).(int64), args.Error(1)
}

type MockPersonnelRepository struct {
	mock.Mock
}

func (m *MockPersonnelRepository) List(ctx context.Context, role string) ([]models.Personnel, error) {
	args := m.Called(ctx, role)
	people, _ := args.Get(0).([]models.Personnel)
	return people, args.Error(1)
}

func (m *MockPersonnelRepository) Create(ctx context.Context, p *models.Personnel) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPersonnelRepository) ReportReasons(ctx context.Context) ([]models.ReportReason, error) {
	args := m.Called(ctx)
	reasons, _ := args.Get(0).([]models.ReportReason)
	return reasons, args.Error(1)
}

type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) CreateKPI(ctx context.Context, kpi *models.KPI) error {
	args := m.Called(ctx, kpi)
	return args.Error(0)
}

func (m *MockActivityRepository) CreateScanLogs(ctx context.Context, logs []models.ScanLog) error {
	args := m.Called(ctx, logs)
	return args.Error(0)
}

func (m *MockActivityRepository) KPIsBetween(ctx context.Context, from, to time.Time) ([]models.KPI, error) {
	args := m.Called(ctx, from, to)
	kpis, _ := args.Get(0).([]models.KPI)
	return kpis, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type testDeps struct {
	assignments *MockAssignmentRepository
	programmed  *MockProgrammedRepository
	labels      *MockLabelRepository
	personnel   *MockPersonnelRepository
	activity    *MockActivityRepository
	publisher   *MockPublisher
	clock       *testClock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		assignments: new(MockAssignmentRepository),
		programmed:  new(MockProgrammedRepository),
		labels:      new(MockLabelRepository),
		personnel:   new(MockPersonnelRepository),
		activity:    new(MockActivityRepository),
		publisher:   new(MockPublisher),
		clock:       &testClock{now: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)},
	}
	s := New(Dependencies{
		Assignments: d.assignments,
		Programmed:  d.programmed,
		Labels:      d.labels,
		Personnel:   d.personnel,
		Activity:    d.activity,
		Publisher:   d.publisher,
		Now:         d.clock.Now,
	})
	return s, d
}

func (d *testDeps) assertExpectations(t mock.TestingT) {
	d.assignments.AssertExpectations(t)
	d.programmed.AssertExpectations(t)
	d.labels.AssertExpectations(t)
	d.personnel.AssertExpectations(t)
	d.activity.AssertExpectations(t)
	d.publisher.AssertExpectations(t)
}

func intPtr(v int) *int { return &v }
