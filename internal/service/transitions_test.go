package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// massQualifySession returns a mass qualify session holding one existing and one new code
func massQualifySession(t *testing.T, s *Service, d *testDeps) string {
	t.Helper()
	id := startSession(t, s, StartSessionRequest{Workflow: "qualify", Mass: true})

	d.assignments.On("GetByCode", mock.Anything, "100").Return(&models.Assignment{Code: "100", Status: models.StatusAssigned}, nil)
	d.assignments.On("GetByCode", mock.Anything, "200").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "200").Return(cutLabel("200"), nil)

	for _, code := range []string{"100", "200"} {
		result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: code})
		require.NoError(t, err)
		require.Equal(t, OutcomeAdded, result.Outcome)
		d.clock.Advance(3 * time.Second)
	}
	return id
}

func TestQualifyBatch_ExistingLoteNeedsConfirmation(t *testing.T) {
	s, d := newTestService()
	id := massQualifySession(t, s, d)

	d.assignments.On("CountByLote", mock.Anything, "31").Return(int64(4), nil)

	_, err := s.QualifyBatch(context.Background(), id, QualifyRequest{Lote: "31"})
	var confirm *ConfirmationRequiredError
	require.True(t, errors.As(err, &confirm))
	require.Equal(t, int64(4), confirm.Existing)
	require.Equal(t, 2, confirm.New)

	view, err := s.GetSession(id)
	require.NoError(t, err)
	require.Equal(t, 2, view.Total)
	d.assignments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQualifyBatch_InsertsNewAndUpdatesExisting(t *testing.T) {
	s, d := newTestService()
	id := massQualifySession(t, s, d)

	d.assignments.On("CountByLote", mock.Anything, "31").Return(int64(4), nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.MatchedBy(func(rows []models.Assignment) bool {
		return len(rows) == 1 && rows[0].Code == "200" &&
			rows[0].Status == models.StatusQualified &&
			models.Deref(rows[0].Lote) == "31"
	})).Return(nil)
	d.assignments.On("UpdateStatus", mock.Anything, []string{"100"}, mock.MatchedBy(func(f map[string]interface{}) bool {
		return f["status"] == models.StatusQualified && f["lote"] == "31"
	}), repository.StatusGuard{NotIn: terminalStatuses}).Return(int64(1), nil)

	result, err := s.QualifyBatch(context.Background(), id, QualifyRequest{Lote: "31", Confirm: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, 1, result.Updated)
	require.Zero(t, result.Failed)

	view, err := s.GetSession(id)
	require.NoError(t, err)
	require.Zero(t, view.Total)
	d.assertExpectations(t)
}

func TestQualifyBatch_InsertFailureDoesNotBlockUpdate(t *testing.T) {
	s, d := newTestService()
	id := massQualifySession(t, s, d)

	d.assignments.On("CountByLote", mock.Anything, "32").Return(int64(0), nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	d.assignments.On("UpdateStatus", mock.Anything, []string{"100"}, mock.Anything, mock.Anything).Return(int64(1), nil)

	result, err := s.QualifyBatch(context.Background(), id, QualifyRequest{Lote: "32"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Updated)
	require.Len(t, result.Errors, 1)
}

func deliverSession(t *testing.T, s *Service, d *testDeps, codes ...string) string {
	t.Helper()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})
	for _, code := range codes {
		d.assignments.On("GetByCode", mock.Anything, code).Return(&models.Assignment{Code: code, Status: models.StatusQualified}, nil)
		_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: code})
		require.NoError(t, err)
		d.clock.Advance(2 * time.Second)
	}
	return id
}

func TestDeliver_ReplayTouchesNothing(t *testing.T) {
	s, d := newTestService()
	guard := repository.StatusGuard{NotIn: []string{models.StatusReported, models.StatusDelivered, models.StatusCancelled}}

	d.assignments.On("UpdateStatus", mock.Anything, []string{"1", "2"}, mock.Anything, guard).Return(int64(2), nil).Once()
	d.assignments.On("UpdateStatus", mock.Anything, []string{"1", "2"}, mock.Anything, guard).Return(int64(0), nil).Once()
	d.activity.On("CreateKPI", mock.Anything, mock.Anything).Return(nil)

	id := deliverSession(t, s, d, "1", "2")
	first, err := s.Deliver(context.Background(), id, DeliverRequest{DriverName: "Pedro", DriverPlate: "ABC-123"})
	require.NoError(t, err)
	require.Equal(t, 2, first.Updated)

	id = deliverSession(t, s, d, "1", "2")
	second, err := s.Deliver(context.Background(), id, DeliverRequest{DriverName: "Pedro", DriverPlate: "ABC-123"})
	require.NoError(t, err)
	require.Zero(t, second.Updated)
	require.Equal(t, 2, second.Skipped)
}

func TestDeliver_RequiresDriver(t *testing.T) {
	s, d := newTestService()
	id := deliverSession(t, s, d, "1")

	_, err := s.Deliver(context.Background(), id, DeliverRequest{DriverName: "Pedro"})
	require.True(t, IsValidation(err))
}

func TestCommitToPerson_Validation(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign"})

	_, err := s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	require.True(t, IsValidation(err))

	d.assignments.On("GetByCode", mock.Anything, "10").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "10").Return(cutLabel("10"), nil)
	cutAt := d.clock.Now()
	d.labels.On("GetCut", mock.Anything, "I-10").Return(&models.CutRecord{CodeI: "I-10", CorteEtiquetas: &cutAt}, nil)
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(nil, nil)

	_, err = s.ProcessScan(context.Background(), id, ScanRequest{Raw: "10", Mode: ModeLabel})
	require.NoError(t, err)

	_, err = s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "esti_time", verr.Field)
	require.Contains(t, verr.Message, "1")

	_, err = s.EditItem(id, "10", 20)
	require.NoError(t, err)

	_, err = s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "area", verr.Field)
}

func TestCommitToPerson_ChainsAfterLastFinish(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", Area: "Corte"})
	cutAt := d.clock.Now()

	for _, code := range []string{"11", "12"} {
		d.assignments.On("GetByCode", mock.Anything, code).Return(nil, repository.ErrNotFound)
		d.labels.On("GetByCode", mock.Anything, code).Return(cutLabel(code), nil)
		d.labels.On("GetCut", mock.Anything, "I-"+code).Return(&models.CutRecord{CodeI: "I-" + code, CorteEtiquetas: &cutAt}, nil)
	}
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(intPtr(10), nil)

	for _, code := range []string{"11", "12"} {
		_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: code, Mode: ModeLabel})
		require.NoError(t, err)
		d.clock.Advance(time.Second)
	}

	last := d.clock.Now().Add(30 * time.Minute)
	d.assignments.On("LastFinish", mock.Anything, "Ana").Return(&last, nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.MatchedBy(func(rows []models.Assignment) bool {
		return len(rows) == 2 &&
			rows[0].DateIni.Equal(last) &&
			rows[0].DateEsti.Equal(*rows[1].DateIni) &&
			rows[1].DateEsti.Equal(last.Add(20*time.Minute)) &&
			models.Deref(rows[0].Place) == "Corte"
	})).Return(nil)
	d.activity.On("CreateKPI", mock.Anything, mock.Anything).Return(errors.New("kpis offline"))

	result, err := s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	require.NoError(t, err)
	require.Equal(t, last.Add(20*time.Minute), result.Finish)
	d.assertExpectations(t)
}

func TestCommitToPerson_DuplicateIsConflict(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", SkipArea: true})
	cutAt := d.clock.Now()

	d.assignments.On("GetByCode", mock.Anything, "13").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "13").Return(cutLabel("13"), nil)
	d.labels.On("GetCut", mock.Anything, "I-13").Return(&models.CutRecord{CodeI: "I-13", CorteEtiquetas: &cutAt}, nil)
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(intPtr(10), nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "13", Mode: ModeLabel})
	require.NoError(t, err)

	d.assignments.On("LastFinish", mock.Anything, "Ana").Return(nil, nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.Wrap(repository.ErrDuplicateKey, "code"))

	_, err = s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	require.ErrorIs(t, err, repository.ErrConflict)

	view, err := s.GetSession(id)
	require.NoError(t, err)
	require.Equal(t, 1, view.Total)
}

func TestProgramLote(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", SkipArea: true})
	cutAt := d.clock.Now()

	d.assignments.On("GetByCode", mock.Anything, "14").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "14").Return(cutLabel("14"), nil)
	d.labels.On("GetCut", mock.Anything, "I-14").Return(&models.CutRecord{CodeI: "I-14", CorteEtiquetas: &cutAt}, nil)
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(intPtr(10), nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "14", Mode: ModeLabel})
	require.NoError(t, err)

	_, err = s.ProgramLote(context.Background(), id, ProgramRequest{Name: "Ana", Lote: "L-1"})
	require.True(t, IsValidation(err))

	d.programmed.On("LoteExists", mock.Anything, "7").Return(true, nil).Once()
	_, err = s.ProgramLote(context.Background(), id, ProgramRequest{Name: "Ana", Lote: "7"})
	require.ErrorIs(t, err, repository.ErrConflict)

	d.programmed.On("LoteExists", mock.Anything, "8").Return(false, nil)
	d.programmed.On("CreateBatch", mock.Anything, mock.MatchedBy(func(rows []models.ProgrammedItem) bool {
		return len(rows) == 1 && rows[0].Status == models.StatusProgrammed && models.Deref(rows[0].LoteP) == "8"
	})).Return(nil)
	d.activity.On("CreateKPI", mock.Anything, mock.Anything).Return(nil)
	d.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e models.ChangeEvent) bool {
		return e.Op == models.ChangeInsert && e.Lote == "8" && e.Table == "personal_prog"
	})).Return(nil)

	result, err := s.ProgramLote(context.Background(), id, ProgramRequest{Name: "Ana", Lote: "8"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	d.assertExpectations(t)
}

func TestMarkPending_GuardsQualified(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "print", Mass: true})

	d.assignments.On("GetByCode", mock.Anything, "50").Return(&models.Assignment{Code: "50", Status: models.StatusAssigned}, nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "50"})
	require.NoError(t, err)

	guard := repository.StatusGuard{NotIn: []string{models.StatusQualified, models.StatusDelivered, models.StatusCancelled}}
	d.assignments.On("UpdateStatus", mock.Anything, []string{"50"}, map[string]interface{}{"status": models.StatusPendingQualify}, guard).Return(int64(1), nil)

	result, err := s.MarkPending(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)
	d.assertExpectations(t)
}

func TestSubmitScans_WritesLogs(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver", Area: "Empaque"})
	d.assignments.On("GetByCode", mock.Anything, "60").Return(&models.Assignment{Code: "60", Status: models.StatusQualified}, nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "60"})
	require.NoError(t, err)

	d.activity.On("CreateScanLogs", mock.Anything, []models.ScanLog{{
		Codigo:       "60",
		FechaEscaneo: "05/03/2024",
		HoraEscaneo:  "10:00:00",
		Encargado:    "Luis",
		Area:         "Empaque",
	}}).Return(nil)

	count, err := s.SubmitScans(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	d.assertExpectations(t)
}

func TestExport_RendersCSV(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver", Area: "Línea"})
	d.assignments.On("GetByCode", mock.Anything, "70").Return(&models.Assignment{
		Code: "70", Status: models.StatusQualified, Product: models.StringPtr("Caja"), Quantity: intPtr(3),
	}, nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "70"})
	require.NoError(t, err)

	result, err := s.Export(context.Background(), id, false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.Filename, "LUIS-ETIQUETAS(1)-LINEA-05-"))
	require.Contains(t, string(result.Content), `="70"`)
	require.Empty(t, result.URL)
}
