package service

import (
	"context"
	"testing"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/scan"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, s *Service, req StartSessionRequest) string {
	t.Helper()
	if req.Operator == "" {
		req.Operator = "Luis"
	}
	view, err := s.StartSession(req)
	require.NoError(t, err)
	return view.ID
}

func cutLabel(code string) *models.Label {
	return &models.Label{
		Code:     code,
		CodeI:    models.StringPtr("I-" + code),
		SKU:      models.StringPtr("SKU-1"),
		Product:  models.StringPtr("Caja"),
		Quantity: intPtr(2),
	}
}

func TestStartSession_RejectsUnknownWorkflow(t *testing.T) {
	s, _ := newTestService()

	_, err := s.StartSession(StartSessionRequest{Operator: "Luis", Workflow: "pack"})
	require.True(t, IsValidation(err))
}

func TestProcessScan_NormalizesJSONPayload(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})

	d.assignments.On("GetByCode", mock.Anything, "12345678901").Return(nil, repository.ErrNotFound).Once()

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: `{"id":"12345678901"}`})
	require.NoError(t, err)
	require.Equal(t, "12345678901", result.Code)
	require.Equal(t, OutcomeNotFound, result.Outcome)
	d.assertExpectations(t)
}

func TestProcessScan_SameCodeWithinIntervalIsDuplicate(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "qualify"})

	d.assignments.On("GetByCode", mock.Anything, "X").Return(nil, repository.ErrNotFound).Once()
	d.labels.On("GetByCode", mock.Anything, "X").Return(nil, repository.ErrNotFound).Once()

	first, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "X"})
	require.NoError(t, err)
	require.Equal(t, OutcomeNotFound, first.Outcome)

	d.clock.Advance(time.Second)
	second, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "X"})
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Outcome)
	require.Equal(t, CueDuplicate, second.Cue)

	d.assignments.AssertNumberOfCalls(t, "GetByCode", 1)
	d.labels.AssertNumberOfCalls(t, "GetByCode", 1)
}

func TestProcessScan_UnknownCodeIsNotFound(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", SkipArea: true})

	d.assignments.On("GetByCode", mock.Anything, "555").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "555").Return(nil, repository.ErrNotFound)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "555", Mode: ModeLabel})
	require.NoError(t, err)
	require.Equal(t, OutcomeNotFound, result.Outcome)
	require.Equal(t, CueWarning, result.Cue)
	require.Zero(t, result.Session.Total)

	d.assignments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	d.assignments.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	d.assertExpectations(t)
}

func TestProcessScan_AssignThenCommitInsertsAssigned(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", SkipArea: true})
	start := d.clock.Now()
	cutAt := start.Add(-time.Hour)

	d.assignments.On("GetByCode", mock.Anything, "777").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "777").Return(cutLabel("777"), nil)
	d.labels.On("GetCut", mock.Anything, "I-777").Return(&models.CutRecord{CodeI: "I-777", CorteEtiquetas: &cutAt}, nil)
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(intPtr(15), nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "777", Mode: ModeLabel})
	require.NoError(t, err)
	require.Equal(t, OutcomeAdded, result.Outcome)
	require.Equal(t, 15, *result.Item.EstiTime)

	d.clock.Advance(90 * time.Second)
	d.assignments.On("LastFinish", mock.Anything, "Ana").Return(nil, nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.MatchedBy(func(rows []models.Assignment) bool {
		if len(rows) != 1 {
			return false
		}
		r := rows[0]
		now := d.clock.Now()
		return r.Code == "777" &&
			r.Status == models.StatusAssigned &&
			models.Deref(r.Name) == "Ana" &&
			models.Deref(r.NameInc) == "Luis" &&
			r.Place == nil &&
			r.DateIni.Equal(now) &&
			r.DateEsti.Equal(now.Add(15*time.Minute))
	})).Return(nil)
	d.activity.On("CreateKPI", mock.Anything, mock.MatchedBy(func(k *models.KPI) bool {
		return k.Name == "Luis" && k.Quantity == 1 && k.Time == "00:01:30"
	})).Return(nil)

	commit, err := s.CommitToPerson(context.Background(), id, AssignRequest{Name: "Ana"})
	require.NoError(t, err)
	require.Equal(t, 1, commit.Count)

	view, err := s.GetSession(id)
	require.NoError(t, err)
	require.Zero(t, view.Total)
	d.assertExpectations(t)
}

func TestProcessScan_AssignBlockedUntilCut(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign"})

	d.assignments.On("GetByCode", mock.Anything, "778").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "778").Return(cutLabel("778"), nil)
	d.labels.On("GetCut", mock.Anything, "I-778").Return(&models.CutRecord{CodeI: "I-778"}, nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "778", Mode: ModeLabel})
	require.NoError(t, err)
	require.Equal(t, OutcomeBlocked, result.Outcome)
	require.Equal(t, CueError, result.Cue)
	require.Zero(t, result.Session.Total)
}

func TestProcessScan_AssignRejectsExistingRow(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign"})

	d.assignments.On("GetByCode", mock.Anything, "779").Return(&models.Assignment{
		Code: "779", Status: models.StatusQualified, Name: models.StringPtr("Ana"),
	}, nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "779", Mode: ModeLabel})
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyAssigned, result.Outcome)
	require.Contains(t, result.Message, "Ana")
	d.labels.AssertNotCalled(t, "GetByCode", mock.Anything, mock.Anything)
}

func TestProcessScan_LegacyPersonnelScanCommits(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "assign", SkipArea: true})

	d.personnel.On("List", mock.Anything, "").Return([]models.Personnel{{Name: "Ana"}}, nil)
	d.assignments.On("GetByCode", mock.Anything, "880").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "880").Return(cutLabel("880"), nil)
	cutAt := d.clock.Now()
	d.labels.On("GetCut", mock.Anything, "I-880").Return(&models.CutRecord{CodeI: "I-880", CorteEtiquetas: &cutAt}, nil)
	d.assignments.On("EstimatedTimeForSKU", mock.Anything, "SKU-1").Return(intPtr(5), nil)

	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "880"})
	require.NoError(t, err)

	d.clock.Advance(time.Second)
	d.assignments.On("LastFinish", mock.Anything, "Ana").Return(nil, nil)
	d.assignments.On("CreateBatch", mock.Anything, mock.Anything).Return(nil)
	d.activity.On("CreateKPI", mock.Anything, mock.Anything).Return(nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "Ana"})
	require.NoError(t, err)
	require.Equal(t, OutcomeCommitted, result.Outcome)
	require.Equal(t, 1, result.Commit.Count)
	require.Zero(t, result.Session.Total)
}

func TestProcessScan_QualifyAutoCreatesUnknownCode(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "qualify"})

	d.assignments.On("GetByCode", mock.Anything, "901").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "901").Return(cutLabel("901"), nil)
	d.assignments.On("Create", mock.Anything, mock.MatchedBy(func(r *models.Assignment) bool {
		return r.Code == "901" &&
			r.Status == models.StatusQualified &&
			models.Deref(r.Name) == "N/A" &&
			models.Deref(r.Details) == AutoQualifiedNote &&
			r.DateCal.Equal(d.clock.Now().AddDate(0, 0, 1))
	})).Return(nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "901", NextDay: true})
	require.NoError(t, err)
	require.Equal(t, OutcomeAutoQualified, result.Outcome)
	require.Zero(t, result.Session.Total)
	d.assertExpectations(t)
}

func TestProcessScan_QualifyAutoCreateLosesRace(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "qualify"})

	d.assignments.On("GetByCode", mock.Anything, "902").Return(nil, repository.ErrNotFound)
	d.labels.On("GetByCode", mock.Anything, "902").Return(cutLabel("902"), nil)
	d.assignments.On("Create", mock.Anything, mock.Anything).Return(errors.Wrap(repository.ErrDuplicateKey, "code"))

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "902"})
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyAssigned, result.Outcome)
}

func TestProcessScan_QualifyIndividualAsksForRating(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "qualify"})

	d.assignments.On("GetByCode", mock.Anything, "903").Return(&models.Assignment{Code: "903", Status: models.StatusAssigned}, nil)

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "903"})
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsRating, result.Outcome)
	require.Equal(t, models.StatusAssigned, result.Existing.Status)
}

func TestProcessScan_DeliverGates(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		override bool
		want     Outcome
	}{
		{"qualified", models.StatusQualified, false, OutcomeAdded},
		{"reported", models.StatusReported, true, OutcomeBlocked},
		{"assigned", models.StatusAssigned, false, OutcomeBlocked},
		{"assigned with override", models.StatusAssigned, true, OutcomeAdded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestService()
			id := startSession(t, s, StartSessionRequest{Workflow: "deliver", AllowOverride: tt.override})

			d.assignments.On("GetByCode", mock.Anything, "42").Return(&models.Assignment{Code: "42", Status: tt.status}, nil)

			result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "42"})
			require.NoError(t, err)
			require.Equal(t, tt.want, result.Outcome)
		})
	}
}

func TestProcessScan_ThrottlesOtherCodesInsideInterval(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})

	d.assignments.On("GetByCode", mock.Anything, "1").Return(&models.Assignment{Code: "1", Status: models.StatusQualified}, nil).Once()

	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "1"})
	require.NoError(t, err)

	d.clock.Advance(200 * time.Millisecond)
	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "2"})
	require.NoError(t, err)
	require.Equal(t, OutcomeThrottled, result.Outcome)
	d.assertExpectations(t)
}

func TestProcessScan_DeliverRescanAfterRemove(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})

	d.assignments.On("GetByCode", mock.Anything, "42").Return(&models.Assignment{Code: "42", Status: models.StatusQualified}, nil).Twice()

	result, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "42"})
	require.NoError(t, err)
	require.Equal(t, OutcomeAdded, result.Outcome)

	view, err := s.RemoveItem(id, "42")
	require.NoError(t, err)
	require.Zero(t, view.Total)

	d.clock.Advance(5 * time.Second)
	result, err = s.ProcessScan(context.Background(), id, ScanRequest{Raw: "42"})
	require.NoError(t, err)
	require.Equal(t, OutcomeAdded, result.Outcome)
	require.Equal(t, 1, result.Session.Total)
	d.assertExpectations(t)
}

func TestProcessScan_UnknownSession(t *testing.T) {
	s, _ := newTestService()

	_, err := s.ProcessScan(context.Background(), "missing", ScanRequest{Raw: "1"})
	require.ErrorIs(t, err, scan.ErrSessionNotFound)
}

func TestEditItem_ClearsWithZero(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})
	d.assignments.On("GetByCode", mock.Anything, "1").Return(&models.Assignment{Code: "1", Status: models.StatusQualified, EstiTime: intPtr(10)}, nil)

	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "1"})
	require.NoError(t, err)

	view, err := s.EditItem(id, "1", 25)
	require.NoError(t, err)
	require.Equal(t, 25, *view.Items[0].EstiTime)

	view, err = s.EditItem(id, "1", 0)
	require.NoError(t, err)
	require.Nil(t, view.Items[0].EstiTime)

	_, err = s.EditItem(id, "2", 5)
	require.ErrorIs(t, err, repository.ErrNotFound)

	view, err = s.RemoveItem(id, "1")
	require.NoError(t, err)
	require.Zero(t, view.Total)
}

func TestLoadLote_SkipsPendingCodes(t *testing.T) {
	s, d := newTestService()
	id := startSession(t, s, StartSessionRequest{Workflow: "deliver"})
	d.assignments.On("GetByCode", mock.Anything, "1").Return(&models.Assignment{Code: "1", Status: models.StatusQualified}, nil)
	_, err := s.ProcessScan(context.Background(), id, ScanRequest{Raw: "1"})
	require.NoError(t, err)

	d.assignments.On("FindByLote", mock.Anything, "12").Return([]models.Assignment{
		{Code: "1", Status: models.StatusQualified},
		{Code: "2", Status: models.StatusQualified},
	}, nil)

	result, err := s.LoadLote(context.Background(), id, "12")
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, 2, result.Session.Total)
}

func TestSweepSessions(t *testing.T) {
	s, d := newTestService()
	startSession(t, s, StartSessionRequest{Workflow: "assign"})

	d.clock.Advance(2 * time.Hour)
	require.Equal(t, 1, s.SweepSessions(time.Hour))
	require.Zero(t, s.Sessions().Len())
}
