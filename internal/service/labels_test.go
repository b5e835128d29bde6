package service

import (
	"context"
	"testing"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAccept_PrintStationKeepsAssignmentDate(t *testing.T) {
	s, d := newTestService()

	d.assignments.On("UpdateStatus", mock.Anything, []string{"5"}, mock.MatchedBy(func(f map[string]interface{}) bool {
		_, hasDate := f["date"]
		return f["status"] == models.StatusQualified && !hasDate
	}), repository.StatusGuard{NotIn: terminalStatuses}).Return(int64(1), nil)

	require.NoError(t, s.Accept(context.Background(), "5", AcceptRequest{Workflow: "print"}))
	d.assertExpectations(t)
}

func TestAccept_ZeroRowsIsNotFoundOrConflict(t *testing.T) {
	s, d := newTestService()

	d.assignments.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	d.assignments.On("GetByCode", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	d.assignments.On("GetByCode", mock.Anything, "gone").Return(&models.Assignment{Code: "gone", Status: models.StatusDelivered}, nil)

	err := s.Accept(context.Background(), "missing", AcceptRequest{})
	require.ErrorIs(t, err, repository.ErrNotFound)

	err = s.Accept(context.Background(), "gone", AcceptRequest{})
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestReport_RequiresReason(t *testing.T) {
	s, d := newTestService()

	require.True(t, IsValidation(s.Report(context.Background(), "5", ReportRequest{})))

	d.assignments.On("UpdateStatus", mock.Anything, []string{"5"}, map[string]interface{}{
		"status":  models.StatusReported,
		"details": "Caja dañada",
	}, repository.StatusGuard{NotIn: terminalStatuses}).Return(int64(1), nil)

	require.NoError(t, s.Report(context.Background(), "5", ReportRequest{Reason: "Caja dañada"}))
	d.assertExpectations(t)
}

func TestCancel_IsIdempotent(t *testing.T) {
	s, d := newTestService()
	guard := repository.StatusGuard{NotIn: []string{models.StatusCancelled}}
	fields := map[string]interface{}{"status": models.StatusCancelled}

	d.assignments.On("UpdateStatus", mock.Anything, []string{"7"}, fields, guard).Return(int64(1), nil).Once()
	d.assignments.On("UpdateStatus", mock.Anything, []string{"7"}, fields, guard).Return(int64(0), nil).Once()
	d.assignments.On("GetByCode", mock.Anything, "7").Return(&models.Assignment{Code: "7", Status: models.StatusCancelled}, nil).Once()

	require.NoError(t, s.Cancel(context.Background(), "7"))
	require.NoError(t, s.Cancel(context.Background(), " 7 "))

	d.assignments.On("UpdateStatus", mock.Anything, []string{"8"}, fields, guard).Return(int64(0), nil)
	d.assignments.On("GetByCode", mock.Anything, "8").Return(nil, repository.ErrNotFound)
	require.ErrorIs(t, s.Cancel(context.Background(), "8"), repository.ErrNotFound)

	require.True(t, IsValidation(s.Cancel(context.Background(), " ")))
	d.assertExpectations(t)
}

func TestUnassign_MissingCode(t *testing.T) {
	s, d := newTestService()
	d.assignments.On("DeleteByCode", mock.Anything, "9").Return(int64(0), nil)

	require.ErrorIs(t, s.Unassign(context.Background(), "9"), repository.ErrNotFound)
}

func TestTouchPrintDate(t *testing.T) {
	s, d := newTestService()
	d.labels.On("TouchPrintDate", mock.Anything, "9", d.clock.Now()).Return(int64(1), nil)

	require.NoError(t, s.TouchPrintDate(context.Background(), "9"))
	d.assertExpectations(t)
}

func TestVerifyCut(t *testing.T) {
	t.Run("records the cut", func(t *testing.T) {
		s, d := newTestService()
		d.labels.On("GetCut", mock.Anything, "C1").Return(&models.CutRecord{CodeI: "C1"}, nil)
		d.labels.On("MarkCut", mock.Anything, "C1", "Rosa", d.clock.Now()).Return(int64(1), nil)

		result, err := s.VerifyCut(context.Background(), "C1", CutRequest{Operator: "Rosa"})
		require.NoError(t, err)
		require.False(t, result.AlreadyRegistered)
		require.Equal(t, "Rosa", result.PersonalBar)
	})

	t.Run("reports an existing cut", func(t *testing.T) {
		s, d := newTestService()
		at := d.clock.Now().Add(-time.Hour)
		d.labels.On("GetCut", mock.Anything, "C2").Return(&models.CutRecord{CodeI: "C2", CorteEtiquetas: &at, PersonalBar: models.StringPtr("Rosa")}, nil)

		result, err := s.VerifyCut(context.Background(), "C2", CutRequest{Operator: "Juan"})
		require.NoError(t, err)
		require.True(t, result.AlreadyRegistered)
		require.Equal(t, "Rosa", result.PersonalBar)
		d.labels.AssertNotCalled(t, "MarkCut", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("loses the race", func(t *testing.T) {
		s, d := newTestService()
		at := d.clock.Now()
		d.labels.On("GetCut", mock.Anything, "C3").Return(&models.CutRecord{CodeI: "C3"}, nil).Once()
		d.labels.On("MarkCut", mock.Anything, "C3", "Juan", at).Return(int64(0), nil)
		d.labels.On("GetCut", mock.Anything, "C3").Return(&models.CutRecord{CodeI: "C3", CorteEtiquetas: &at, PersonalBar: models.StringPtr("Rosa")}, nil).Once()

		result, err := s.VerifyCut(context.Background(), "C3", CutRequest{Operator: "Juan"})
		require.NoError(t, err)
		require.True(t, result.AlreadyRegistered)
		require.Equal(t, "Rosa", result.PersonalBar)
	})

	t.Run("unknown code", func(t *testing.T) {
		s, d := newTestService()
		d.labels.On("GetCut", mock.Anything, "C4").Return(nil, repository.ErrNotFound)

		_, err := s.VerifyCut(context.Background(), "C4", CutRequest{Operator: "Juan"})
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("needs an operator", func(t *testing.T) {
		s, _ := newTestService()

		_, err := s.VerifyCut(context.Background(), "C5", CutRequest{})
		require.True(t, IsValidation(err))
	})
}
