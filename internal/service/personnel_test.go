package service

import (
	"context"
	"testing"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterPersonnel(t *testing.T) {
	s, d := newTestService()

	_, err := s.RegisterPersonnel(context.Background(), RegisterPersonnelRequest{Name: "Ana", Rol: "gerente"})
	require.True(t, IsValidation(err))

	d.personnel.On("Create", mock.Anything, &models.Personnel{Name: "Ana", Rol: models.RoleBarra}).Return(nil)
	p, err := s.RegisterPersonnel(context.Background(), RegisterPersonnelRequest{Name: " Ana ", Rol: models.RoleBarra})
	require.NoError(t, err)
	require.Equal(t, "Ana", p.Name)
	d.assertExpectations(t)
}

func TestPersonnelNames_CachedAndInvalidated(t *testing.T) {
	s, d := newTestService()
	d.personnel.On("List", mock.Anything, "").Return([]models.Personnel{{Name: "Ana"}}, nil)

	for i := 0; i < 3; i++ {
		names, err := s.personnelNames(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{"Ana"}, names)
	}
	d.personnel.AssertNumberOfCalls(t, "List", 1)

	d.clock.Advance(2 * time.Minute)
	_, err := s.personnelNames(context.Background())
	require.NoError(t, err)
	d.personnel.AssertNumberOfCalls(t, "List", 2)

	s.forgetPersonnelNames()
	_, err = s.personnelNames(context.Background())
	require.NoError(t, err)
	d.personnel.AssertNumberOfCalls(t, "List", 3)
}

func TestSearchScans_Disabled(t *testing.T) {
	s, _ := newTestService()

	_, err := s.SearchScans(context.Background(), "100", 10)
	require.ErrorIs(t, err, ErrSearchDisabled)
}

type memoryUploader struct {
	keys []string
}

func (u *memoryUploader) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	u.keys = append(u.keys, key)
	return "https://files.example.com/" + key, nil
}

func TestDailyReport(t *testing.T) {
	s, d := newTestService()
	uploader := &memoryUploader{}
	s.uploader = uploader

	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	d.assignments.On("CountsByStatus", mock.Anything, from, to).Return([]models.StatusCount{
		{Name: "Ana", Status: models.StatusAssigned, Count: 4},
	}, nil)
	d.activity.On("KPIsBetween", mock.Anything, from, to).Return([]models.KPI{
		{Name: "Luis", Quantity: 4, Time: "00:10:00"},
	}, nil)

	report, err := s.DailyReport(context.Background(), d.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "2024-03-05", report.Day)
	require.Equal(t, []string{"reports/daily-2024-03-05.csv"}, uploader.keys)
	require.Contains(t, string(report.Content), "2024-03-05,Ana,ASIGNADO,4")
	require.Equal(t, "https://files.example.com/reports/daily-2024-03-05.csv", report.URL)
	d.assertExpectations(t)
}

