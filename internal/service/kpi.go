package service

import (
	"context"
	"fmt"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// FormatElapsed renders d as HH:MM:SS
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// recordKPI writes a productivity row. Failures are logged and never returned.
func (s *Service) recordKPI(ctx context.Context, operator string, quantity int, elapsed time.Duration, csvFile string) {
	if quantity == 0 || operator == "" {
		return
	}

	kpi := &models.KPI{
		Name:     operator,
		Quantity: quantity,
		Time:     FormatElapsed(elapsed),
		CsvFile:  models.StringPtr(csvFile),
	}
	if err := s.activity.CreateKPI(ctx, kpi); err != nil {
		s.metrics.IncrementCounter(metrics.KPIWriteFailures)
		log.Warn().Err(err).Str("operator", operator).Int("quantity", quantity).Msg("Failed to save KPI")
	}
}

// publish sends a change event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, event models.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = s.now()
	}
	if event.Table == "" {
		event.Table = models.ProgrammedItem{}.TableName()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementCounter(metrics.FeedPublishFailures)
		log.Warn().Err(err).Str("op", event.Op).Str("lote", event.Lote).Msg("Failed to publish change event")
	}
}
