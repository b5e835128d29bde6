package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/csvio"
	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/rs/zerolog/log"
)

// ImportStats summarizes a delivery import. Only valid rows are counted.
type ImportStats struct {
	Found    int      `json:"found"`
	NotFound int      `json:"not_found"`
	Total    int      `json:"total"`
	Elapsed  string   `json:"elapsed"`
	Updated  int      `json:"updated"`
	Missing  []string `json:"not_found_codes"`
}

// ImportDeliveries marks the codes of a delivery scanner export as ENTREGADO
// with their scan timestamps.
func (s *Service) ImportDeliveries(ctx context.Context, operator, filename string, r io.Reader) (stats *ImportStats, err error) {
	defer s.trace("ImportDeliveries", &err)()

	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, invalid("operator", "select an operator before uploading a CSV file")
	}

	entries, err := csvio.ParseDeliveries(r)
	if err != nil {
		return nil, invalid("file", "could not read the CSV file: %v", err)
	}
	if len(entries) == 0 {
		return &ImportStats{Elapsed: "N/A", Missing: []string{}}, nil
	}

	span := csvio.Span(entries)
	codes := make([]string, len(entries))
	at := make(map[string]time.Time, len(entries))
	for i, e := range entries {
		codes[i] = e.Code
		at[e.Code] = e.At
	}

	existing, err := s.assignments.FindByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, row := range existing {
		known[row.Code] = true
	}

	stats = &ImportStats{Total: len(codes), Elapsed: FormatElapsed(span), Missing: []string{}}
	var found []string
	for _, code := range codes {
		if known[code] {
			found = append(found, code)
		} else {
			stats.Missing = append(stats.Missing, code)
		}
	}
	stats.Found = len(found)
	stats.NotFound = len(stats.Missing)

	if len(found) == 0 {
		return stats, nil
	}

	s.recordKPI(ctx, operator, len(found), span, filename)

	for _, code := range found {
		fields := map[string]interface{}{
			"status":     models.StatusDelivered,
			"date_entre": at[code],
		}
		rows, err := s.assignments.UpdateStatus(ctx, []string{code}, fields, repository.StatusGuard{})
		if err != nil {
			return stats, err
		}
		stats.Updated += int(rows)
	}

	s.metrics.RecordTransition(models.StatusDelivered, stats.Updated)
	log.Info().Str("file", filename).Int("found", stats.Found).Int("not_found", stats.NotFound).Msg("Delivery CSV imported")
	return stats, nil
}

// NotFoundCSV renders unmatched codes for download
func (s *Service) NotFoundCSV(codes []string) ([]byte, error) {
	var b strings.Builder
	if err := csvio.WriteNotFound(&b, codes); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
