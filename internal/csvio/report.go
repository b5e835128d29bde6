package csvio

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/CzarCx/qr-brain/internal/models"

	"github.com/pkg/errors"
)

// WriteDailyReport writes per-assignee status counts followed by the day's KPI rows
func WriteDailyReport(w io.Writer, day string, counts []models.StatusCount, kpis []models.KPI) error {
	cw := csv.NewWriter(w)

	rows := [][]string{{"FECHA", "PERSONAL", "ESTADO", "CANTIDAD"}}
	for _, c := range counts {
		rows = append(rows, []string{day, c.Name, c.Status, strconv.Itoa(c.Count)})
	}

	rows = append(rows, []string{}, []string{"FECHA", "ENCARGADO", "CANTIDAD", "TIEMPO", "ARCHIVO"})
	for _, k := range kpis {
		rows = append(rows, []string{day, k.Name, strconv.Itoa(k.Quantity), k.Time, models.Deref(k.CsvFile)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return errors.Wrap(err, "failed to write daily report")
	}
	return nil
}
