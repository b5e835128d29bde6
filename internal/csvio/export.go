package csvio

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExportHeader is the first line of an assignment export
const ExportHeader = "CODIGO,TIEMPO ESTIMADO,PRODUCTO,SKU,CANTIDAD,EMPRESA,VENTA,HORA DE ASIGNACION"

var monthNames = [...]string{
	"ENERO", "FEBRERO", "MARZO", "ABRIL", "MAYO", "JUNIO",
	"JULIO", "AGOSTO", "SEPTIEMBRE", "OCTUBRE", "NOVIEMBRE", "DICIEMBRE",
}

// ExportRow is one scanned label in an assignment export
type ExportRow struct {
	Code     string
	EstiTime *int
	Product  string
	SKU      string
	Quantity *int
	Company  string
	Sale     string
	Hour     string
}

// WriteExport writes rows as a BOM-prefixed CSV where every field is a ="..."
// formula so spreadsheets keep long numeric codes as text.
func WriteExport(w io.Writer, rows []ExportRow) error {
	bw := transform.NewWriter(w, xunicode.UTF8BOM.NewEncoder())

	var b strings.Builder
	b.WriteString(ExportHeader)
	b.WriteByte('\n')

	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		esti := ""
		if row.EstiTime != nil && *row.EstiTime != 0 {
			esti = fmt.Sprint(*row.EstiTime)
		}
		qty := 0
		if row.Quantity != nil {
			qty = *row.Quantity
		}
		fields := []string{
			row.Code, esti, row.Product, row.SKU, fmt.Sprint(qty), row.Company, row.Sale, row.Hour,
		}
		for j, f := range fields {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(textField(f))
		}
	}

	if _, err := io.WriteString(bw, b.String()); err != nil {
		return errors.Wrap(err, "failed to write export")
	}
	return errors.Wrap(bw.Close(), "failed to flush export")
}

func textField(s string) string {
	return `="` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExportFilename builds
// {OPERATOR}-ETIQUETAS({n})-{AREA}-{DD}-{MONTH}-{YY}-{hh}-{mm}-{ss}-{AM|PM}.csv
// with at already in the station's local zone.
func ExportFilename(operator, area string, count int, at time.Time) string {
	op := strings.TrimSpace(operator)
	if op == "" {
		op = "SIN_NOMBRE"
	}
	op = strings.ReplaceAll(strings.ToUpper(op), " ", "_")
	ar := RemoveAccents(strings.ReplaceAll(strings.ToUpper(area), " ", "_"))

	hour := at.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "AM"
	if at.Hour() >= 12 {
		ampm = "PM"
	}

	return fmt.Sprintf("%s-ETIQUETAS(%d)-%s-%02d-%s-%02d-%02d-%02d-%02d-%s.csv",
		op, count, ar,
		at.Day(), monthNames[at.Month()-1], at.Year()%100,
		hour, at.Minute(), at.Second(), ampm,
	)
}

// RemoveAccents strips combining marks after canonical decomposition
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NotFoundHeader is the header of the unmatched-codes download
const NotFoundHeader = "CodigosNoEncontrados"

// WriteNotFound writes one code per line under NotFoundHeader
func WriteNotFound(w io.Writer, codes []string) error {
	var b strings.Builder
	b.WriteString(NotFoundHeader)
	for _, code := range codes {
		b.WriteByte('\n')
		b.WriteString(code)
	}
	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "failed to write not-found codes")
}
