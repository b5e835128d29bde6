package csvio

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/CzarCx/qr-brain/internal/scan"

	"github.com/pkg/errors"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Columns of the delivery scanner export
const (
	deliveryCodeColumn = 4
	deliveryDateColumn = 7
	deliveryTimeColumn = 8
)

var numericCode = regexp.MustCompile(`^\d+$`)

// Layouts accepted for the "{date} {time}" pair, always read as UTC
var deliveryLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// DeliveryEntry is a valid row of a delivery import
type DeliveryEntry struct {
	Code string
	At   time.Time
}

// ParseDeliveries reads a delivery scanner export. The header row is skipped.
// Rows missing a field, with an unparseable timestamp or a non-numeric code
// are dropped.
func ParseDeliveries(r io.Reader) ([]DeliveryEntry, error) {
	cr := csv.NewReader(transform.NewReader(r, xunicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV")
	}
	if len(records) <= 1 {
		return nil, nil
	}

	entries := make([]DeliveryEntry, 0, len(records)-1)
	for _, row := range records[1:] {
		if entry, ok := parseDeliveryRow(row); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func parseDeliveryRow(row []string) (DeliveryEntry, bool) {
	if len(row) <= deliveryTimeColumn {
		return DeliveryEntry{}, false
	}

	code := row[deliveryCodeColumn]
	date := strings.TrimSpace(row[deliveryDateColumn])
	clock := strings.TrimSpace(row[deliveryTimeColumn])
	if code == "" || date == "" || clock == "" {
		return DeliveryEntry{}, false
	}

	at, ok := parseUTC(date + " " + clock)
	if !ok {
		return DeliveryEntry{}, false
	}

	code = scan.Normalize(code)
	if !numericCode.MatchString(code) {
		return DeliveryEntry{}, false
	}

	return DeliveryEntry{Code: code, At: at}, true
}

func parseUTC(value string) (time.Time, bool) {
	for _, layout := range deliveryLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Span is the time between the first and last valid rows in file order
func Span(entries []DeliveryEntry) time.Duration {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].At.Sub(entries[0].At)
}

// IsNumeric reports whether s is a non-empty run of ASCII digits
func IsNumeric(s string) bool {
	return numericCode.MatchString(s)
}
