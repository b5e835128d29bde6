package csvio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const deliveryHeader = "a,b,c,d,text,f,g,date_utc,time_utc\n"

func TestParseDeliveries_DropsInvalidRows(t *testing.T) {
	input := "\ufeff" + deliveryHeader +
		"x,x,x,x,1001,x,x,2025-03-10,14:00:00\n" +
		`x,x,x,x,"{""id"":""1002""}",x,x,2025-03-10,14:05:00` + "\n" +
		"x,x,x,x,1003,x,x,not-a-date,14:06:00\n" +
		"x,x,x,x,ABC,x,x,2025-03-10,14:07:00\n" +
		"x,x,x,x,,x,x,2025-03-10,14:08:00\n" +
		"x,x,x,x,1004\n" +
		"x,x,x,x,1005,x,x,2025-03-10,14:30:00\n"

	entries, err := ParseDeliveries(strings.NewReader(input))
	require.NoError(t, err)

	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.Code
	}
	require.Equal(t, []string{"1001", "1002", "1005"}, codes)
	require.Equal(t, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), entries[0].At)
	require.Equal(t, 30*time.Minute, Span(entries))
}

func TestParseDeliveries_HeaderOnly(t *testing.T) {
	entries, err := ParseDeliveries(strings.NewReader(deliveryHeader))
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Zero(t, Span(entries))
}

func TestParseUTC_Layouts(t *testing.T) {
	for _, v := range []string{"2025-03-10 14:00:00", "2025/03/10 14:00", "03/10/2025 14:00:00"} {
		got, ok := parseUTC(v)
		require.True(t, ok, v)
		require.Equal(t, 14, got.Hour())
		require.Equal(t, time.UTC, got.Location())
	}
	_, ok := parseUTC("10-03-2025 2pm")
	require.False(t, ok)
}
