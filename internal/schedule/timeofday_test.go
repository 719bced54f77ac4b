package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:00", want: 540},
		{in: "17:45", want: 1065},
		{in: "23:59", want: 1439},
		{in: "24:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "banana", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseTimeOfDay(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestTimeOfDayString(t *testing.T) {
	tod, err := ParseTimeOfDay("09:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", tod.String())
	assert.Equal(t, "10:20", tod.Add(75).String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-09")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", d.String())
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, "2026-03-10", d.Next().String())

	_, err = ParseDate("09/03/2026")
	assert.Error(t, err)
}

func TestDateAt(t *testing.T) {
	d, err := ParseDate("2026-03-09")
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	tod, err := ParseTimeOfDay("14:30")
	require.NoError(t, err)

	at := d.At(tod, loc)
	assert.Equal(t, 14, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, loc, at.Location())
}

func TestOverlaps(t *testing.T) {
	// Half-open ranges: touching boundaries are not a conflict.
	assert.False(t, Overlaps(540, 600, 600, 660))
	assert.False(t, Overlaps(600, 660, 540, 600))
	assert.True(t, Overlaps(540, 600, 599, 660))
	assert.True(t, Overlaps(540, 720, 600, 660)) // containment
	assert.True(t, Overlaps(600, 660, 540, 720))
	assert.True(t, Overlaps(540, 600, 540, 600)) // identity
}
