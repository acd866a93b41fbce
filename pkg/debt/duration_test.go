package debt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/issuetrack/pkg/debt"
)

func TestDurations_Decode(t *testing.T) {
	t.Parallel()

	d := debt.Durations{}

	cases := map[string]int64{
		"10min":       10,
		"1h":          60,
		"2d":          960,
		"1d 2h 30min": 480 + 120 + 30,
		" 3h5min ":    185,
	}

	for in, want := range cases {
		got, err := d.Decode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDurations_DecodeCustomDay(t *testing.T) {
	t.Parallel()

	got, err := debt.Durations{HoursInDay: 24}.Decode("1d")
	require.NoError(t, err)
	assert.Equal(t, int64(1440), got)
}

func TestDurations_DecodeErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "min", "10", "10m", "1w", "h1"} {
		_, err := debt.Durations{}.Decode(in)
		require.ErrorIs(t, err, debt.ErrInvalidDuration, in)
	}
}

func TestDurations_Encode(t *testing.T) {
	t.Parallel()

	d := debt.Durations{}

	assert.Equal(t, "0min", d.Encode(0))
	assert.Equal(t, "45min", d.Encode(45))
	assert.Equal(t, "1d 2h 30min", d.Encode(630))
	assert.Equal(t, "2d", d.Encode(960))
}
