package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpcoming(t *testing.T) {
	tests := []struct {
		name      string
		reference time.Time
		weekday   Weekday
		frequency Frequency
		count     int
		want      []time.Time
	}{
		{
			name:      "every week",
			reference: date(2017, time.July, 19),
			weekday:   Monday,
			frequency: FrequencyEvery,
			count:     3,
			want:      []time.Time{date(2017, time.July, 24), date(2017, time.July, 31), date(2017, time.August, 7)},
		},
		{
			name:      "odd weeks from an even week",
			reference: date(2017, time.July, 17),
			weekday:   Monday,
			frequency: FrequencyOdd,
			count:     3,
			want:      []time.Time{date(2017, time.July, 24), date(2017, time.August, 7), date(2017, time.August, 21)},
		},
		{
			name:      "even weeks starting today",
			reference: date(2017, time.July, 17),
			weekday:   Monday,
			frequency: FrequencyEven,
			count:     2,
			want:      []time.Time{date(2017, time.July, 17), date(2017, time.July, 31)},
		},
		{
			name:      "sunday pickups",
			reference: date(2017, time.July, 18),
			weekday:   Sunday,
			frequency: FrequencyOdd,
			count:     2,
			want:      []time.Time{date(2017, time.July, 23), date(2017, time.August, 6)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Upcoming(tt.reference, tt.weekday, tt.frequency, tt.count)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]), "date %d: got %s, want %s", i, got[i], tt.want[i])
			}
		})
	}
}

func TestUpcoming_FirstMatchesResolve(t *testing.T) {
	ref := date(2022, time.November, 9)
	for _, f := range ValidFrequencies() {
		for wd := Sunday; wd <= Saturday; wd++ {
			got, err := Upcoming(ref, wd, f, 4)
			require.NoError(t, err)
			require.Len(t, got, 4)

			assert.True(t, Resolve(ref, wd, f).Date.Equal(got[0]))
			for i := 1; i < len(got); i++ {
				assert.Equal(t, 7*f.Interval(), CalendarDaysBetween(got[i-1], got[i]))
			}
		}
	}
}

func TestUpcoming_ClampsCount(t *testing.T) {
	ref := date(2017, time.July, 17)

	got, err := Upcoming(ref, Monday, FrequencyEvery, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = Upcoming(ref, Monday, FrequencyEvery, 1000)
	require.NoError(t, err)
	assert.Len(t, got, MaxUpcoming)
}
