package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		form  string
		every time.Duration
		str   string
	}{
		{name: "cron", raw: "*/5 * * * *", form: FormCron, str: "*/5 * * * *"},
		{name: "cron with seconds", raw: "0 30 7 * * *", form: FormCron},
		{name: "prefixed cron", raw: "CRON: 0 0 * * *", form: FormCron, str: "0 0 * * *"},
		{name: "descriptor", raw: "@every 30m", form: FormCron},
		{name: "duration", raw: "10m", form: FormDuration, every: 10 * time.Minute, str: "every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", form: FormDuration, every: 45 * time.Second},
		{name: "every prefix", raw: "EVERY: 00:05", form: FormHHMM, every: 5 * time.Minute},
		{name: "hhmm", raw: "01:30", form: FormHHMM, every: 90 * time.Minute},
		{name: "long hhmm", raw: "100:00", form: FormHHMM, every: 100 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.form, got.Form)
			assert.Equal(t, tt.every, got.Every)
			assert.Equal(t, tt.every > 0, got.IsInterval())
			assert.False(t, got.IsZero())
			assert.NotNil(t, got.cronSchedule())
			if tt.str != "" {
				assert.Equal(t, tt.str, got.String())
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"", "not-a-schedule", "0s", "-5m", "00:00", "01:75", "cron:", "every:",
		"61 * * * *", "@fortnightly", "* * *",
	} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	d, err := parseHHMM("23:15")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour+15*time.Minute, d)

	_, err = parseHHMM("1:60")
	assert.Error(t, err)
	_, err = parseHHMM("ab:cd")
	assert.Error(t, err)
}

func TestScheduleZero(t *testing.T) {
	t.Parallel()
	var s Schedule
	assert.True(t, s.IsZero())
	assert.False(t, s.IsInterval())
}
