package payouts

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

func TestLatestClosedPeriodWeekly(t *testing.T) {
	// Wednesday.
	now := time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)

	period, err := LatestClosedPeriod("0 2 * * MON", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), period.Start)
	require.Equal(t, time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC), period.End)
	require.True(t, period.Valid())
}

func TestLatestClosedPeriodIncludesFiringAtNow(t *testing.T) {
	now := time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC)

	period, err := LatestClosedPeriod("0 2 * * MON", now)
	require.NoError(t, err)
	require.Equal(t, now, period.End)
	require.Equal(t, now.Add(-7*24*time.Hour), period.Start)
}

func TestLatestClosedPeriodMonthly(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	period, err := LatestClosedPeriod("0 0 1 * *", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), period.Start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), period.End)
}

func TestLatestClosedPeriodRespectsTimezonePrefix(t *testing.T) {
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	period, err := LatestClosedPeriod("CRON_TZ=Asia/Manila 0 0 * * MON", now)
	require.NoError(t, err)
	// Midnight Monday in Manila is 16:00 Sunday UTC.
	require.Equal(t, time.Date(2026, 3, 8, 16, 0, 0, 0, time.UTC), period.End)
}

func TestLatestClosedPeriodRejectsGarbage(t *testing.T) {
	_, err := LatestClosedPeriod("not a schedule", time.Now())
	require.Error(t, err)
}
