package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(weekday time.Weekday, hour, minute int) time.Time {
	// 2025-06-02 is a Monday
	base := time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestCronEveryMinute(t *testing.T) {
	spec, err := parseCron("* * * * *")
	require.NoError(t, err)
	assert.True(t, spec.matches(at(time.Wednesday, 13, 37)))
}

func TestCronFixedTimeWeekdays(t *testing.T) {
	spec, err := parseCron("30 8 * * 1-5")
	require.NoError(t, err)

	assert.True(t, spec.matches(at(time.Monday, 8, 30)))
	assert.True(t, spec.matches(at(time.Friday, 8, 30)))
	assert.False(t, spec.matches(at(time.Saturday, 8, 30)))
	assert.False(t, spec.matches(at(time.Monday, 8, 31)))
	assert.False(t, spec.matches(at(time.Monday, 9, 30)))
}

func TestCronStep(t *testing.T) {
	spec, err := parseCron("*/15 9-17 * * *")
	require.NoError(t, err)

	assert.True(t, spec.matches(at(time.Tuesday, 9, 0)))
	assert.True(t, spec.matches(at(time.Tuesday, 17, 45)))
	assert.False(t, spec.matches(at(time.Tuesday, 9, 7)))
	assert.False(t, spec.matches(at(time.Tuesday, 18, 0)))
}

func TestCronList(t *testing.T) {
	spec, err := parseCron("0 9,13,17 * * *")
	require.NoError(t, err)

	assert.True(t, spec.matches(at(time.Monday, 13, 0)))
	assert.False(t, spec.matches(at(time.Monday, 14, 0)))
}

func TestCronRejectsMalformed(t *testing.T) {
	for _, expr := range []string{"", "* * *", "61x * * * *", "*/0 * * * *", "5-1 * * * *"} {
		_, err := parseCron(expr)
		assert.Error(t, err, expr)
	}
}

func TestNewRejectsBadJobSchedule(t *testing.T) {
	_, err := New(Config{Jobs: []Job{{Name: "bad", Schedule: "nope", Enabled: true}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRunJobExecutesHandler(t *testing.T) {
	s, err := New(Config{Jobs: []Job{
		{Name: "morning-update", Schedule: "30 8 * * 1-5", Type: "data.update", Enabled: true},
	}})
	require.NoError(t, err)

	ran := false
	s.Register("data.update", func(ctx context.Context) error {
		ran = true
		return nil
	})

	result := s.RunJob(context.Background(), "morning-update")
	assert.True(t, result.Success)
	assert.True(t, ran)
	assert.Equal(t, "data.update", result.Type)
}

func TestRunDueMatchesHourIgnoringMinute(t *testing.T) {
	s, err := New(Config{Jobs: []Job{
		{Name: "morning-update", Schedule: "30 8 * * 1-5", Type: "data.update", Enabled: true},
		{Name: "evening-backtests", Schedule: "30 18 * * 1-5", Type: "backtest.catalog", Enabled: true},
		{Name: "disabled-scan", Schedule: "45 18 * * 1-5", Type: "scan.score", Enabled: false},
	}})
	require.NoError(t, err)

	var ran []string
	s.Register("data.update", func(ctx context.Context) error { ran = append(ran, "data.update"); return nil })
	s.Register("backtest.catalog", func(ctx context.Context) error { ran = append(ran, "backtest.catalog"); return nil })
	s.Register("scan.score", func(ctx context.Context) error { ran = append(ran, "scan.score"); return nil })

	// 18:05 is past the 18:30 minute mark's hour start; the hour match
	// still picks the evening job up, the morning one stays out
	results := s.RunDue(context.Background(), at(time.Tuesday, 18, 5))
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, []string{"backtest.catalog"}, ran)

	// weekend: nothing due
	assert.Empty(t, s.RunDue(context.Background(), at(time.Saturday, 18, 30)))
}

func TestRunJobReportsHandlerError(t *testing.T) {
	s, err := New(Config{Jobs: []Job{
		{Name: "scan", Schedule: "0 12 * * *", Type: "scan.score", Enabled: true},
	}})
	require.NoError(t, err)

	s.Register("scan.score", func(ctx context.Context) error {
		return errors.New("provider unavailable")
	})

	result := s.RunJob(context.Background(), "scan")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "provider unavailable")
}

func TestRunJobUnknownNameAndType(t *testing.T) {
	s, err := New(Config{Jobs: []Job{
		{Name: "scan", Schedule: "0 12 * * *", Type: "scan.score", Enabled: true},
	}})
	require.NoError(t, err)

	missing := s.RunJob(context.Background(), "nope")
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Error, "not found")

	unhandled := s.RunJob(context.Background(), "scan")
	assert.False(t, unhandled.Success)
	assert.Contains(t, unhandled.Error, "no handler registered")
}

func TestGetStatusCounts(t *testing.T) {
	s, err := New(Config{Jobs: []Job{
		{Name: "a", Schedule: "* * * * *", Type: "t", Enabled: true},
		{Name: "b", Schedule: "* * * * *", Type: "t", Enabled: true},
		{Name: "c", Schedule: "* * * * *", Type: "t", Enabled: false},
	}})
	require.NoError(t, err)

	status := s.GetStatus()
	assert.Equal(t, 2, status.EnabledJobs)
	assert.Equal(t, 1, status.DisabledJobs)
	assert.False(t, status.Running)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - name: morning-update
    schedule: "30 8 * * 1-5"
    type: data.update
    description: refresh bars and macro before open
    enabled: true
  - name: midday-scan
    schedule: "0 12 * * 1-5"
    type: scan.score
    enabled: false
global:
  timezone: Europe/Stockholm
`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, config.Jobs, 2)
	assert.Equal(t, "data.update", config.Jobs[0].Type)
	assert.False(t, config.Jobs[1].Enabled)
	assert.Equal(t, "Europe/Stockholm", config.Global.Timezone)
	assert.Equal(t, "info", config.Global.LogLevel)
}
