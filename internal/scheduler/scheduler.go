// Package scheduler runs the recurring pipeline cycles from a yaml
// job table. Job types are registered by the application at startup;
// the scheduler only knows schedules and names.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// JobFunc executes one job type.
type JobFunc func(ctx context.Context) error

// Job is one scheduled job configuration.
type Job struct {
	Name        string `yaml:"name"`
	Schedule    string `yaml:"schedule"` // cron format: "30 8 * * 1-5"
	Type        string `yaml:"type"`     // registered job type, e.g. "data.update"
	Description string `yaml:"description"`
	Enabled     bool   `yaml:"enabled"`
}

// GlobalConfig holds global scheduler settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	Timezone string `yaml:"timezone"`
}

// Config is the scheduler configuration file.
type Config struct {
	Jobs   []Job        `yaml:"jobs"`
	Global GlobalConfig `yaml:"global"`
}

// Status reports the scheduler state.
type Status struct {
	Running      bool          `yaml:"running" json:"running"`
	EnabledJobs  int           `yaml:"enabled_jobs" json:"enabled_jobs"`
	DisabledJobs int           `yaml:"disabled_jobs" json:"disabled_jobs"`
	LastRun      time.Time     `yaml:"last_run" json:"last_run"`
	Uptime       time.Duration `yaml:"uptime" json:"uptime"`
}

// JobResult is the outcome of one job execution.
type JobResult struct {
	JobName   string        `yaml:"job_name" json:"job_name"`
	Type      string        `yaml:"type" json:"type"`
	StartTime time.Time     `yaml:"start_time" json:"start_time"`
	Duration  time.Duration `yaml:"duration" json:"duration"`
	Success   bool          `yaml:"success" json:"success"`
	Error     string        `yaml:"error,omitempty" json:"error,omitempty"`
}

// Scheduler drives the job table.
type Scheduler struct {
	config    Config
	handlers  map[string]JobFunc
	location  *time.Location
	startTime time.Time
	lastRun   time.Time
	running   bool
}

// New builds a scheduler from a loaded config.
func New(config Config) (*Scheduler, error) {
	loc := time.UTC
	if config.Global.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(config.Global.Timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", config.Global.Timezone, err)
		}
	}

	for _, job := range config.Jobs {
		if _, err := parseCron(job.Schedule); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
	}

	return &Scheduler{
		config:   config,
		handlers: make(map[string]JobFunc),
		location: loc,
	}, nil
}

// LoadConfig reads the yaml job table.
func LoadConfig(path string) (Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("read scheduler config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse scheduler config: %w", err)
	}

	if config.Global.LogLevel == "" {
		config.Global.LogLevel = "info"
	}
	if config.Global.Timezone == "" {
		config.Global.Timezone = "UTC"
	}
	return config, nil
}

// Register binds a job type to its handler. Unregistered types fail
// at execution, not at load, so the table can list future jobs.
func (s *Scheduler) Register(jobType string, fn JobFunc) {
	s.handlers[jobType] = fn
}

// Jobs returns the configured job table.
func (s *Scheduler) Jobs() []Job {
	return s.config.Jobs
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	enabled, disabled := 0, 0
	for _, job := range s.config.Jobs {
		if job.Enabled {
			enabled++
		} else {
			disabled++
		}
	}

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startTime)
	}
	return Status{
		Running:      s.running,
		EnabledJobs:  enabled,
		DisabledJobs: disabled,
		LastRun:      s.lastRun,
		Uptime:       uptime,
	}
}

// Start ticks once a minute and fires due jobs until the context ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.running = true
	s.startTime = time.Now()
	defer func() { s.running = false }()

	log.Info().Int("jobs", len(s.config.Jobs)).
		Str("timezone", s.location.String()).
		Msg("Scheduler starting")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			s.runDue(ctx, tick.In(s.location))
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		spec, err := parseCron(job.Schedule)
		if err != nil {
			continue // validated at New; defensive against live edits
		}
		if !spec.matches(now) {
			continue
		}
		result := s.RunJob(ctx, job.Name)
		if !result.Success {
			log.Error().Str("job", job.Name).Str("error", result.Error).Msg("Scheduled job failed")
		}
	}
}

// RunDue executes every enabled job whose schedule covers the given
// instant's hour, ignoring the minute field, and returns the results.
// One-shot invocations use this so a job is still picked up when its
// exact minute has already passed within the hour.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) []JobResult {
	local := now.In(s.location)
	var results []JobResult
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		spec, err := parseCron(job.Schedule)
		if err != nil {
			continue
		}
		if !spec.matchesHour(local) {
			continue
		}
		results = append(results, s.RunJob(ctx, job.Name))
	}
	return results
}

// RunJob executes one job by name immediately.
func (s *Scheduler) RunJob(ctx context.Context, jobName string) JobResult {
	result := JobResult{JobName: jobName, StartTime: time.Now()}

	var job *Job
	for i := range s.config.Jobs {
		if s.config.Jobs[i].Name == jobName {
			job = &s.config.Jobs[i]
			break
		}
	}
	if job == nil {
		result.Error = fmt.Sprintf("job not found: %s", jobName)
		return result
	}
	result.Type = job.Type

	handler, ok := s.handlers[job.Type]
	if !ok {
		result.Error = fmt.Sprintf("no handler registered for job type %s", job.Type)
		return result
	}

	log.Info().Str("job", jobName).Str("type", job.Type).Msg("Executing job")

	err := handler(ctx)
	result.Duration = time.Since(result.StartTime)
	s.lastRun = result.StartTime
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true

	log.Info().Str("job", jobName).Dur("duration", result.Duration).Msg("Job complete")
	return result
}

// cronSpec is a five-field cron expression: minute, hour, day of
// month, month, day of week. Supported syntax: "*", "*/n", single
// values, comma lists and ranges.
type cronSpec struct {
	minute, hour, dom, month, dow fieldSpec
}

type fieldSpec struct {
	any    bool
	step   int
	values map[int]bool
}

func (f fieldSpec) matches(v int) bool {
	if f.any {
		if f.step > 1 {
			return v%f.step == 0
		}
		return true
	}
	return f.values[v]
}

func (c cronSpec) matches(t time.Time) bool {
	return c.minute.matches(t.Minute()) && c.matchesHour(t)
}

// matchesHour checks every field except the minute.
func (c cronSpec) matchesHour(t time.Time) bool {
	return c.hour.matches(t.Hour()) &&
		c.dom.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dow.matches(int(t.Weekday()))
}

func parseCron(expr string) (cronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSpec{}, fmt.Errorf("invalid cron expression %q: want 5 fields, got %d", expr, len(fields))
	}

	var spec cronSpec
	var err error
	targets := []*fieldSpec{&spec.minute, &spec.hour, &spec.dom, &spec.month, &spec.dow}
	for i, raw := range fields {
		*targets[i], err = parseField(raw)
		if err != nil {
			return cronSpec{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
	}
	return spec, nil
}

func parseField(raw string) (fieldSpec, error) {
	if raw == "*" {
		return fieldSpec{any: true, step: 1}, nil
	}
	if step, ok := strings.CutPrefix(raw, "*/"); ok {
		n, err := strconv.Atoi(step)
		if err != nil || n <= 0 {
			return fieldSpec{}, fmt.Errorf("bad step %q", raw)
		}
		return fieldSpec{any: true, step: n}, nil
	}

	values := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err1 := strconv.Atoi(lo)
			to, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || from > to {
				return fieldSpec{}, fmt.Errorf("bad range %q", part)
			}
			for v := from; v <= to; v++ {
				values[v] = true
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fieldSpec{}, fmt.Errorf("bad value %q", part)
		}
		values[v] = true
	}
	return fieldSpec{values: values}, nil
}
