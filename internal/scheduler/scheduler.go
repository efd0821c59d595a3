// Package scheduler runs the weekly digest on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leeaandrob/xrpdigest/internal/content"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDigestSchedule runs every Monday at 10:00 UTC.
	DefaultDigestSchedule = "0 10 * * 1"
	// DefaultRunTimeout bounds a single job run.
	DefaultRunTimeout = 10 * time.Minute

	// DefaultNewsSchedule refreshes the news feed every six hours.
	DefaultNewsSchedule = "0 */6 * * *"

	JobWeeklyDigest = "weekly-digest"
	JobNewsIngest   = "news-ingest"
)

// RunJobNow errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobRunning  = errors.New("job already running")
)

// Runner produces one weekly digest.
type Runner interface {
	GenerateWeeklyDigest(ctx context.Context) (*content.Result, error)
}

// Job represents a scheduled job.
type Job struct {
	Name     string
	Spec     string
	Schedule cron.Schedule
	Handler  func(ctx context.Context) error
	LastRun  time.Time
	NextRun  time.Time
	LastErr  string
	running  bool
}

// JobStatus is a snapshot of a job for the admin API.
type JobStatus struct {
	Name    string    `json:"name"`
	Spec    string    `json:"schedule"`
	LastRun time.Time `json:"last_run"`
	NextRun time.Time `json:"next_run"`
	LastErr string    `json:"last_error,omitempty"`
	Running bool      `json:"running"`
}

// Scheduler manages scheduled jobs.
type Scheduler struct {
	jobs    []*Job
	jobsMux sync.RWMutex

	timeout time.Duration
	tick    time.Duration
	now     func() time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler with the weekly digest job registered
// under spec. An empty spec uses DefaultDigestSchedule.
func NewScheduler(runner Runner, spec string, timeout time.Duration) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultDigestSchedule
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:    make([]*Job, 0),
		timeout: timeout,
		tick:    time.Minute,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.AddJob(JobWeeklyDigest, spec, DigestHandler(runner)); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// DigestHandler adapts a Runner to a job handler. A period conflict means the
// week is already done and is not a failure.
func DigestHandler(runner Runner) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		res, err := runner.GenerateWeeklyDigest(ctx)
		var conflict *content.ConflictError
		if errors.As(err, &conflict) {
			log.Info().Str("slug", conflict.Slug).Msg("Weekly digest already exists, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().
			Str("slug", res.Digest.Slug).
			Str("title", res.Digest.Title).
			Msg("Scheduled weekly digest stored")
		return nil
	}
}

// AddJob registers a job using a standard five-field cron expression
// evaluated in UTC.
func (s *Scheduler) AddJob(name, spec string, handler func(ctx context.Context) error) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	job := &Job{
		Name:     name,
		Spec:     spec,
		Schedule: schedule,
		Handler:  handler,
		NextRun:  schedule.Next(s.now().UTC()),
	}
	s.jobs = append(s.jobs, job)

	log.Info().
		Str("job", job.Name).
		Str("schedule", spec).
		Time("next_run", job.NextRun).
		Msg("Job registered")
	return nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.jobs)).Msg("Starting scheduler")

	s.wg.Add(1)
	go s.jobLoop()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler")
	s.cancel()
	s.wg.Wait()
}

// jobLoop checks and runs scheduled jobs.
func (s *Scheduler) jobLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs runs any jobs that are due.
func (s *Scheduler) checkAndRunJobs() {
	now := s.now().UTC()

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	for _, job := range s.jobs {
		if now.Before(job.NextRun) {
			continue
		}
		job.NextRun = job.Schedule.Next(now)

		if job.running {
			log.Warn().Str("job", job.Name).Msg("Previous run still in progress, skipping")
			continue
		}
		s.launch(job, now)

		log.Debug().
			Str("job", job.Name).
			Time("next_run", job.NextRun).
			Msg("Job scheduled for next run")
	}
}

// launch starts job in the background. Callers hold jobsMux.
func (s *Scheduler) launch(job *Job, now time.Time) {
	job.running = true
	job.LastRun = now

	s.wg.Add(1)
	go s.runJob(job)
}

// runJob executes a job.
func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	log.Info().Str("job", job.Name).Msg("Running job")

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	err := job.Handler(ctx)

	s.jobsMux.Lock()
	job.running = false
	job.LastErr = ""
	if err != nil {
		job.LastErr = err.Error()
	}
	s.jobsMux.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Job failed")
	} else {
		log.Info().Str("job", job.Name).Msg("Job completed")
	}
}

// RunJobNow runs a specific job immediately by name.
func (s *Scheduler) RunJobNow(name string) error {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	for _, job := range s.jobs {
		if job.Name != name {
			continue
		}
		if job.running {
			return fmt.Errorf("%w: %s", ErrJobRunning, name)
		}
		s.launch(job, s.now().UTC())
		return nil
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, name)
}

// GetJobStatus returns the status of all jobs.
func (s *Scheduler) GetJobStatus() []JobStatus {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	status := make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		status[i] = JobStatus{
			Name:    job.Name,
			Spec:    job.Spec,
			LastRun: job.LastRun,
			NextRun: job.NextRun,
			LastErr: job.LastErr,
			Running: job.running,
		}
	}
	return status
}
