package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job names used as metric labels.
const (
	JobIdempotencySweep = "idempotency_sweep"
)

// Defaults applied to a zero Config.
const (
	DefaultInterval = time.Minute
	DefaultTimeout  = 30 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running job.
var ErrAlreadyRunning = errors.New("job already running")

// Task performs one run and reports how many records it touched.
type Task func(ctx context.Context) (int, error)

// Config configures a Job.
type Config struct {
	// Name labels logs and metrics.
	Name string
	// Interval between runs.
	Interval time.Duration
	// Timeout bounds a single run.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// Job runs a Task on a ticker until stopped.
type Job struct {
	config Config
	task   Task
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a stopped Job.
func New(config Config, task Task) *Job {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Job{config: config, task: task, now: time.Now}
}

// Start launches the loop in a goroutine and returns immediately.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return fmt.Errorf("%s: %w", j.config.Name, ErrAlreadyRunning)
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})

	go j.loop(ctx, j.stopCh, j.doneCh)
	return nil
}

// Stop ends the loop and waits for an in-flight run to finish. Stopping a
// stopped job is a no-op.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.running = false
	j.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning reports whether the loop is active.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("background job stopping", slog.String("job", j.config.Name), slog.String("reason", "context done"))
			return
		case <-stopCh:
			j.config.Logger.Info("background job stopping", slog.String("job", j.config.Name), slog.String("reason", "stopped"))
			return
		case <-ticker.C:
			_ = j.RunNow(ctx)
		}
	}
}

// RunNow performs one run synchronously, records it and returns the task's
// error.
func (j *Job) RunNow(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	start := j.now()
	affected, err := j.task(ctx)
	finished := j.now()
	seconds := finished.Sub(start).Seconds()

	status := StatusSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = StatusTimeout
	case err != nil:
		status = StatusFailure
	}
	j.config.Metrics.observe(j.config.Name, status, seconds, affected, float64(finished.Unix()))

	if err != nil {
		j.config.Logger.Error("background job failed",
			slog.String("job", j.config.Name),
			slog.String("status", status),
			slog.Float64("duration_seconds", seconds),
			slog.String("error", err.Error()))
		return err
	}
	if affected > 0 {
		j.config.Logger.Info("background job completed",
			slog.String("job", j.config.Name),
			slog.Int("affected", affected),
			slog.Float64("duration_seconds", seconds))
	}
	return nil
}
