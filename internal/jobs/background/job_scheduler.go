package background

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"servicehub/internal/config"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	JobRefreshTokenSweep = "refresh-token-sweep"
	JobModerationBacklog = "moderation-backlog-report"
)

// RefreshTokenSweeper clears persisted refresh tokens that are past their expiry.
type RefreshTokenSweeper interface {
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// BacklogCounter reports how many listings wait for moderation.
type BacklogCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// JobScheduler runs the periodic maintenance jobs of the API server.
type JobScheduler struct {
	scheduler gocron.Scheduler
	sweeper   RefreshTokenSweeper
	backlog   BacklogCounter
	logger    *zap.Logger
	now       func() time.Time
	timeout   time.Duration

	jobs map[string]gocron.Job
	mu   sync.RWMutex
}

// NewJobScheduler creates the scheduler and registers the sweep and backlog jobs.
func NewJobScheduler(cfg config.SchedulerConfig, sweeper RefreshTokenSweeper, backlog BacklogCounter, logger *zap.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		sweeper:   sweeper,
		backlog:   backlog,
		logger:    logger,
		now:       time.Now,
		timeout:   time.Minute,
		jobs:      make(map[string]gocron.Job),
	}

	if err := js.AddJob(JobRefreshTokenSweep, cfg.RefreshSweepInterval, js.runRefreshTokenSweep); err != nil {
		return nil, err
	}
	if err := js.AddJob(JobModerationBacklog, cfg.BacklogReportInterval, js.runModerationBacklogReport); err != nil {
		return nil, err
	}

	logger.Info("registered background jobs", zap.Int("count", len(js.jobs)))
	return js, nil
}

func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", zap.Strings("jobs", js.JobNames()))
	js.scheduler.Start()
}

// Stop waits for running jobs to finish.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// AddJob schedules fn every interval. A run that overlaps the previous one is skipped.
func (js *JobScheduler) AddJob(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}
	js.jobs[name] = job
	return nil
}

// JobNames lists the registered jobs in name order.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (js *JobScheduler) runRefreshTokenSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
	defer cancel()
	_, _ = js.SweepExpiredRefreshTokens(ctx)
}

func (js *JobScheduler) runModerationBacklogReport() {
	ctx, cancel := context.WithTimeout(context.Background(), js.timeout)
	defer cancel()
	_, _ = js.ReportModerationBacklog(ctx)
}

// SweepExpiredRefreshTokens drops refresh tokens whose expiry has passed so the
// store never holds a token that could not be rotated anyway.
func (js *JobScheduler) SweepExpiredRefreshTokens(ctx context.Context) (int64, error) {
	cleared, err := js.sweeper.ClearExpiredRefreshTokens(ctx, js.now())
	if err != nil {
		js.logger.Error("refresh token sweep failed", zap.Error(err))
		return 0, err
	}
	js.logger.Info("refresh token sweep completed", zap.Int64("cleared", cleared))
	return cleared, nil
}

// ReportModerationBacklog logs the number of listings awaiting approval.
func (js *JobScheduler) ReportModerationBacklog(ctx context.Context) (int, error) {
	pending, err := js.backlog.CountPending(ctx)
	if err != nil {
		js.logger.Error("moderation backlog report failed", zap.Error(err))
		return 0, err
	}
	if pending > 0 {
		js.logger.Warn("listings awaiting moderation", zap.Int("pending", pending))
	} else {
		js.logger.Info("moderation queue is empty")
	}
	return pending, nil
}
