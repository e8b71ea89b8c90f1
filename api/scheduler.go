/*
scheduler.go - Automated weekend sweep

PURPOSE:
  Periodically marks Weekly Off days of the current month for every
  employee, so calendars show weekends before anyone checks in.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Skips months that already have a completed sweep run
  - Records sweep runs for audit (GET /api/sweeps)
  - A SweepGuard keeps two instances from sweeping the same month at once.
    Single process: in-memory guard. Several replicas: Redis lock.

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - CronSchedule: Standard cron expression; replaces the interval when set,
    e.g. "0 0 1 * *" for midnight on the 1st of each month
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewWeekendScheduler(service, store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: MarkAllWeekends endpoint (manual sweep)
  - attendance/weekend.go: MarkAllWeekends
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// SWEEP GUARD
// =============================================================================

// SweepGuard grants exclusive use of a key for at most ttl.
// ok is false when someone else holds it.
type SweepGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalGuard serializes sweeps inside one process.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]bool)}
}

func (g *LocalGuard) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, false, nil
	}
	g.held[key] = true
	return func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}, true, nil
}

// RedisGuard serializes sweeps across replicas sharing one Redis.
type RedisGuard struct {
	locker *redislock.Client
	log    *logrus.Entry
}

func NewRedisGuard(rdb *redis.Client, logger *logrus.Logger) *RedisGuard {
	return &RedisGuard{
		locker: redislock.New(rdb),
		log:    logger.WithField("component", "sweep-guard"),
	}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := g.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return func() {
		// The lock may already have expired; Release then reports ErrLockNotHeld.
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			g.log.WithError(err).WithField("key", key).Warn("failed to release sweep lock")
		}
	}, true, nil
}

// =============================================================================
// SCHEDULER
// =============================================================================

// SweepRecorder persists sweep runs.
type SweepRecorder interface {
	SaveSweepRun(ctx context.Context, r sqlite.SweepRun) error
	IsSweepComplete(ctx context.Context, year int, month time.Month) (bool, error)
}

// ErrSweepRunning is returned when another sweep holds the month.
// It matches attendance.ErrConflict.
var ErrSweepRunning = fmt.Errorf("weekend sweep already running for this month: %w", attendance.ErrConflict)

// WeekendScheduler handles automated weekend marking.
type WeekendScheduler struct {
	Service       *attendance.Service
	Runs          SweepRecorder
	Guard         SweepGuard
	CheckInterval time.Duration
	CronSchedule  string
	LockTTL       time.Duration
	Enabled       bool

	log    *logrus.Entry
	cron   *cron.Cron
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewWeekendScheduler creates a scheduler with an in-process guard.
func NewWeekendScheduler(svc *attendance.Service, runs SweepRecorder, logger *logrus.Logger) *WeekendScheduler {
	return &WeekendScheduler{
		Service:       svc,
		Runs:          runs,
		Guard:         NewLocalGuard(),
		CheckInterval: 1 * time.Hour,
		LockTTL:       10 * time.Minute,
		Enabled:       true,
		log:           logger.WithField("component", "scheduler"),
	}
}

// Start begins the scheduler.
func (ws *WeekendScheduler) Start() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.Enabled {
		ws.log.Info("disabled, not starting")
		return
	}

	if ws.CronSchedule != "" {
		ws.startCron()
		return
	}

	ws.ticker = time.NewTicker(ws.CheckInterval)
	ws.stop = make(chan bool)
	ws.wg.Add(1)

	go ws.run(ws.ticker.C, ws.stop)

	ws.log.WithField("interval", ws.CheckInterval.String()).Info("started")
}

// startCron runs checks on the cron schedule in the service timezone.
// A check still running when the next one fires is skipped.
func (ws *WeekendScheduler) startCron() {
	c := cron.New(
		cron.WithLocation(ws.Service.Location()),
		cron.WithLogger(cron.PrintfLogger(ws.log)),
		cron.WithChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(ws.log))),
	)
	if _, err := c.AddFunc(ws.CronSchedule, ws.checkAndProcess); err != nil {
		ws.log.WithError(err).WithField("schedule", ws.CronSchedule).Error("invalid cron schedule, not starting")
		return
	}
	ws.cron = c
	c.Start()

	// Run immediately on start
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		ws.checkAndProcess()
	}()

	ws.log.WithField("schedule", ws.CronSchedule).Info("started")
}

// Stop stops the scheduler.
func (ws *WeekendScheduler) Stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	switch {
	case ws.cron != nil:
		<-ws.cron.Stop().Done()
		ws.wg.Wait()
		ws.cron = nil
		ws.log.Info("stopped")
	case ws.ticker != nil:
		ws.ticker.Stop()
		close(ws.stop)
		ws.wg.Wait()
		ws.ticker = nil
		ws.log.Info("stopped")
	}
}

func (ws *WeekendScheduler) run(tick <-chan time.Time, stop <-chan bool) {
	defer ws.wg.Done()

	// Run immediately on start
	ws.checkAndProcess()

	for {
		select {
		case <-tick:
			ws.checkAndProcess()
		case <-stop:
			return
		}
	}
}

func (ws *WeekendScheduler) checkAndProcess() {
	ctx := context.Background()
	today := ws.Service.Today()
	year, month := today.Year(), today.Month()

	done, err := ws.Runs.IsSweepComplete(ctx, year, month)
	if err != nil {
		ws.log.WithError(err).Error("failed to check sweep status")
		return
	}
	if done {
		return
	}

	if _, err := ws.Sweep(ctx, year, month); err != nil && !errors.Is(err, ErrSweepRunning) {
		ws.log.WithError(err).WithFields(logrus.Fields{"year": year, "month": int(month)}).Error("weekend sweep failed")
	}
}

// Sweep marks weekends of the month for all employees and records the run.
// It returns ErrSweepRunning if another sweep holds the month.
func (ws *WeekendScheduler) Sweep(ctx context.Context, year int, month time.Month) (attendance.SweepReport, error) {
	key := fmt.Sprintf("attendance:sweep:%04d-%02d", year, int(month))
	release, ok, err := ws.Guard.Acquire(ctx, key, ws.LockTTL)
	if err != nil {
		return attendance.SweepReport{}, err
	}
	if !ok {
		ws.log.WithField("key", key).Info("sweep skipped, another one is running")
		return attendance.SweepReport{}, ErrSweepRunning
	}
	defer release()

	startTime := time.Now()
	run := sqlite.SweepRun{
		ID:        uuid.NewString(),
		Year:      year,
		Month:     int(month),
		Status:    sqlite.SweepRunning,
		StartedAt: &startTime,
		CreatedAt: startTime,
	}
	if err := ws.Runs.SaveSweepRun(ctx, run); err != nil {
		return attendance.SweepReport{}, fmt.Errorf("failed to save run record: %w", err)
	}

	report, err := ws.Service.MarkAllWeekends(ctx, year, month)

	completedTime := time.Now()
	run.CompletedAt = &completedTime
	run.Employees, run.Marked, run.Failed = report.Employees, report.Marked, report.Failed
	switch {
	case err != nil:
		run.Status = sqlite.SweepFailed
		run.Error = err.Error()
	case report.Failed > 0:
		run.Status = sqlite.SweepFailed
		run.Error = fmt.Sprintf("failed for %v", report.FailedIDs())
	default:
		run.Status = sqlite.SweepCompleted
	}
	if saveErr := ws.Runs.SaveSweepRun(ctx, run); saveErr != nil {
		ws.log.WithError(saveErr).WithField("run_id", run.ID).Error("failed to update run record")
	}

	ws.log.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"status":    run.Status,
		"employees": report.Employees,
		"marked":    report.Marked,
		"failed":    report.Failed,
	}).Info("sweep finished")
	return report, err
}

// RunNow triggers an immediate check (for testing/admin).
func (ws *WeekendScheduler) RunNow() {
	ws.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ws *WeekendScheduler) GetNextRunTime() time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.cron != nil {
		if entries := ws.cron.Entries(); len(entries) > 0 {
			return entries[0].Next
		}
	}
	return time.Now().Add(ws.CheckInterval)
}
