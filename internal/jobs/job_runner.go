package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rentacar-backend/internal/config"
	"rentacar-backend/internal/logger"
	"rentacar-backend/internal/repository"
)

// Expirer moves one stale PENDING reservation to EXPIRED. It reports false
// when the reservation had already left PENDING.
type Expirer interface {
	Expire(ctx context.Context, id int64) (bool, error)
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	tx      repository.Transactor
	expirer Expirer
	config  *config.Config
	now     func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(tx repository.Transactor, expirer Expirer, cfg *config.Config) *JobRunner {
	return &JobRunner{
		tx:      tx,
		expirer: expirer,
		config:  cfg,
		now:     time.Now,
	}
}

// Config returns the configuration the jobs were built with.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// SetClock replaces the time source.
func (jr *JobRunner) SetClock(now func() time.Time) {
	jr.now = now
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// Jobs lists the jobs that can be run by name.
func (jr *JobRunner) Jobs() map[string]func() {
	return map[string]func(){
		"expire-stale-reservations": jr.ExpireStaleReservations,
		"purge-published-events":    jr.PurgePublishedEvents,
	}
}

// JobNames returns the runnable job names in order.
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, 2)
	for name := range jr.Jobs() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a single job by name (for manual execution)
func (jr *JobRunner) Run(name string) error {
	job, ok := jr.Jobs()[name]
	if !ok {
		return fmt.Errorf("unknown job %q, expected one of %v", name, jr.JobNames())
	}
	job()
	return nil
}
