package jobs

import (
	"context"

	"github.com/wonny/arena/pkg/logger"
)

// Pruner drops expired valuation watermarks
type Pruner interface {
	PruneValuations() int
}

// CacheCleanupJob cleans stale valuation watermarks
type CacheCleanupJob struct {
	engine Pruner
	logger *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job
func NewCacheCleanupJob(e Pruner, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		engine: e,
		logger: log,
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CacheCleanupJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run executes the cache cleanup
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if count := j.engine.PruneValuations(); count > 0 {
		j.logger.WithField("removed", count).Info("Valuation cache cleanup completed")
	}
	return nil
}
