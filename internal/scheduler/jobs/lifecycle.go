package jobs

import (
	"context"

	"github.com/wonny/arena/internal/registry"
	"github.com/wonny/arena/pkg/logger"
)

// Transitioner applies the status changes the calendar calls for
type Transitioner interface {
	ApplyDueTransitions(ctx context.Context) ([]registry.Transition, error)
}

// LifecycleJob opens registration, starts, completes and cancels competitions by date
// ⭐ SSOT: 날짜 기반 상태 전이 스케줄은 이 Job에서만
type LifecycleJob struct {
	engine   Transitioner
	schedule string
	logger   *logger.Logger
}

// NewLifecycleJob creates a new lifecycle job
func NewLifecycleJob(e Transitioner, schedule string, log *logger.Logger) *LifecycleJob {
	return &LifecycleJob{
		engine:   e,
		schedule: schedule,
		logger:   log.Component("lifecycle"),
	}
}

// Name returns the job name
func (j *LifecycleJob) Name() string {
	return "lifecycle"
}

// Schedule returns the cron schedule
func (j *LifecycleJob) Schedule() string {
	return j.schedule
}

// Run applies every due transition
func (j *LifecycleJob) Run(ctx context.Context) error {
	applied, err := j.engine.ApplyDueTransitions(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		j.logger.WithField("applied", len(applied)).Info("Lifecycle transitions applied")
	}
	return nil
}
