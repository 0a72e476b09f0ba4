package services

import (
	"context"
	"time"

	"github.com/madflojo/tasks"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/config"
)

// RefreshFunc polls one shift's upstream status. It reports done once the
// shift has reached a terminal state and its task can be dropped.
type RefreshFunc func(ctx context.Context) (done bool, err error)

type SchedulerService interface {
	ScheduleShiftRefresh(shiftID string, refresh RefreshFunc)
	DropTask(taskID string)
}

func NewSchedulerService(scheduler *tasks.Scheduler, log *zap.Logger) SchedulerService {
	return &schedulerService{
		scheduler: scheduler,
		interval:  config.SHIFT_REFRESH_INTERVAL,
		deadline:  config.SHIFT_REFRESH_DEADLINE,
		log:       log,
	}
}

type schedulerService struct {
	scheduler *tasks.Scheduler
	interval  time.Duration
	deadline  time.Duration
	log       *zap.Logger
}

func (s *schedulerService) DropTask(taskID string) {
	s.scheduler.Del(taskID)
}

// ScheduleShiftRefresh polls the shift on a fixed interval until it reaches a
// terminal state or the deadline passes. Scheduling the same shift twice
// replaces the previous task.
func (s *schedulerService) ScheduleShiftRefresh(shiftID string, refresh RefreshFunc) {
	s.scheduler.Del(shiftID)

	expiry := time.Now().Add(s.deadline)
	err := s.scheduler.AddWithID(shiftID, &tasks.Task{
		Interval:          s.interval,
		RunSingleInstance: true,
		TaskFunc: func() error {
			if time.Now().After(expiry) {
				s.log.Warn("shift refresh deadline passed", zap.String("shift_id", shiftID))
				s.scheduler.Del(shiftID)
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()

			done, err := refresh(ctx)
			if err != nil {
				s.log.Warn("shift refresh failed", zap.String("shift_id", shiftID), zap.Error(err))
				return nil
			}
			if done {
				s.scheduler.Del(shiftID)
			}
			return nil
		},
	})
	if err != nil {
		s.log.Error("scheduling shift refresh", zap.String("shift_id", shiftID), zap.Error(err))
	}
}
