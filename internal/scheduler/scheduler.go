package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/repository"
)

const dispatchTimeout = 30 * time.Second

// Dispatcher enqueues a scheduled-dispatch job for a schedule.
type Dispatcher interface {
	EnqueueScheduleDispatch(ctx context.Context, scheduleID string) (string, error)
}

type entry struct {
	expr string
	id   cron.EntryID
}

// Scheduler keeps one cron entry per active schedule that has a cron expression,
// reloading the schedule table every refresh interval.
type Scheduler struct {
	schedules  repository.ScheduleRepository
	dispatcher Dispatcher
	cron       *cron.Cron
	refresh    time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	entries  map[string]entry
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(schedules repository.ScheduleRepository, dispatcher Dispatcher, refresh time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		schedules:  schedules,
		dispatcher: dispatcher,
		cron:       cron.New(),
		refresh:    refresh,
		logger:     logger.Named("scheduler"),
		entries:    map[string]entry{},
		stopChan:   make(chan struct{}),
	}
}

// Start loads the schedules, starts cron and keeps the entries in sync until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Sync(ctx); err != nil {
					s.logger.Error("failed to refresh schedules", zap.Error(err))
				}
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler started", zap.Duration("refresh", s.refresh))
	return nil
}

// Stop halts the refresh loop and waits for running dispatches. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	})
}

// Sync reconciles cron entries with the active schedules.
func (s *Scheduler) Sync(ctx context.Context) error {
	active, err := s.schedules.ListActive(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(active))
	for _, sc := range active {
		if sc.CronExpr == "" {
			continue
		}
		seen[sc.ID] = true
		if cur, ok := s.entries[sc.ID]; ok {
			if cur.expr == sc.CronExpr {
				continue
			}
			s.cron.Remove(cur.id)
			delete(s.entries, sc.ID)
		}

		scheduleID := sc.ID
		id, err := s.cron.AddFunc(sc.CronExpr, func() { s.dispatch(scheduleID) })
		if err != nil {
			s.logger.Warn("invalid cron expression, schedule skipped",
				zap.String("schedule_id", sc.ID), zap.String("cron", sc.CronExpr), zap.Error(err))
			continue
		}
		s.entries[sc.ID] = entry{expr: sc.CronExpr, id: id}
		s.logger.Info("schedule registered", zap.String("schedule_id", sc.ID), zap.String("cron", sc.CronExpr))
	}

	for scheduleID, e := range s.entries {
		if !seen[scheduleID] {
			s.cron.Remove(e.id)
			delete(s.entries, scheduleID)
			s.logger.Info("schedule unregistered", zap.String("schedule_id", scheduleID))
		}
	}
	return nil
}

func (s *Scheduler) dispatch(scheduleID string) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	jobID, err := s.dispatcher.EnqueueScheduleDispatch(ctx, scheduleID)
	if err != nil {
		s.logger.Error("failed to enqueue scheduled dispatch", zap.String("schedule_id", scheduleID), zap.Error(err))
		return
	}
	s.logger.Info("scheduled dispatch enqueued", zap.String("schedule_id", scheduleID), zap.String("job_id", jobID))
}
