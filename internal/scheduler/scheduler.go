package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/repo"
)

// Runner выполняет один run workflow.
type Runner interface {
	Run(ctx context.Context) (*domain.Run, error)
}

// Locker — распределённый lock на время run.
// TryLock возвращает repo.ErrLockHeld, если lock занят.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), err error)
}

// Scheduler — цикл запуска workflow по расписанию.
type Scheduler struct {
	runner Runner
	locker Locker
	logger *slog.Logger

	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	mu    sync.RWMutex
	sched domain.Schedule
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedule domain.Schedule
	Runner   Runner
	Locker   Locker // опционально
	Logger   *slog.Logger
}

// New создаёт Scheduler и проверяет расписание.
func New(cfg Config) (*Scheduler, error) {
	if err := ValidateCronExpr(cfg.Schedule.CronExpr); err != nil {
		return nil, err
	}
	if _, err := LoadTimezone(cfg.Schedule.Timezone); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		runner: cfg.Runner,
		locker: cfg.Locker,
		logger: logger,
		now:    time.Now,
		after:  time.After,
		sched:  cfg.Schedule,
	}, nil
}

// Start ждёт next_due_at и запускает run, пока не отменён ctx.
//
// Ошибка run не останавливает цикл: она логируется,
// следующий запуск планируется как обычно.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"cron", s.sched.CronExpr,
		"timezone", s.sched.Timezone,
	)

	for {
		next, err := s.scheduleNext(s.now())
		if err != nil {
			return err
		}

		s.logger.Info("next run scheduled", "next_due_at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.after(next.Sub(s.now())):
		}
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick выполняет один run под lock (если он настроен).
//
// Если lock занят другим экземпляром, run пропускается без ошибки.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.locker != nil {
		unlock, err := s.locker.TryLock(ctx)
		if errors.Is(err, repo.ErrLockHeld) {
			s.logger.Info("another instance is running the workflow, skipping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		defer unlock()
	}

	run, runErr := s.runner.Run(ctx)
	if runErr != nil {
		// Итог run уже записан оркестратором; здесь только статус расписания.
		s.logger.Warn("scheduled run finished with error", "error", runErr)
	}

	next, err := s.nextAfter(s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sched.RecordRun(run, next)
	s.mu.Unlock()

	return nil
}

// Snapshot возвращает копию состояния расписания.
func (s *Scheduler) Snapshot() domain.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sched
}

func (s *Scheduler) scheduleNext(from time.Time) (time.Time, error) {
	next, err := s.nextAfter(from)
	if err != nil {
		return time.Time{}, err
	}

	s.mu.Lock()
	s.sched.NextDueAt = &next
	s.mu.Unlock()
	return next, nil
}

func (s *Scheduler) nextAfter(from time.Time) (time.Time, error) {
	s.mu.RLock()
	sched := s.sched
	s.mu.RUnlock()

	return CalculateNextDue(&sched, from)
}
