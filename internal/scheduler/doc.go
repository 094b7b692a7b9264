// Package scheduler запускает workflow по cron-расписанию.
//
// Структура:
//   - scheduler.go — цикл ожидания next_due_at и запуск run (Start, Tick)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedule: domain.Schedule{CronExpr: "0 6 * * MON", Timezone: "Europe/London"},
//	    Runner:   orch,
//	    Locker:   repo.NewAdvisoryLock(pool, repo.WorkflowLockKey), // опционально
//	    Logger:   logger,
//	})
//	err = sched.Start(ctx) // блокируется до отмены ctx
//
// Несколько экземпляров:
//
// При настроенной истории Tick берёт pg_try_advisory_lock.
// Экземпляр, не получивший lock, пропускает запуск.
package scheduler
