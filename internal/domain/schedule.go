package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска workflow.
//
// Scheduler ждёт NextDueAt, запускает workflow и вычисляет новое NextDueAt.
type Schedule struct {
	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 6 * * MON"   — каждый понедельник в 6:00
	//   "0 9 * * *"     — каждый день в 9:00
	CronExpr string `json:"cron_expr"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunID — ID последнего run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`

	// LastStatus — итог последнего run.
	LastStatus RunStatus `json:"last_status,omitempty"`
}

// RecordRun обновляет schedule после запуска.
func (s *Schedule) RecordRun(run *Run, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	if run != nil {
		id := run.ID
		s.LastRunID = &id
		s.LastStatus = run.Status
	}
	s.NextDueAt = &nextDue
}
