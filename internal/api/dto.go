package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/engagement-workflow/internal/domain"
)

// RunResponse — ответ с run.
type RunResponse struct {
	ID          uuid.UUID        `json:"id"`
	Status      domain.RunStatus `json:"status"`
	Timestamp   string           `json:"timestamp"`
	Steps       []StepResponse   `json:"steps,omitempty"`
	Outcome     domain.Outcome   `json:"outcome"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	DurationSec float64          `json:"duration_sec,omitempty"`
}

// StepResponse — ответ с шагом run.
type StepResponse struct {
	Name        domain.Step       `json:"name"`
	Number      int               `json:"number"`
	Status      domain.StepStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	DurationSec float64           `json:"duration_sec"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		Status:      r.Status,
		Timestamp:   r.Timestamp,
		Outcome:     r.Outcome,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationSec: r.Duration().Seconds(),
	}

	if len(r.Steps) > 0 {
		resp.Steps = make([]StepResponse, len(r.Steps))
		for i, s := range r.Steps {
			resp.Steps[i] = StepResponse{
				Name:        s.Name,
				Number:      s.Name.Number(),
				Status:      s.Status,
				Error:       s.Error,
				DurationSec: s.Duration().Seconds(),
			}
		}
	}

	return resp
}

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	CronExpr   string           `json:"cron_expr"`
	Timezone   string           `json:"timezone"`
	NextDueAt  *time.Time       `json:"next_due_at,omitempty"`
	LastRunAt  *time.Time       `json:"last_run_at,omitempty"`
	LastRunID  *uuid.UUID       `json:"last_run_id,omitempty"`
	LastStatus domain.RunStatus `json:"last_status,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		CronExpr:   s.CronExpr,
		Timezone:   s.Timezone,
		NextDueAt:  s.NextDueAt,
		LastRunAt:  s.LastRunAt,
		LastRunID:  s.LastRunID,
		LastStatus: s.LastStatus,
	}
}

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status     string           `json:"status"`
	NextDueAt  *time.Time       `json:"next_due_at,omitempty"`
	LastStatus domain.RunStatus `json:"last_status,omitempty"`
}
