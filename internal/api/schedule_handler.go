package api

import (
	"net/http"
)

// GetSchedule возвращает состояние расписания.
// GET /api/v1/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, _ *http.Request) {
	if h.schedule == nil {
		NotFound(w, "scheduler is not running")
		return
	}
	Success(w, ScheduleFromDomain(h.schedule.Snapshot()))
}

// Health — проверка живости сервиса.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.schedule != nil {
		snap := h.schedule.Snapshot()
		resp.NextDueAt = snap.NextDueAt
		resp.LastStatus = snap.LastStatus
	}
	JSON(w, http.StatusOK, resp)
}
