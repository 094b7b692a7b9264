package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step — имя шага пайплайна.
type Step string

// Шаги в порядке выполнения.
const (
	StepAuthenticate Step = "authenticate"
	StepDownload     Step = "download"
	StepPrepareBills Step = "prepare_bills"
	StepPrepareBoB   Step = "prepare_bob"
	StepAnalyze      Step = "analyze"
	StepUpload       Step = "upload"
	StepNotify       Step = "notify"
	StepCleanup      Step = "cleanup"
)

// Steps возвращает все шаги в порядке выполнения.
func Steps() []Step {
	return []Step{
		StepAuthenticate,
		StepDownload,
		StepPrepareBills,
		StepPrepareBoB,
		StepAnalyze,
		StepUpload,
		StepNotify,
		StepCleanup,
	}
}

// Number возвращает порядковый номер шага (с 1), 0 для неизвестного.
func (s Step) Number() int {
	for i, step := range Steps() {
		if step == s {
			return i + 1
		}
	}
	return 0
}

// Run — один запуск workflow.
//
// Run создаётся вместе с RunContext и обновляется после каждого шага.
// При настроенной истории сохраняется в БД.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Status — текущее состояние.
	Status RunStatus `json:"status"`

	// Timestamp — метка времени, общая для всех артефактов run.
	Timestamp string `json:"timestamp"`

	// WorkDir — рабочая директория run.
	WorkDir string `json:"work_dir"`

	// Steps — записи о выполненных шагах.
	Steps []StepRecord `json:"steps,omitempty"`

	// Outcome — что именно удалось доставить.
	Outcome Outcome `json:"outcome"`

	// Error — текст ошибки для FAILED/PARTIAL.
	Error string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepRecord — результат одного шага.
type StepRecord struct {
	Name       Step       `json:"name"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Duration возвращает продолжительность шага.
func (r StepRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome — структурированный итог run.
//
// Разделяет "отчёт доставлен" и "уведомление отправлено",
// чтобы сбой уведомления не выглядел как сбой всего run.
type Outcome struct {
	OutputPath          string `json:"output_path,omitempty"`
	ShareLink           string `json:"share_link,omitempty"`
	ArtifactDelivered   bool   `json:"artifact_delivered"`
	NotificationSent    bool   `json:"notification_sent"`
	NotificationSkipped bool   `json:"notification_skipped"`
	WorkDirRemoved      bool   `json:"work_dir_removed"`
}

// NewRun создаёт run в статусе INIT.
func NewRun(timestamp, workDir string, now time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Status:    RunStatusInit,
		Timestamp: timestamp,
		WorkDir:   workDir,
		StartedAt: now,
	}
}

// Duration возвращает продолжительность run.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// StartStep добавляет запись о начале шага.
func (r *Run) StartStep(step Step, now time.Time) {
	r.Steps = append(r.Steps, StepRecord{
		Name:      step,
		Status:    StepStatusRunning,
		StartedAt: now,
	})
}

// FinishStep закрывает последнюю запись шага.
func (r *Run) FinishStep(step Step, status StepStatus, errMsg string, now time.Time) {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Name != step {
			continue
		}
		r.Steps[i].Status = status
		r.Steps[i].Error = errMsg
		r.Steps[i].FinishedAt = &now
		return
	}
}

// Step возвращает запись шага.
func (r *Run) Step(step Step) (StepRecord, bool) {
	for _, rec := range r.Steps {
		if rec.Name == step {
			return rec, true
		}
	}
	return StepRecord{}, false
}

// Advance переводит run в следующее состояние.
// Терминальное состояние не меняется.
func (r *Run) Advance(status RunStatus) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = status
}

// MarkSucceeded завершает run в CLEANED_UP.
func (r *Run) MarkSucceeded(now time.Time) {
	r.Status = RunStatusCleanedUp
	r.FinishedAt = &now
}

// MarkPartial завершает run в PARTIAL с ошибкой уведомления.
func (r *Run) MarkPartial(err string, now time.Time) {
	r.Status = RunStatusPartial
	r.FinishedAt = &now
	r.Error = err
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string, now time.Time) {
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
