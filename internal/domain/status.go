package domain

// RunStatus — состояние выполнения run.
//
// Жизненный цикл:
//
//	INIT → AUTHENTICATED → DOWNLOADED → PREPARED → ANALYZED → UPLOADED → NOTIFIED → CLEANED_UP
//	  ↘ FAILED (из любого нетерминального состояния)
//	UPLOADED → PARTIAL (отчёт доставлен, уведомление не отправлено)
type RunStatus string

const (
	// RunStatusInit — run создан, рабочая директория готова.
	RunStatusInit RunStatus = "INIT"

	// RunStatusAuthenticated — сессия SharePoint получена.
	RunStatusAuthenticated RunStatus = "AUTHENTICATED"

	// RunStatusDownloaded — входные файлы скачаны.
	RunStatusDownloaded RunStatus = "DOWNLOADED"

	// RunStatusPrepared — Bills и BoB подготовлены.
	RunStatusPrepared RunStatus = "PREPARED"

	// RunStatusAnalyzed — анализ выполнен, отчёт лежит в рабочей директории.
	RunStatusAnalyzed RunStatus = "ANALYZED"

	// RunStatusUploaded — отчёт загружен, ссылка создана.
	RunStatusUploaded RunStatus = "UPLOADED"

	// RunStatusNotified — команда уведомлена (или уведомление отключено).
	RunStatusNotified RunStatus = "NOTIFIED"

	// RunStatusCleanedUp — run успешно завершён.
	RunStatusCleanedUp RunStatus = "CLEANED_UP"

	// RunStatusPartial — отчёт доставлен, но уведомление упало.
	RunStatusPartial RunStatus = "PARTIAL"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCleanedUp, RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// StepStatus — статус отдельного шага run.
type StepStatus string

const (
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusSucceeded StepStatus = "SUCCEEDED"
	StepStatusSkipped   StepStatus = "SKIPPED"
	StepStatusFailed    StepStatus = "FAILED"
)
