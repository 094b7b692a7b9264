package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/engagement-workflow/internal/domain"
)

// Ошибки шагов.
var (
	// ErrAuth — не удалось получить сессию SharePoint.
	ErrAuth = errors.New("authentication failed")

	// ErrDownload — не удалось скачать входной файл.
	ErrDownload = errors.New("download failed")

	// ErrMissingInput — шагу нужен файл роли, которая не была скачана.
	ErrMissingInput = errors.New("missing input file")

	// ErrPrepare — подготовка Bills или BoB завершилась ошибкой.
	ErrPrepare = errors.New("prepare failed")

	// ErrAnalysis — анализ завершился ошибкой.
	ErrAnalysis = errors.New("analysis failed")

	// ErrUpload — не удалось загрузить отчёт.
	ErrUpload = errors.New("upload failed")

	// ErrLink — не удалось создать ссылку на отчёт.
	ErrLink = errors.New("share link failed")

	// ErrNotification — не удалось отправить уведомление.
	ErrNotification = errors.New("notification failed")

	// ErrCleanup — не удалось удалить рабочую директорию.
	ErrCleanup = errors.New("cleanup failed")
)

// StepError — ошибка конкретного шага.
//
// Err оборачивает sentinel шага и исходную причину,
// поэтому работают и errors.Is(err, ErrUpload), и errors.As для причины.
type StepError struct {
	Step domain.Step
	Err  error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap возвращает обёрнутую ошибку.
func (e *StepError) Unwrap() error {
	return e.Err
}

// stepError оборачивает cause в sentinel шага.
func stepError(step domain.Step, sentinel, cause error) *StepError {
	if cause == nil {
		return &StepError{Step: step, Err: sentinel}
	}
	return &StepError{Step: step, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// IsPartial возвращает true, если run доставил отчёт, но не отправил уведомление.
func IsPartial(err error) bool {
	return errors.Is(err, ErrNotification)
}
