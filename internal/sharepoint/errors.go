package sharepoint

import (
	"errors"
	"fmt"
)

// Ошибки клиента SharePoint.
var (
	// ErrAuthentication — не удалось получить токен.
	ErrAuthentication = errors.New("sharepoint authentication failed")

	// ErrSiteNotFound — сайт не найден.
	ErrSiteNotFound = errors.New("site not found")

	// ErrLibraryNotFound — библиотека документов не найдена на сайте.
	ErrLibraryNotFound = errors.New("document library not found")

	// ErrNoMatchingFile — в папке нет файла, подходящего под шаблон.
	ErrNoMatchingFile = errors.New("no file matches pattern")

	// ErrInvalidConfig — некорректная конфигурация сессии.
	ErrInvalidConfig = errors.New("invalid sharepoint config")
)

// APIError — ошибка ответа Microsoft Graph.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("graph API error [HTTP %d]", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request-id: %s)", e.RequestID)
	}
	return msg
}

// IsNotFound проверяет, что Graph ответил 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
