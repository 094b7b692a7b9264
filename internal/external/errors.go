package external

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки внешних обработчиков.
var (
	// ErrEmptyCommand — команда обработчика не задана.
	ErrEmptyCommand = errors.New("collaborator command is empty")

	// ErrCommandFailed — команда завершилась с ненулевым кодом.
	ErrCommandFailed = errors.New("collaborator command failed")

	// ErrNoOutput — команда завершилась, но не создала выходной файл.
	ErrNoOutput = errors.New("collaborator produced no output file")
)

// CommandError — ошибка выполнения команды обработчика.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error реализует интерфейс error.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

// Unwrap позволяет errors.Is(err, ErrCommandFailed).
func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
