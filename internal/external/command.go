package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command — запуск внешней программы с фиксированным префиксом argv.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand создаёт Command. timeout <= 0 — без ограничения.
func NewCommand(argv []string, timeout time.Duration, logger *slog.Logger) *Command {
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
	}
}

// String возвращает команду для логов.
func (c *Command) String() string {
	return strings.Join(c.argv, " ")
}

// Run запускает команду с дополнительными аргументами и возвращает stdout.
func (c *Command) Run(ctx context.Context, args ...string) (string, error) {
	if len(c.argv) == 0 {
		return "", ErrEmptyCommand
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	full := append(append([]string(nil), c.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, c.argv[0], full...)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	c.logger.Debug("collaborator command finished",
		"command", c.String(),
		"duration", duration,
		"error", err,
	)

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return stdout.String(), &CommandError{
			Command:  c.String(),
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}

	return stdout.String(), nil
}
