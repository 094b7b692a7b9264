package external

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// billingsPrefix — строка stdout, через которую подготовка Bills
// возвращает вычисленное значение.
const billingsPrefix = "billings="

// maxStdoutLine — предел длины строки stdout при поиске billings.
const maxStdoutLine = 1 << 20

// BillsCommand готовит выгрузку Bills внешней командой.
type BillsCommand struct {
	cmd *Command
}

// NewBillsCommand создаёт BillsCommand.
func NewBillsCommand(argv []string, timeout time.Duration, logger *slog.Logger) *BillsCommand {
	return &BillsCommand{cmd: NewCommand(argv, timeout, logger)}
}

// PrepareBills готовит файл Bills.
// Возвращает nil, если команда не сообщила значение billings.
func (b *BillsCommand) PrepareBills(ctx context.Context, input, output, invoiceMonthFrom string) (*string, error) {
	stdout, err := b.cmd.Run(ctx,
		"--input", input,
		"--output", output,
		"--invoice-month-from", invoiceMonthFrom,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare bills: %w", err)
	}
	if err := requireFile(output); err != nil {
		return nil, fmt.Errorf("prepare bills: %w", err)
	}
	billings, err := parseBillings(stdout)
	if err != nil {
		return nil, fmt.Errorf("prepare bills: %w", err)
	}
	return billings, nil
}

// parseBillings ищет последнюю строку "billings=<value>".
// Строка длиннее maxStdoutLine — ошибка, а не пропуск значения.
func parseBillings(stdout string) (*string, error) {
	var found *string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64<<10), maxStdoutLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, billingsPrefix) {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, billingsPrefix))
		if value == "" || strings.EqualFold(value, "none") {
			found = nil
			continue
		}
		found = &value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdout: %w", err)
	}
	return found, nil
}

// BoBCommand готовит выгрузку Book of Business внешней командой.
type BoBCommand struct {
	cmd *Command
}

// NewBoBCommand создаёт BoBCommand.
func NewBoBCommand(argv []string, timeout time.Duration, logger *slog.Logger) *BoBCommand {
	return &BoBCommand{cmd: NewCommand(argv, timeout, logger)}
}

// PrepareBoB готовит файл BoB.
func (b *BoBCommand) PrepareBoB(ctx context.Context, input, output string) error {
	if _, err := b.cmd.Run(ctx, "--input", input, "--output", output); err != nil {
		return fmt.Errorf("prepare bob: %w", err)
	}
	if err := requireFile(output); err != nil {
		return fmt.Errorf("prepare bob: %w", err)
	}
	return nil
}
