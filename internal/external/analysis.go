package external

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// AnalysisRequest — параметры анализа маржинальности.
type AnalysisRequest struct {
	InputFile       string
	DetailSheet     string
	HeaderRowIndex  *int
	FYStart         string
	FYEnd           string
	Billings        string
	TargetMarginPct float64
	OutputFile      string
	BillsFile       string
	BoBFile         string
	PrintMarkdown   bool
}

// Args возвращает аргументы командной строки анализа.
func (r AnalysisRequest) Args() []string {
	args := []string{
		"--input-file", r.InputFile,
		"--detail-sheet", r.DetailSheet,
	}
	if r.HeaderRowIndex != nil {
		args = append(args, "--header-row-index", strconv.Itoa(*r.HeaderRowIndex))
	}
	args = append(args,
		"--fy-start", r.FYStart,
		"--fy-end", r.FYEnd,
		"--billings", r.Billings,
		"--target-margin-pct", strconv.FormatFloat(r.TargetMarginPct, 'f', -1, 64),
		"--output-file", r.OutputFile,
		"--bills-file", r.BillsFile,
		"--bob-file", r.BoBFile,
	)
	if r.PrintMarkdown {
		args = append(args, "--print-markdown")
	}
	return args
}

// AnalysisCommand запускает анализ внешней командой.
type AnalysisCommand struct {
	cmd *Command
}

// NewAnalysisCommand создаёт AnalysisCommand.
func NewAnalysisCommand(argv []string, timeout time.Duration, logger *slog.Logger) *AnalysisCommand {
	return &AnalysisCommand{cmd: NewCommand(argv, timeout, logger)}
}

// Analyze выполняет анализ. Результат пишется в req.OutputFile.
func (a *AnalysisCommand) Analyze(ctx context.Context, req AnalysisRequest) error {
	if _, err := a.cmd.Run(ctx, req.Args()...); err != nil {
		return fmt.Errorf("engagement analysis: %w", err)
	}
	if err := requireFile(req.OutputFile); err != nil {
		return fmt.Errorf("engagement analysis: %w", err)
	}
	return nil
}

// requireFile проверяет, что команда создала файл.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoOutput, path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNoOutput, path)
	}
	return nil
}
