package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/engagement-workflow/internal/config"
	"github.com/shaiso/engagement-workflow/internal/orchestrator"
)

// Коды выхода процесса.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
)

// ErrHistoryDisabled — команда history без history.database_url.
var ErrHistoryDisabled = errors.New("run history is not configured (set history.database_url or DB_URL)")

// App — зависимости команд.
type App struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	// connect — nil означает SharePoint из sharepoint_config.
	connect orchestrator.Connector

	// Внешние обработчики; nil — команды из collaborators.
	bills    orchestrator.BillsPreparer
	bob      orchestrator.BoBPreparer
	analyzer orchestrator.Analyzer

	configPath string
}

// Option настраивает App.
type Option func(*App)

// WithOutput задаёт потоки вывода.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithConnector подменяет подключение к SharePoint.
func WithConnector(connect orchestrator.Connector) Option {
	return func(a *App) { a.connect = connect }
}

// WithBillsPreparer подменяет подготовку Bills.
func WithBillsPreparer(b orchestrator.BillsPreparer) Option {
	return func(a *App) { a.bills = b }
}

// WithBoBPreparer подменяет подготовку BoB.
func WithBoBPreparer(b orchestrator.BoBPreparer) Option {
	return func(a *App) { a.bob = b }
}

// WithAnalyzer подменяет анализ.
func WithAnalyzer(an orchestrator.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// NewRootCmd создаёт корневую команду с подкомандами.
func NewRootCmd(version string, opts ...Option) *cobra.Command {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slog.Default()
	}

	root := &cobra.Command{
		Use:   "engagement-workflow",
		Short: "Engagement analysis workflow: SharePoint inputs to a shared FY report",
		Long: `Downloads the latest WIPs, Bills and BoB spreadsheets from SharePoint,
prepares them, runs the engagement analysis, uploads the report,
shares a view link and notifies the team.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runOnce(cmd.Context())
		},
	}

	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	root.PersistentFlags().StringVar(&app.configPath, "config", config.DefaultConfigFile, "Path to workflow configuration (JSON or YAML)")

	root.AddCommand(
		newScheduleCmd(app),
		newHistoryCmd(app),
	)

	return root
}

// loadConfig читает конфигурацию; при её отсутствии печатает подсказку.
func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, config.ErrConfigNotFound) {
		fmt.Fprintf(a.stderr, "Configuration file %s not found.\n", a.configPath)
		fmt.Fprintln(a.stderr, "Create a workflow_config.json with downloads, uploads and analysis sections, or pass --config.")
	}
	return nil, err
}

// ExitCode отображает ошибку команды в код выхода.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case orchestrator.IsPartial(err):
		return ExitPartial
	default:
		return ExitFailure
	}
}
