package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/engagement-workflow/internal/config"
	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/external"
	"github.com/shaiso/engagement-workflow/internal/telemetry"
)

// finishTimeout ограничивает запись истории и событий после завершения run.
const finishTimeout = 10 * time.Second

// Session — аутентифицированная сессия SharePoint.
type Session interface {
	DownloadLatestFile(ctx context.Context, site, folder, pattern, destDir, library string) (string, error)
	UploadFile(ctx context.Context, site, folder, localFile, library string, overwrite bool) (string, error)
	CreateShareLink(ctx context.Context, site, folder, filename, library, linkType string) (string, error)
	SendNotification(ctx context.Context, recipients []string, subject, body string, links []string) error
}

// Authenticator создаёт сессию одной из двух стратегий.
type Authenticator interface {
	AuthenticateAppOnly(ctx context.Context) (Session, error)
	AuthenticateDelegated(ctx context.Context) (Session, error)
}

// Connector строит Authenticator по пути к конфигурации сессии.
type Connector func(sharePointConfigPath string) (Authenticator, error)

// BillsPreparer готовит выгрузку Bills.
// Возвращает вычисленное значение billings или nil.
type BillsPreparer interface {
	PrepareBills(ctx context.Context, input, output, invoiceMonthFrom string) (*string, error)
}

// BoBPreparer готовит выгрузку BoB.
type BoBPreparer interface {
	PrepareBoB(ctx context.Context, input, output string) error
}

// Analyzer выполняет анализ engagement.
type Analyzer interface {
	Analyze(ctx context.Context, req external.AnalysisRequest) error
}

// RunRecorder сохраняет историю runs.
type RunRecorder interface {
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
}

// EventPublisher публикует событие о завершении run.
type EventPublisher interface {
	PublishRunFinished(ctx context.Context, run *domain.Run) error
}

// MetricsRecorder записывает длительности шагов и итог run.
type MetricsRecorder interface {
	ObserveStep(step, status string, d time.Duration)
	ObserveRun(status string, d time.Duration, finishedAt time.Time, delivered bool)
}

// Orchestrator выполняет шаги workflow.
type Orchestrator struct {
	cfg *config.Config

	connect  Connector
	bills    BillsPreparer
	bob      BoBPreparer
	analyzer Analyzer

	history RunRecorder
	events  EventPublisher
	metrics MetricsRecorder

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Workflow — загруженная конфигурация workflow.
	Workflow *config.Config

	// Collaborators
	Connect  Connector
	Bills    BillsPreparer
	BoB      BoBPreparer
	Analyzer Analyzer

	// Необязательные: nil отключает историю, события и метрики.
	History RunRecorder
	Events  EventPublisher
	Metrics MetricsRecorder

	// Logger
	Logger *slog.Logger

	// Now — часы run (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		cfg:      cfg.Workflow,
		connect:  cfg.Connect,
		bills:    cfg.Bills,
		bob:      cfg.BoB,
		analyzer: cfg.Analyzer,
		history:  cfg.History,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      now,
	}
}

// NewRunContext создаёт рабочую директорию и контекст нового run.
func (o *Orchestrator) NewRunContext() (*RunContext, error) {
	return newRunContext(o.cfg.WorkDirectory, o.now())
}

// Run выполняет все шаги по порядку.
//
// Возвращает запись run в терминальном состоянии и ошибку шага, если она была.
// Ошибка уведомления не прерывает run: отчёт уже доставлен, run завершается
// в PARTIAL, но ошибка всё равно возвращается.
func (o *Orchestrator) Run(ctx context.Context) (*domain.Run, error) {
	rc, err := o.NewRunContext()
	if err != nil {
		return nil, err
	}

	logger := telemetry.WithRunID(o.logger, rc.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	logger.Info("engagement workflow started",
		"started_at", rc.StartedAt.Format(time.RFC3339),
		"timestamp", rc.Timestamp,
		"work_dir", rc.WorkDir,
	)
	o.recordCreate(ctx, rc.Run)

	runErr := o.execute(ctx, rc)

	finishedAt := o.now()
	switch {
	case runErr == nil:
		rc.Run.MarkSucceeded(finishedAt)
	case IsPartial(runErr) && rc.Run.Outcome.ArtifactDelivered:
		rc.Run.MarkPartial(runErr.Error(), finishedAt)
	default:
		rc.Run.MarkFailed(runErr.Error(), finishedAt)
	}

	o.logBanner(logger, rc, runErr)
	o.finish(ctx, rc)

	return rc.Run, runErr
}

// execute выполняет шаги; первая фатальная ошибка прерывает run.
func (o *Orchestrator) execute(ctx context.Context, rc *RunContext) error {
	err := o.step(ctx, rc, domain.StepAuthenticate, func(ctx context.Context) error {
		return o.Authenticate(ctx, rc)
	})
	if err != nil {
		return err
	}

	err = o.step(ctx, rc, domain.StepDownload, func(ctx context.Context) error {
		return o.DownloadInputs(ctx, rc)
	})
	if err != nil {
		return err
	}

	var (
		billsPrepared string
		billings      *string
	)
	err = o.step(ctx, rc, domain.StepPrepareBills, func(ctx context.Context) error {
		var err error
		billsPrepared, billings, err = o.PrepareBills(ctx, rc)
		return err
	})
	if err != nil {
		return err
	}

	var bobPrepared string
	err = o.step(ctx, rc, domain.StepPrepareBoB, func(ctx context.Context) error {
		var err error
		bobPrepared, err = o.PrepareBoB(ctx, rc)
		return err
	})
	if err != nil {
		return err
	}

	var outputPath string
	err = o.step(ctx, rc, domain.StepAnalyze, func(ctx context.Context) error {
		var err error
		outputPath, err = o.RunAnalysis(ctx, rc, billsPrepared, bobPrepared, billings)
		return err
	})
	if err != nil {
		return err
	}

	var shareLink string
	err = o.step(ctx, rc, domain.StepUpload, func(ctx context.Context) error {
		var err error
		shareLink, err = o.UploadResults(ctx, rc, outputPath)
		return err
	})
	if err != nil {
		return err
	}

	notifyErr := o.step(ctx, rc, domain.StepNotify, func(ctx context.Context) error {
		if err := o.NotifyTeam(ctx, rc, shareLink); err != nil {
			return err
		}
		if rc.Run.Outcome.NotificationSkipped {
			return errStepSkipped
		}
		return nil
	})

	// Ошибка очистки не отменяет доставку отчёта.
	_ = o.step(ctx, rc, domain.StepCleanup, func(ctx context.Context) error {
		return o.Cleanup(rc)
	})

	return notifyErr
}

// errStepSkipped — шаг ничего не сделал по конфигурации.
var errStepSkipped = errors.New("step skipped")

// step выполняет fn и записывает результат шага в run, метрики и историю.
func (o *Orchestrator) step(ctx context.Context, rc *RunContext, step domain.Step, fn func(ctx context.Context) error) error {
	logger := telemetry.WithStep(telemetry.FromContext(ctx), string(step), step.Number())
	ctx = telemetry.WithLogger(ctx, logger)

	startedAt := o.now()
	rc.Run.StartStep(step, startedAt)
	logger.Info("step started")

	err := fn(ctx)
	if errors.Is(err, errStepSkipped) {
		o.finishStep(ctx, rc, step, domain.StepStatusSkipped, "", startedAt)
		return nil
	}

	if err != nil {
		logger.Error("step failed", "error", err)
		o.finishStep(ctx, rc, step, domain.StepStatusFailed, err.Error(), startedAt)
		return err
	}

	o.finishStep(ctx, rc, step, domain.StepStatusSucceeded, "", startedAt)
	return nil
}

func (o *Orchestrator) finishStep(ctx context.Context, rc *RunContext, step domain.Step, status domain.StepStatus, errMsg string, startedAt time.Time) {
	finishedAt := o.now()
	rc.Run.FinishStep(step, status, errMsg, finishedAt)

	telemetry.FromContext(ctx).Info("step finished",
		"status", status,
		"duration", finishedAt.Sub(startedAt).String(),
	)

	if o.metrics != nil {
		o.metrics.ObserveStep(string(step), string(status), finishedAt.Sub(startedAt))
	}
	o.recordUpdate(ctx, rc.Run)
}

// logBanner пишет итог run.
func (o *Orchestrator) logBanner(logger *slog.Logger, rc *RunContext, runErr error) {
	run := rc.Run
	attrs := []any{
		"status", run.Status,
		"duration", run.Duration().String(),
		"output", run.Outcome.OutputPath,
		"share_link", run.Outcome.ShareLink,
	}

	switch run.Status {
	case domain.RunStatusCleanedUp:
		logger.Info("engagement workflow completed successfully", attrs...)
	case domain.RunStatusPartial:
		logger.Warn("engagement workflow delivered the report but notification failed",
			append(attrs, "error", runErr)...)
	default:
		var stepErr *StepError
		if errors.As(runErr, &stepErr) {
			attrs = append(attrs, "failed_step", stepErr.Step)
		}
		logger.Error("engagement workflow failed", append(attrs, "error", runErr)...)
	}
}

// finish записывает итог run в метрики, историю и события.
// Ошибки только логируются: они не меняют итог run.
func (o *Orchestrator) finish(ctx context.Context, rc *RunContext) {
	run := rc.Run

	if o.metrics != nil {
		o.metrics.ObserveRun(string(run.Status), run.Duration(), *run.FinishedAt, run.Outcome.ArtifactDelivered)
	}

	// Отмена run не должна терять запись об итоге.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	o.recordUpdate(ctx, run)

	if o.events != nil {
		if err := o.events.PublishRunFinished(ctx, run); err != nil {
			telemetry.FromContext(ctx).Warn("failed to publish run.finished", "error", err)
		}
	}
}

func (o *Orchestrator) recordCreate(ctx context.Context, run *domain.Run) {
	if o.history == nil {
		return
	}
	if err := o.history.Create(ctx, run); err != nil {
		telemetry.FromContext(ctx).Warn("failed to record run", "error", err)
	}
}

func (o *Orchestrator) recordUpdate(ctx context.Context, run *domain.Run) {
	if o.history == nil {
		return
	}
	if err := o.history.Update(ctx, run); err != nil {
		telemetry.FromContext(ctx).Warn("failed to update run history", "error", err)
	}
}
