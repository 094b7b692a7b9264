package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"

	"github.com/shaiso/engagement-workflow/internal/config"
	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/external"
	"github.com/shaiso/engagement-workflow/internal/mq"
	"github.com/shaiso/engagement-workflow/internal/orchestrator"
	"github.com/shaiso/engagement-workflow/internal/repo"
	"github.com/shaiso/engagement-workflow/internal/sharepoint"
	"github.com/shaiso/engagement-workflow/internal/telemetry"
)

// pushTimeout ограничивает отправку метрик в Pushgateway.
const pushTimeout = 10 * time.Second

// runtime — собранные зависимости одного процесса.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	orch    *orchestrator.Orchestrator
	metrics *telemetry.Metrics

	pool *pgxpool.Pool // nil, если история отключена
	conn *mq.Connection
}

// build собирает runtime из конфигурации.
//
// История и события необязательны: ошибка подключения логируется,
// workflow выполняется без них.
func (a *App) build(ctx context.Context, cfg *config.Config) *runtime {
	rt := &runtime{
		cfg:     cfg,
		logger:  a.logger,
		metrics: telemetry.NewMetrics(),
	}

	ocfg := orchestrator.Config{
		Workflow: cfg,
		Connect:  a.connect,
		Bills:    a.bills,
		BoB:      a.bob,
		Analyzer: a.analyzer,
		Metrics:  rt.metrics,
		Logger:   a.logger,
	}

	if ocfg.Connect == nil {
		ocfg.Connect = sharePointConnector(a.logger, a.stderr)
	}

	timeout := time.Duration(cfg.Collaborators.TimeoutSec) * time.Second
	if ocfg.Bills == nil {
		ocfg.Bills = external.NewBillsCommand(cfg.Collaborators.BillsCommand, timeout, a.logger)
	}
	if ocfg.BoB == nil {
		ocfg.BoB = external.NewBoBCommand(cfg.Collaborators.BoBCommand, timeout, a.logger)
	}
	if ocfg.Analyzer == nil {
		ocfg.Analyzer = external.NewAnalysisCommand(cfg.Collaborators.AnalysisCommand, timeout, a.logger)
	}

	if dsn := cfg.History.DatabaseURL; dsn != "" {
		pool, err := openHistory(ctx, dsn)
		if err != nil {
			a.logger.Warn("run history disabled", "error", err)
		} else {
			rt.pool = pool
			ocfg.History = repo.NewRunRepo(pool)
			a.logger.Info("run history enabled")
		}
	}

	if url := cfg.Events.AMQPURL; url != "" {
		conn, err := openEvents(ctx, url, a.logger)
		if err != nil {
			a.logger.Warn("run events disabled", "error", err)
		} else {
			rt.conn = conn
			ocfg.Events = mq.NewPublisher(conn, a.logger)
			a.logger.Info("run events enabled", "exchange", mq.ExchangeEvents)
		}
	}

	rt.orch = orchestrator.New(ocfg)
	return rt
}

func openHistory(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openEvents(ctx context.Context, url string, logger *slog.Logger) (*mq.Connection, error) {
	conn, err := mq.NewConnection(url, logger)
	if err != nil {
		return nil, err
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Run выполняет workflow и отправляет метрики в Pushgateway.
func (rt *runtime) Run(ctx context.Context) (*domain.Run, error) {
	run, err := rt.orch.Run(ctx)
	rt.pushMetrics(ctx)
	return run, err
}

func (rt *runtime) pushMetrics(ctx context.Context) {
	url := rt.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := rt.metrics.Push(ctx, url, rt.cfg.Metrics.Job); err != nil {
		rt.logger.Warn("failed to push metrics", "url", url, "error", err)
	}
}

// Close освобождает подключения.
func (rt *runtime) Close() {
	if rt.conn != nil {
		if err := rt.conn.Close(); err != nil {
			rt.logger.Warn("failed to close amqp connection", "error", err)
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// sharePointConnector строит Authenticator поверх sharepoint.Client.
// Код device flow печатается в stderr.
func sharePointConnector(logger *slog.Logger, stderr io.Writer) orchestrator.Connector {
	return func(path string) (orchestrator.Authenticator, error) {
		cfg, err := sharepoint.LoadConfig(path)
		if err != nil {
			return nil, err
		}

		prompt := func(da *oauth2.DeviceAuthResponse) {
			fmt.Fprintf(stderr, "To sign in, open %s and enter the code %s\n", da.VerificationURI, da.UserCode)
		}

		client := sharepoint.NewClient(cfg, logger, sharepoint.WithDevicePrompt(prompt))
		return sharePointAuth{client: client}, nil
	}
}

// sharePointAuth приводит *sharepoint.Session к orchestrator.Session.
// Ошибка не должна превращаться в ненулевой интерфейс с nil внутри.
type sharePointAuth struct {
	client *sharepoint.Client
}

func (a sharePointAuth) AuthenticateAppOnly(ctx context.Context) (orchestrator.Session, error) {
	s, err := a.client.AuthenticateAppOnly(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a sharePointAuth) AuthenticateDelegated(ctx context.Context) (orchestrator.Session, error) {
	s, err := a.client.AuthenticateDelegated(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}
