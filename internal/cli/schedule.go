package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/engagement-workflow/internal/api"
	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/repo"
	"github.com/shaiso/engagement-workflow/internal/scheduler"
)

// shutdownTimeout ограничивает остановку HTTP-сервера.
const shutdownTimeout = 5 * time.Second

func newScheduleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the workflow on the configured cron schedule",
		Long: `Runs the workflow whenever schedule.cron fires (default: Mondays 06:00 UTC).
Serves /healthz and /metrics on schedule.listen_addr until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runSchedule(cmd.Context())
		},
	}
}

func (a *App) runSchedule(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	rt := a.build(ctx, cfg)
	defer rt.Close()

	scfg := scheduler.Config{
		Schedule: domain.Schedule{
			CronExpr: cfg.Schedule.Cron,
			Timezone: cfg.Schedule.Timezone,
		},
		Runner: rt,
		Logger: a.logger,
	}
	if rt.pool != nil {
		scfg.Locker = repo.NewAdvisoryLock(rt.pool, repo.WorkflowLockKey)
	}

	sched, err := scheduler.New(scfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Schedule.ListenAddr,
		Handler:           rt.apiHandler(sched).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		a.logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Start(ctx) }()

	select {
	case err = <-schedErr:
	case err = <-srvErr:
		if err != nil {
			a.logger.Error("status server failed", "error", err)
		}
		cancel()
		<-schedErr
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warn("status server shutdown failed", "error", serr)
	}

	return err
}

// apiHandler строит HTTP API режима schedule.
func (rt *runtime) apiHandler(sched *scheduler.Scheduler) *api.Handler {
	cfg := api.Config{
		Schedule: sched,
		Gatherer: rt.metrics.Registry(),
		Logger:   rt.logger,
	}
	if rt.pool != nil {
		cfg.Runs = repo.NewRunRepo(rt.pool)
	}
	return api.NewHandler(cfg)
}
