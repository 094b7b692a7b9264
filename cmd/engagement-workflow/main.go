// engagement-workflow — еженедельный анализ engagement по выгрузкам SharePoint.
//
// Использование:
//
//	engagement-workflow [--config workflow_config.json]
//	engagement-workflow schedule [--config ...]
//	engagement-workflow history [--config ...] [--limit N] [--json]
//
// Коды выхода: 0 — успех, 1 — ошибка, 2 — отчёт доставлен без уведомления.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/engagement-workflow/internal/cli"
	"github.com/shaiso/engagement-workflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := telemetry.SetupLogger()

	root := cli.NewRootCmd(version, cli.WithLogger(logger))
	err := root.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
